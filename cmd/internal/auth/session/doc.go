// Package session is the WhisperLink Session Manager.
//
// It mints and verifies the two credential kinds (short-lived stateless access
// tokens and long-lived refresh tokens tracked in the account's session
// list), keeps that list bounded and free of expired entries, and owns the
// account-state gates that interact with it: e-mail verification, password
// reset, and activation.
//
// The Manager does no I/O. Every operation takes the current *account.Account
// and an explicit now, mutates the account in place, and leaves persistence
// to the caller. Sweeps count as mutations: callers persist the account even
// when an operation reports failure.
//
// Access tokens are trusted on signature and expiry alone. Revoking sessions
// does not invalidate access tokens already handed out; they live out their
// (short) TTL.
package session

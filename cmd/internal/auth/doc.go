// Package auth is the account service: it loads accounts from an
// account.Store, applies session.Manager operations, hashes passwords,
// sends account mail and saves the result.
//
// Every read-modify-write goes through mutate, which retries on
// account.ErrStale so concurrent sign-ins on one account never drop a
// session.
package auth

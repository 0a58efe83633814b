// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string form:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Accounts imported from the earlier Node deployment carry bcrypt hashes
// ($2a$/$2b$/$2y$). Those still verify, and NeedsRehash reports them so the
// caller can upgrade on the next successful sign-in.
//
// Hash strings are untrusted input during Verify: parameters outside sane
// bounds are rejected instead of computed.
package password

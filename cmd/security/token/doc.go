// Package token provides the opaque-token and token-hashing primitives used by
// the session layer.
//
// Raw tokens never reach storage. One-time tokens (e-mail verification and
// password reset) are persisted as SHA-256 hex. Refresh tokens go through a
// Hasher, which uses HMAC-SHA256 when WL_TOKEN_HMAC_KEY is configured and
// plain SHA-256 otherwise. All digests are 64-char lowercase hex.
package token

package session

import "errors"

var (
	// ErrConfig is returned for missing or invalid signing configuration.
	ErrConfig = errors.New("invalid session config")

	// ErrInvalidCredentials covers both a wrong password and an unknown
	// identifier. Callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotVerified is returned for correct credentials on an unverified account.
	ErrNotVerified = errors.New("email not verified")

	// ErrAccountInactive is returned when a deactivated account tries to authenticate.
	ErrAccountInactive = errors.New("account inactive")

	// ErrInvalidSession is returned when a refresh token fails its signature or
	// expiry check, or is missing from the session list.
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidOrExpiredToken is returned when a verification or reset token
	// does not match the stored digest or has expired.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

package session

import "time"

type tokenKind string

const (
	kindAccess  tokenKind = "access"
	kindRefresh tokenKind = "refresh"
)

// claims is the format-neutral token payload. Profile fields are only set
// on access tokens.
type claims struct {
	Kind      tokenKind
	Issuer    string
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time

	Username  string
	FirstName string
	LastName  string
	Role      string
}

// codec signs and verifies one kind of token with one key.
// parse must reject a token of another kind, a foreign issuer, a bad
// signature, and a token expired at now. Both formats apply checkTimes.
type codec interface {
	sign(c claims) (string, error)
	parse(raw string, now time.Time) (claims, error)
}

func newCodecs(cfg Config) (access codec, refresh codec, err error) {
	switch cfg.Format {
	case FormatJWT:
		access = newJWTCodec(kindAccess, cfg.Issuer, []byte(cfg.AccessTokenSecret), cfg.ClockSkew)
		refresh = newJWTCodec(kindRefresh, cfg.Issuer, []byte(cfg.RefreshTokenSecret), cfg.ClockSkew)
		return access, refresh, nil
	case FormatPaseto:
		if access, err = newPasetoV4Codec(kindAccess, cfg.Issuer, cfg.PasetoV4AccessSecretKeyHex, cfg.ClockSkew); err != nil {
			return nil, nil, err
		}
		if refresh, err = newPasetoV4Codec(kindRefresh, cfg.Issuer, cfg.PasetoV4RefreshSecretKeyHex, cfg.ClockSkew); err != nil {
			return nil, nil, err
		}
		return access, refresh, nil
	default:
		return nil, nil, ErrConfig
	}
}

// checkTimes applies one validity rule to every format. The token is dead
// from exp onward, with no leeway. Skew only forgives iat and nbf that sit
// slightly ahead of the verifier's clock.
func checkTimes(now, iat, nbf, exp time.Time, skew time.Duration) error {
	if exp.IsZero() || !now.Before(exp) {
		return ErrInvalidToken
	}
	ahead := now.Add(skew)
	if ahead.Before(iat) || ahead.Before(nbf) {
		return ErrInvalidToken
	}
	return nil
}

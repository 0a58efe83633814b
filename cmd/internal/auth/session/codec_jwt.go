package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Kind      string `json:"typ"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type jwtCodec struct {
	kind   tokenKind
	issuer string
	secret []byte
	skew   time.Duration
}

func newJWTCodec(kind tokenKind, issuer string, secret []byte, skew time.Duration) *jwtCodec {
	return &jwtCodec{kind: kind, issuer: issuer, secret: secret, skew: skew}
}

func (c *jwtCodec) sign(cl claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Kind:      string(c.kind),
		Username:  cl.Username,
		FirstName: cl.FirstName,
		LastName:  cl.LastName,
		Role:      cl.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   cl.Subject,
			ID:        cl.ID,
			IssuedAt:  jwt.NewNumericDate(cl.IssuedAt),
			NotBefore: jwt.NewNumericDate(cl.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cl.ExpiresAt),
		},
	})
	return tok.SignedString(c.secret)
}

func (c *jwtCodec) parse(raw string, now time.Time) (claims, error) {
	var jc jwtClaims
	_, err := jwt.ParseWithClaims(raw, &jc,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Time claims are checked by checkTimes against the caller's clock.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return claims{}, err
	}
	if tokenKind(jc.Kind) != c.kind || jc.Subject == "" || jc.Issuer != c.issuer || jc.ExpiresAt == nil {
		return claims{}, ErrInvalidToken
	}
	var iat, nbf time.Time
	if jc.IssuedAt != nil {
		iat = jc.IssuedAt.Time
	}
	if jc.NotBefore != nil {
		nbf = jc.NotBefore.Time
	}
	if err := checkTimes(now, iat, nbf, jc.ExpiresAt.Time, c.skew); err != nil {
		return claims{}, err
	}

	out := claims{
		Kind:      c.kind,
		Issuer:    jc.Issuer,
		Subject:   jc.Subject,
		ID:        jc.ID,
		Username:  jc.Username,
		FirstName: jc.FirstName,
		LastName:  jc.LastName,
		Role:      jc.Role,
	}
	if jc.IssuedAt != nil {
		out.IssuedAt = jc.IssuedAt.Time
	}
	if jc.ExpiresAt != nil {
		out.ExpiresAt = jc.ExpiresAt.Time
	}
	return out, nil
}

package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

type pasetoV4Codec struct {
	kind   tokenKind
	issuer string

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
	skew   time.Duration
}

func newPasetoV4Codec(kind tokenKind, issuer, secretHex string, skew time.Duration) (*pasetoV4Codec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(secretHex)
	if err != nil {
		return nil, ErrConfig
	}
	return &pasetoV4Codec{
		kind:   kind,
		issuer: issuer,
		secret: secret,
		public: secret.Public(),
		skew:   skew,
	}, nil
}

func (c *pasetoV4Codec) sign(cl claims) (string, error) {
	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(cl.Subject)
	tok.SetJti(cl.ID)
	tok.SetIssuedAt(cl.IssuedAt)
	tok.SetNotBefore(cl.IssuedAt)
	tok.SetExpiration(cl.ExpiresAt)
	tok.SetString("typ", string(c.kind))

	if c.kind == kindAccess {
		tok.SetString("username", cl.Username)
		tok.SetString("firstname", cl.FirstName)
		tok.SetString("lastname", cl.LastName)
		tok.SetString("role", cl.Role)
	}

	return tok.V4Sign(c.secret, nil), nil
}

func (c *pasetoV4Codec) parse(raw string, now time.Time) (claims, error) {
	// Time claims are checked by checkTimes against the caller's clock, so
	// the default NotExpired rule is left out.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))

	parsed, err := p.ParseV4Public(c.public, raw, nil)
	if err != nil {
		return claims{}, err
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return claims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()
	nbf, _ := parsed.GetNotBefore()
	if err := checkTimes(now, iat, nbf, exp, c.skew); err != nil {
		return claims{}, err
	}

	kind, err := parsed.GetString("typ")
	if err != nil || tokenKind(kind) != c.kind {
		return claims{}, ErrInvalidToken
	}
	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return claims{}, ErrInvalidToken
	}

	out := claims{Kind: c.kind, Issuer: c.issuer, Subject: sub}
	out.ID, _ = parsed.GetJti()
	out.IssuedAt = iat
	out.ExpiresAt = exp

	if c.kind == kindAccess {
		out.Username, _ = parsed.GetString("username")
		out.FirstName, _ = parsed.GetString("firstname")
		out.LastName, _ = parsed.GetString("lastname")
		out.Role, _ = parsed.GetString("role")
	}
	return out, nil
}

package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/security/token"
)

// PasswordVerifier checks a password against a stored hash.
// security/password.Config satisfies it.
type PasswordVerifier interface {
	Verify(encodedHash, password string) (bool, error)
}

// Observer receives session-list bookkeeping counts. Implementations must be
// cheap and non-blocking.
type Observer interface {
	SessionsSwept(n int)
	SessionsEvicted(n int)
}

type nopObserver struct{}

func (nopObserver) SessionsSwept(int)   {}
func (nopObserver) SessionsEvicted(int) {}

// Token is a signed credential and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Issued is the result of a successful sign-in.
type Issued struct {
	Access  Token
	Refresh Token
}

// AccessClaims is the identity carried by an access token.
type AccessClaims struct {
	AccountID string
	Username  string
	FirstName string
	LastName  string
	Role      account.Role
	TokenID   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager implements the session operations. It is safe for concurrent use;
// it holds only immutable configuration.
type Manager struct {
	cfg       Config
	access    codec
	refresh   codec
	hasher    token.Hasher
	passwords PasswordVerifier
	obs       Observer
}

// Option customizes a Manager.
type Option func(*Manager)

// WithObserver installs o to receive sweep and eviction counts.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.obs = o
		}
	}
}

// NewManager validates cfg and builds the token codecs.
// A missing or malformed signing key is reported as ErrConfig.
func NewManager(cfg Config, passwords PasswordVerifier, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if passwords == nil {
		return nil, fmt.Errorf("%w: password verifier is required", ErrConfig)
	}

	access, refresh, err := newCodecs(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		access:    access,
		refresh:   refresh,
		hasher:    token.NewHasher(cfg.RefreshHashKey),
		passwords: passwords,
		obs:       nopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() Config { return m.cfg }

// IssueAccessToken mints a short-lived access token carrying the account id
// and its denormalized profile. It does not touch acc.
func (m *Manager) IssueAccessToken(acc *account.Account, now time.Time) (Token, error) {
	exp := now.Add(m.cfg.AccessTokenTTL)
	raw, err := m.access.sign(claims{
		Subject:   acc.ID,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: exp,
		Username:  acc.Username,
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		Role:      string(acc.Role),
	})
	if err != nil {
		return Token{}, fmt.Errorf("session: sign access token: %w", err)
	}
	return Token{Value: raw, ExpiresAt: exp}, nil
}

// IssueRefreshToken mints a long-lived refresh token carrying only the
// account id. Pair it with RegisterSession.
func (m *Manager) IssueRefreshToken(acc *account.Account, now time.Time) (Token, error) {
	exp := now.Add(m.cfg.RefreshTokenTTL)
	raw, err := m.refresh.sign(claims{
		Subject:   acc.ID,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: exp,
	})
	if err != nil {
		return Token{}, fmt.Errorf("session: sign refresh token: %w", err)
	}
	return Token{Value: raw, ExpiresAt: exp}, nil
}

// VerifyAccessToken checks signature and expiry only. Session-list state is
// deliberately not consulted.
func (m *Manager) VerifyAccessToken(raw string, now time.Time) (AccessClaims, error) {
	c, err := m.access.parse(raw, now)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	return AccessClaims{
		AccountID: c.Subject,
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Role:      account.Role(c.Role),
		TokenID:   c.ID,
		Issuer:    c.Issuer,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}, nil
}

// RefreshSubject returns the account id of a refresh token that passes its
// signature and expiry check, so the caller knows which account to load.
func (m *Manager) RefreshSubject(raw string, now time.Time) (string, error) {
	c, err := m.refresh.parse(raw, now)
	if err != nil {
		return "", ErrInvalidSession
	}
	return c.Subject, nil
}

// SignIn checks the password and the account gates, then issues both tokens
// and registers the new session. Gate order: credentials, verified, active.
func (m *Manager) SignIn(acc *account.Account, password, device string, now time.Time) (Issued, error) {
	ok, err := m.passwords.Verify(acc.PasswordHash, password)
	if err != nil || !ok {
		return Issued{}, ErrInvalidCredentials
	}
	if !acc.IsVerified {
		return Issued{}, ErrNotVerified
	}
	if !acc.IsActive {
		return Issued{}, ErrAccountInactive
	}

	access, err := m.IssueAccessToken(acc, now)
	if err != nil {
		return Issued{}, err
	}
	refresh, err := m.IssueRefreshToken(acc, now)
	if err != nil {
		return Issued{}, err
	}

	m.RegisterSession(acc, refresh.Value, device, now)
	return Issued{Access: access, Refresh: refresh}, nil
}

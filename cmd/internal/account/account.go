// Package account holds the WhisperLink account record, its embedded session
// list, and the persistence boundary for it.
//
// An Account is always loaded, mutated and saved as a whole. Saves are
// optimistic: Version must match the stored row or the Store reports ErrStale
// and the caller reloads and re-applies its change.
package account

import (
	"slices"
	"time"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Session is one signed-in device. TokenHash is the digest of the refresh
// token; the raw token is never stored.
type Session struct {
	TokenHash string    `json:"token_hash"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Account is the identity and credential root of a user.
type Account struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string

	PasswordHash string `json:"-"`
	Role         Role

	IsVerified bool
	IsActive   bool

	VerificationTokenHash    string    `json:"-"`
	VerificationTokenExpires time.Time `json:"-"`
	ResetTokenHash           string    `json:"-"`
	ResetTokenExpires        time.Time `json:"-"`

	// Sessions is ordered by insertion; index 0 is the oldest.
	Sessions []Session `json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64 `json:"-"`
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Sessions = slices.Clone(a.Sessions)
	return &cp
}

// Profile is the outward-facing view of an account.
type Profile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstname"`
	LastName   string    `json:"lastname"`
	Role       Role      `json:"role"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile projects a onto its public view.
func (a *Account) Profile() Profile {
	return Profile{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Role:       a.Role,
		IsVerified: a.IsVerified,
		IsActive:   a.IsActive,
		CreatedAt:  a.CreatedAt,
	}
}

// SessionView describes a live session without its token digest.
type SessionView struct {
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionViews lists the sessions of a, oldest first.
func (a *Account) SessionViews() []SessionView {
	out := make([]SessionView, 0, len(a.Sessions))
	for _, s := range a.Sessions {
		out = append(out, SessionView{Device: s.Device, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt})
	}
	return out
}

package session

import (
	"time"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/security/token"
)

// RegisterSession sweeps expired entries, appends a session for rawRefresh,
// then evicts from the front (oldest first) down to MaxSessions.
// Every call appends, even for a device that already has a session.
func (m *Manager) RegisterSession(acc *account.Account, rawRefresh, device string, now time.Time) {
	m.SweepExpired(acc, now)

	acc.Sessions = append(acc.Sessions, account.Session{
		TokenHash: m.hasher.Hash(rawRefresh),
		Device:    device,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.RefreshTokenTTL),
	})

	if over := len(acc.Sessions) - m.cfg.MaxSessions; over > 0 {
		acc.Sessions = append(acc.Sessions[:0:0], acc.Sessions[over:]...)
		m.obs.SessionsEvicted(over)
	}
}

// ValidateRefreshToken sweeps expired entries, then reports whether an
// unexpired entry for rawRefresh remains.
func (m *Manager) ValidateRefreshToken(acc *account.Account, rawRefresh string, now time.Time) bool {
	m.SweepExpired(acc, now)
	_, ok := m.findSession(acc, rawRefresh, now)
	return ok
}

// RotateAccessToken mints a new access token from a live refresh token.
// The stored session (token digest and expiry) is left untouched.
func (m *Manager) RotateAccessToken(acc *account.Account, rawRefresh string, now time.Time) (Token, error) {
	sub, err := m.RefreshSubject(rawRefresh, now)
	if err != nil || sub != acc.ID {
		// Still sweep: the caller persists the list either way.
		m.SweepExpired(acc, now)
		return Token{}, ErrInvalidSession
	}
	if !m.ValidateRefreshToken(acc, rawRefresh, now) {
		return Token{}, ErrInvalidSession
	}
	return m.IssueAccessToken(acc, now)
}

// RevokeSession removes the entry for rawRefresh, if any. Idempotent.
func (m *Manager) RevokeSession(acc *account.Account, rawRefresh string, now time.Time) {
	m.SweepExpired(acc, now)

	want := m.hasher.Hash(rawRefresh)
	kept := make([]account.Session, 0, len(acc.Sessions))
	for _, s := range acc.Sessions {
		if !token.EqualHex(s.TokenHash, want) {
			kept = append(kept, s)
		}
	}
	acc.Sessions = kept
}

// RevokeAllSessions empties the session list.
func (m *Manager) RevokeAllSessions(acc *account.Account) {
	acc.Sessions = nil
}

// SweepExpired removes every entry with ExpiresAt <= now and returns how
// many were removed.
func (m *Manager) SweepExpired(acc *account.Account, now time.Time) int {
	kept := make([]account.Session, 0, len(acc.Sessions))
	for _, s := range acc.Sessions {
		if s.ExpiresAt.After(now) {
			kept = append(kept, s)
		}
	}
	removed := len(acc.Sessions) - len(kept)
	acc.Sessions = kept
	if removed > 0 {
		m.obs.SessionsSwept(removed)
	}
	return removed
}

func (m *Manager) findSession(acc *account.Account, rawRefresh string, now time.Time) (int, bool) {
	want := m.hasher.Hash(rawRefresh)
	for i, s := range acc.Sessions {
		if token.EqualHex(s.TokenHash, want) && s.ExpiresAt.After(now) {
			return i, true
		}
	}
	return -1, false
}

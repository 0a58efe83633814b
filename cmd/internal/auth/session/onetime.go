package session

import (
	"fmt"
	"time"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/security/token"
)

// One-time tokens are random, e-mailed raw, and stored as SHA-256 hex.
// Generating a new one overwrites the previous digest; a successful consume
// clears it. Expired digests stay until the next generate.

// GenerateVerificationToken stores a fresh verification digest on acc and
// returns the raw token.
func (m *Manager) GenerateVerificationToken(acc *account.Account, now time.Time) (string, error) {
	raw, err := token.NewOpaque(m.cfg.OneTimeTokenBytes)
	if err != nil {
		return "", fmt.Errorf("session: verification token: %w", err)
	}
	acc.VerificationTokenHash = token.HashSHA256Hex(raw)
	acc.VerificationTokenExpires = now.Add(m.cfg.VerificationTokenTTL)
	return raw, nil
}

// ConsumeVerificationToken marks acc verified if raw matches the stored,
// unexpired digest, and clears the digest.
func (m *Manager) ConsumeVerificationToken(acc *account.Account, raw string, now time.Time) error {
	if !oneTimeMatches(acc.VerificationTokenHash, acc.VerificationTokenExpires, raw, now) {
		return ErrInvalidOrExpiredToken
	}
	acc.IsVerified = true
	acc.VerificationTokenHash = ""
	acc.VerificationTokenExpires = time.Time{}
	return nil
}

// GeneratePasswordResetToken stores a fresh reset digest on acc and returns
// the raw token.
func (m *Manager) GeneratePasswordResetToken(acc *account.Account, now time.Time) (string, error) {
	raw, err := token.NewOpaque(m.cfg.OneTimeTokenBytes)
	if err != nil {
		return "", fmt.Errorf("session: reset token: %w", err)
	}
	acc.ResetTokenHash = token.HashSHA256Hex(raw)
	acc.ResetTokenExpires = now.Add(m.cfg.PasswordResetTokenTTL)
	return raw, nil
}

// ConsumePasswordResetToken replaces the password hash with newPasswordHash
// if raw matches the stored, unexpired digest. The digest is cleared and every
// session is revoked, so exactly one password change is possible per token.
// On failure acc is left unchanged.
func (m *Manager) ConsumePasswordResetToken(acc *account.Account, raw, newPasswordHash string, now time.Time) error {
	if !oneTimeMatches(acc.ResetTokenHash, acc.ResetTokenExpires, raw, now) {
		return ErrInvalidOrExpiredToken
	}
	acc.PasswordHash = newPasswordHash
	acc.ResetTokenHash = ""
	acc.ResetTokenExpires = time.Time{}
	m.RevokeAllSessions(acc)
	return nil
}

// Deactivate soft-disables acc and revokes every session.
func (m *Manager) Deactivate(acc *account.Account) {
	acc.IsActive = false
	m.RevokeAllSessions(acc)
}

// Reactivate re-enables acc. Sessions are not restored.
func (m *Manager) Reactivate(acc *account.Account) {
	acc.IsActive = true
}

func oneTimeMatches(storedHash string, expires time.Time, raw string, now time.Time) bool {
	if storedHash == "" || raw == "" {
		return false
	}
	if !token.EqualHex(storedHash, token.HashSHA256Hex(raw)) {
		return false
	}
	return now.Before(expires)
}

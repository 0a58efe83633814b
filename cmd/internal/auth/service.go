package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/account/ids"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth/session"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/mailer"
	"github.com/va4unsingh/socket-chat-app/cmd/security/password"
	"github.com/va4unsingh/socket-chat-app/cmd/security/token"
)

// maxAttempts bounds the reload-and-reapply loop on ErrStale.
const maxAttempts = 3

// Passwords hashes and checks passwords. password.Config satisfies it.
type Passwords interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) (bool, error)
	NeedsRehash(encodedHash string) bool
	Validate(password string) error
}

var _ Passwords = password.Config{}

// Service implements the account operations on top of a Store.
type Service struct {
	store     account.Store
	mgr       *session.Manager
	passwords Passwords
	mail      mailer.Sender
	links     mailer.Links

	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the service. links builds the URLs put in account mail.
func NewService(store account.Store, mgr *session.Manager, passwords Passwords, mail mailer.Sender, links mailer.Links, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("auth: nil account store")
	case mgr == nil:
		return nil, errors.New("auth: nil session manager")
	case passwords == nil:
		return nil, errors.New("auth: nil password hasher")
	case mail == nil:
		return nil, errors.New("auth: nil mail sender")
	}

	s := &Service{
		store:     store,
		mgr:       mgr,
		passwords: passwords,
		mail:      mail,
		links:     links,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// SignUp creates an unverified, active user and mails the verification link.
// A failed mail is logged; the account exists either way and the user can ask
// for a new link.
func (s *Service) SignUp(ctx context.Context, in account.Registration) (account.Profile, error) {
	const op = "auth.SignUp"

	in.Normalize()
	if err := account.Validate(&in); err != nil {
		s.metrics.signUp("invalid")
		return account.Profile{}, err
	}
	if err := s.passwords.Validate(in.Password); err != nil {
		s.metrics.signUp("invalid")
		return account.Profile{}, passwordInputError("password", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return account.Profile{}, fmt.Errorf("%s: hash password: %w", op, err)
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return account.Profile{}, fmt.Errorf("%s: new id: %w", op, err)
	}

	acc := &account.Account{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Role:         account.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
	}
	raw, err := s.mgr.GenerateVerificationToken(acc, now)
	if err != nil {
		return account.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrConflict) {
			s.metrics.signUp("conflict")
			return account.Profile{}, err
		}
		return account.Profile{}, fmt.Errorf("%s: create: %w", op, err)
	}
	s.metrics.signUp("ok")

	s.sendVerification(ctx, acc, raw)
	return acc.Profile(), nil
}

// SignIn authenticates identifier (username or e-mail) and opens a session
// for device. Unknown identifiers cost one dummy hash verify and report
// ErrInvalidCredentials like a wrong password.
func (s *Service) SignIn(ctx context.Context, identifier, pw, device string) (account.Profile, session.Issued, error) {
	var issued session.Issued

	acc, err := s.mutate(ctx, "auth.SignIn", s.byIdentifier(identifier),
		func(acc *account.Account, now time.Time) (bool, error) {
			out, err := s.mgr.SignIn(acc, pw, device, now)
			if err != nil {
				return false, err
			}
			issued = out
			s.maybeRehash(acc, pw)
			return true, nil
		})
	if err != nil {
		if account.IsNotFound(err) {
			s.burnDummyVerify(pw)
			err = session.ErrInvalidCredentials
		}
		s.metrics.signIn(resultLabel(err))
		return account.Profile{}, session.Issued{}, err
	}

	s.metrics.signIn("ok")
	return acc.Profile(), issued, nil
}

// Refresh mints a new access token from a live refresh token. Expired
// sessions swept on the way are saved even when the refresh fails.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (session.Token, error) {
	sub, err := s.mgr.RefreshSubject(rawRefresh, s.now())
	if err != nil {
		s.metrics.refresh("invalid_session")
		return session.Token{}, session.ErrInvalidSession
	}

	var tok session.Token
	_, err = s.mutate(ctx, "auth.Refresh", s.byID(sub),
		func(acc *account.Account, now time.Time) (bool, error) {
			before := len(acc.Sessions)
			out, err := s.mgr.RotateAccessToken(acc, rawRefresh, now)
			tok = out
			return len(acc.Sessions) != before, err
		})
	if err != nil {
		if account.IsNotFound(err) {
			err = session.ErrInvalidSession
		}
		s.metrics.refresh(resultLabel(err))
		return session.Token{}, err
	}

	s.metrics.refresh("ok")
	return tok, nil
}

// SignOut revokes the session of rawRefresh. Unknown, expired or already
// revoked tokens are a no-op.
func (s *Service) SignOut(ctx context.Context, rawRefresh string) error {
	sub, err := s.mgr.RefreshSubject(rawRefresh, s.now())
	if err != nil {
		return nil
	}

	_, err = s.mutate(ctx, "auth.SignOut", s.byID(sub),
		func(acc *account.Account, now time.Time) (bool, error) {
			before := len(acc.Sessions)
			s.mgr.RevokeSession(acc, rawRefresh, now)
			return len(acc.Sessions) != before, nil
		})
	if account.IsNotFound(err) {
		return nil
	}
	return err
}

// SignOutAll revokes every session of the account.
func (s *Service) SignOutAll(ctx context.Context, accountID string) error {
	_, err := s.mutate(ctx, "auth.SignOutAll", s.byID(accountID),
		func(acc *account.Account, _ time.Time) (bool, error) {
			if len(acc.Sessions) == 0 {
				return false, nil
			}
			s.mgr.RevokeAllSessions(acc)
			return true, nil
		})
	return err
}

// Sessions lists the live sessions of the account, oldest first.
func (s *Service) Sessions(ctx context.Context, accountID string) ([]account.SessionView, error) {
	acc, err := s.mutate(ctx, "auth.Sessions", s.byID(accountID),
		func(acc *account.Account, now time.Time) (bool, error) {
			return s.mgr.SweepExpired(acc, now) > 0, nil
		})
	if err != nil {
		return nil, err
	}
	return acc.SessionViews(), nil
}

// Authenticate checks an access token. It is stateless: a token stays valid
// until it expires even if its sessions were revoked.
func (s *Service) Authenticate(rawAccess string) (session.AccessClaims, error) {
	return s.mgr.VerifyAccessToken(rawAccess, s.now())
}

// Me returns the current profile of the account.
func (s *Service) Me(ctx context.Context, accountID string) (account.Profile, error) {
	acc, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return account.Profile{}, err
	}
	return acc.Profile(), nil
}

// VerifyEmail consumes a verification token and marks its account verified.
func (s *Service) VerifyEmail(ctx context.Context, raw string) (account.Profile, error) {
	load := s.byTokenHash(raw, s.store.GetByVerificationTokenHash)
	acc, err := s.mutate(ctx, "auth.VerifyEmail", load,
		func(acc *account.Account, now time.Time) (bool, error) {
			if err := s.mgr.ConsumeVerificationToken(acc, raw, now); err != nil {
				return false, err
			}
			return true, nil
		})
	if err != nil {
		return account.Profile{}, err
	}
	return acc.Profile(), nil
}

// ResendVerification issues a fresh verification link. It reports success
// for unknown and already verified addresses so callers cannot probe for
// accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	var raw string
	acc, err := s.mutate(ctx, "auth.ResendVerification", s.byEmail(email),
		func(acc *account.Account, now time.Time) (bool, error) {
			raw = ""
			if acc.IsVerified {
				return false, nil
			}
			out, err := s.mgr.GenerateVerificationToken(acc, now)
			if err != nil {
				return false, err
			}
			raw = out
			return true, nil
		})
	if err != nil {
		if account.IsNotFound(err) {
			return nil
		}
		return err
	}
	if raw != "" {
		s.sendVerification(ctx, acc, raw)
	}
	return nil
}

// ForgotPassword mails a password reset link. Unknown and inactive accounts
// are silently ignored.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	var raw string
	acc, err := s.mutate(ctx, "auth.ForgotPassword", s.byEmail(email),
		func(acc *account.Account, now time.Time) (bool, error) {
			raw = ""
			if !acc.IsActive {
				return false, nil
			}
			out, err := s.mgr.GeneratePasswordResetToken(acc, now)
			if err != nil {
				return false, err
			}
			raw = out
			return true, nil
		})
	if err != nil {
		if account.IsNotFound(err) {
			return nil
		}
		return err
	}
	if raw == "" {
		return nil
	}

	msg, err := mailer.PasswordResetMessage(acc.Email, acc.FirstName, s.links.Reset(raw), s.mgr.Config().PasswordResetTokenTTL)
	if err == nil {
		err = s.mail.Send(ctx, msg)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "auth.reset_mail.fail", "account_id", acc.ID, "err", err)
	}
	return nil
}

// ResetPassword sets a new password from a reset token and revokes every
// session. The password is checked before the token is consumed, so a
// rejected password leaves the token usable.
func (s *Service) ResetPassword(ctx context.Context, raw, newPassword string) error {
	if err := s.passwords.Validate(newPassword); err != nil {
		return passwordInputError("password", err)
	}
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth.ResetPassword: hash password: %w", err)
	}

	load := s.byTokenHash(raw, s.store.GetByResetTokenHash)
	_, err = s.mutate(ctx, "auth.ResetPassword", load,
		func(acc *account.Account, now time.Time) (bool, error) {
			if err := s.mgr.ConsumePasswordResetToken(acc, raw, hash, now); err != nil {
				return false, err
			}
			return true, nil
		})
	return err
}

// ChangePassword replaces the password of a signed-in account after checking
// the current one, then revokes every session.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next, confirm string) error {
	if next != confirm {
		return &account.ValidationError{Fields: []account.FieldError{{Field: "confirm_new_password", Rule: "eqfield"}}}
	}
	if err := s.passwords.Validate(next); err != nil {
		return passwordInputError("new_password", err)
	}
	if next == current {
		return &account.ValidationError{Fields: []account.FieldError{{Field: "new_password", Rule: "nefield"}}}
	}
	hash, err := s.passwords.Hash(next)
	if err != nil {
		return fmt.Errorf("auth.ChangePassword: hash password: %w", err)
	}

	_, err = s.mutate(ctx, "auth.ChangePassword", s.byID(accountID),
		func(acc *account.Account, _ time.Time) (bool, error) {
			if !s.checkPassword(acc, current) {
				return false, session.ErrInvalidCredentials
			}
			acc.PasswordHash = hash
			s.mgr.RevokeAllSessions(acc)
			return true, nil
		})
	return err
}

// Deactivate soft-disables the account and revokes every session.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	_, err := s.mutate(ctx, "auth.Deactivate", s.byID(accountID),
		func(acc *account.Account, _ time.Time) (bool, error) {
			s.mgr.Deactivate(acc)
			return true, nil
		})
	return err
}

// Reactivate re-enables a deactivated account given its credentials.
// The user signs in again afterwards.
func (s *Service) Reactivate(ctx context.Context, identifier, pw string) error {
	_, err := s.mutate(ctx, "auth.Reactivate", s.byIdentifier(identifier),
		func(acc *account.Account, _ time.Time) (bool, error) {
			if !s.checkPassword(acc, pw) {
				return false, session.ErrInvalidCredentials
			}
			if acc.IsActive {
				return false, nil
			}
			s.mgr.Reactivate(acc)
			return true, nil
		})
	if account.IsNotFound(err) {
		s.burnDummyVerify(pw)
		return session.ErrInvalidCredentials
	}
	return err
}

// DeleteAccount confirms the password, revokes every session and then
// removes the account. The revocation is saved first so a sign-in racing the
// delete fails on the version check instead of landing on a doomed record.
func (s *Service) DeleteAccount(ctx context.Context, accountID, pw string) error {
	const op = "auth.DeleteAccount"

	acc, err := s.mutate(ctx, op, s.byID(accountID),
		func(acc *account.Account, _ time.Time) (bool, error) {
			if !s.checkPassword(acc, pw) {
				return false, session.ErrInvalidCredentials
			}
			s.mgr.RevokeAllSessions(acc)
			return true, nil
		})
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, acc.ID); err != nil {
		return fmt.Errorf("auth.DeleteAccount: %w", err)
	}
	return nil
}

// ---- internals ----

type loader func(ctx context.Context) (*account.Account, error)

// mutate loads an account, applies change and saves it when change asks to.
// On ErrStale the whole cycle is repeated on a fresh copy. The change's own
// error is returned after a successful save, so side effects such as a sweep
// are persisted even when the operation fails.
func (s *Service) mutate(ctx context.Context, op string, load loader, change func(acc *account.Account, now time.Time) (bool, error)) (*account.Account, error) {
	var lastErr error
	for range maxAttempts {
		acc, err := load(ctx)
		if err != nil {
			return nil, err
		}

		save, changeErr := change(acc, s.now())
		if save {
			if err := s.store.Save(ctx, acc); err != nil {
				if account.IsStale(err) {
					lastErr = err
					s.metrics.staleRetry(op)
					continue
				}
				return nil, fmt.Errorf("%s: save: %w", op, err)
			}
		}
		if changeErr != nil {
			return acc, changeErr
		}
		return acc, nil
	}
	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func (s *Service) byID(id string) loader {
	return func(ctx context.Context) (*account.Account, error) {
		return s.store.GetByID(ctx, id)
	}
}

func (s *Service) byIdentifier(identifier string) loader {
	return func(ctx context.Context) (*account.Account, error) {
		if strings.TrimSpace(identifier) == "" {
			return nil, account.OpError{Op: "auth.lookup", Kind: account.ErrNotFound}
		}
		return s.store.GetByIdentifier(ctx, identifier)
	}
}

func (s *Service) byEmail(email string) loader {
	return func(ctx context.Context) (*account.Account, error) {
		return s.store.GetByEmail(ctx, email)
	}
}

// byTokenHash looks an account up by the digest of a one-time token. A miss
// is reported as ErrInvalidOrExpiredToken.
func (s *Service) byTokenHash(raw string, get func(context.Context, string) (*account.Account, error)) loader {
	return func(ctx context.Context) (*account.Account, error) {
		if raw == "" {
			return nil, session.ErrInvalidOrExpiredToken
		}
		acc, err := get(ctx, token.HashSHA256Hex(raw))
		if account.IsNotFound(err) {
			return nil, session.ErrInvalidOrExpiredToken
		}
		return acc, err
	}
}

func (s *Service) checkPassword(acc *account.Account, pw string) bool {
	ok, err := s.passwords.Verify(acc.PasswordHash, pw)
	return err == nil && ok
}

// maybeRehash upgrades legacy or weaker hashes after a successful sign-in.
// Failure keeps the old hash; the user is signed in regardless.
func (s *Service) maybeRehash(acc *account.Account, pw string) {
	if !s.passwords.NeedsRehash(acc.PasswordHash) {
		return
	}
	hash, err := s.passwords.Hash(pw)
	if err != nil {
		s.log.Warn("auth.rehash.fail", "account_id", acc.ID, "err", err)
		return
	}
	acc.PasswordHash = hash
}

// dummyHasher is implemented by hashers that can mint a throwaway hash
// without applying the password policy.
type dummyHasher interface {
	DummyHash() (string, error)
}

// burnDummyVerify spends about as long as a real verify so unknown
// identifiers are not distinguishable by timing.
func (s *Service) burnDummyVerify(pw string) {
	s.dummyOnce.Do(func() {
		var (
			hash string
			err  error
		)
		if dh, ok := s.passwords.(dummyHasher); ok {
			hash, err = dh.DummyHash()
		} else {
			hash, err = s.passwords.Hash("whisperlink-timing-parity")
		}
		if err != nil {
			s.log.Error("auth.dummy_hash.fail", "err", err)
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.passwords.Verify(s.dummyHash, pw)
	}
}

func (s *Service) sendVerification(ctx context.Context, acc *account.Account, raw string) {
	msg, err := mailer.VerificationMessage(acc.Email, acc.FirstName, s.links.Verify(raw), s.mgr.Config().VerificationTokenTTL)
	if err == nil {
		err = s.mail.Send(ctx, msg)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "auth.verification_mail.fail", "account_id", acc.ID, "err", err)
	}
}

// passwordInputError reports a policy rejection as a field validation error.
func passwordInputError(field string, err error) error {
	rule := "policy"
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		rule = "min"
	case errors.Is(err, password.ErrPasswordTooLong):
		rule = "max"
	case errors.Is(err, password.ErrWeakPassword):
		rule = "weak"
	}
	return &account.ValidationError{Fields: []account.FieldError{{Field: field, Rule: rule}}}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, session.ErrNotVerified):
		return "not_verified"
	case errors.Is(err, session.ErrAccountInactive):
		return "inactive"
	case errors.Is(err, session.ErrInvalidSession):
		return "invalid_session"
	default:
		return "error"
	}
}

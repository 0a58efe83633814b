package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth/session"
)

// Service is the account service the handler drives. *auth.Service
// implements it.
type Service interface {
	SignUp(ctx context.Context, in account.Registration) (account.Profile, error)
	SignIn(ctx context.Context, identifier, password, device string) (account.Profile, session.Issued, error)
	Refresh(ctx context.Context, rawRefresh string) (session.Token, error)
	SignOut(ctx context.Context, rawRefresh string) error
	SignOutAll(ctx context.Context, accountID string) error
	Sessions(ctx context.Context, accountID string) ([]account.SessionView, error)
	Authenticate(rawAccess string) (session.AccessClaims, error)
	Me(ctx context.Context, accountID string) (account.Profile, error)
	VerifyEmail(ctx context.Context, raw string) (account.Profile, error)
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, raw, newPassword string) error
	ChangePassword(ctx context.Context, accountID, current, next, confirm string) error
	Deactivate(ctx context.Context, accountID string) error
	Reactivate(ctx context.Context, identifier, password string) error
	DeleteAccount(ctx context.Context, accountID, password string) error
}

// Handler wires HTTP auth endpoints to the account service.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	svc    Service
	limits Limiters
	now    func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLimiters installs rate limiters. Without them nothing is throttled.
func WithLimiters(l Limiters) HandlerOption {
	return func(h *Handler) { h.limits = l }
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, svc Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("auth: nil service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log: log,
		cfg: cfg,
		svc: svc,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Routes returns the auth router, meant to be mounted under /api/auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/signup", h.handleSignUp)
	r.Post("/signin", h.handleSignIn)
	r.Get("/verify/{token}", h.handleVerify)
	r.Post("/verify/resend", h.handleResendVerification)
	r.Post("/refresh-token", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password/{token}", h.handleResetPassword)
	r.Post("/reactivate", h.handleReactivate)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout-all", h.handleLogoutAll)
		r.Get("/sessions", h.handleSessions)
		r.Get("/me", h.handleMe)
		r.Post("/change-password", h.handleChangePassword)
		r.Post("/deactivate", h.handleDeactivate)
		r.Delete("/account", h.handleDeleteAccount)
	})

	return r
}

// ---- handlers ----

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req account.Registration
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)

	p, err := h.svc.SignUp(ctx, req)
	if err != nil {
		h.audit(ctx, "auth.signup.fail", "", ip, "reason", reason(err))
		h.writeServiceError(w, r, "auth.signup", err)
		return
	}

	h.audit(ctx, "auth.signup.ok", p.ID, ip)
	writeJSON(w, http.StatusCreated, userResponse{User: p})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	identifier := account.NormalizeIdentifier(req.Identifier)
	var missing []account.FieldError
	if identifier == "" {
		missing = append(missing, account.FieldError{Field: "identifier", Rule: "required"})
	}
	if req.Password == "" {
		missing = append(missing, account.FieldError{Field: "password", Rule: "required"})
	}
	if len(missing) > 0 {
		writeValidationError(w, missing)
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)

	// IP-based throttling first, then per identifier, both before any lookup.
	if !h.allow(w, r, h.limits.SignInIP, "auth.signin", "ip:"+ipKey(ip)) {
		return
	}
	if !h.allow(w, r, h.limits.SignInIdentifier, "auth.signin", "id:"+identifier) {
		return
	}

	p, issued, err := h.svc.SignIn(ctx, identifier, req.Password, deviceLabel(r.UserAgent()))
	if err != nil {
		h.audit(ctx, "auth.signin.fail", "", ip, "identifier", identifier, "reason", reason(err))
		h.writeServiceError(w, r, "auth.signin", err)
		return
	}

	h.audit(ctx, "auth.signin.ok", p.ID, ip)
	h.setSessionCookies(w, issued.Access.Value, issued.Access.ExpiresAt, issued.Refresh.Value, issued.Refresh.ExpiresAt)
	writeJSON(w, http.StatusOK, signInResponse{
		User:             p,
		AccessToken:      issued.Access.Value,
		AccessExpiresAt:  issued.Access.ExpiresAt,
		RefreshToken:     issued.Refresh.Value,
		RefreshExpiresAt: issued.Refresh.ExpiresAt,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.svc.VerifyEmail(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.audit(ctx, "auth.verify.fail", "", clientIP(r, h.cfg.TrustProxy), "reason", reason(err))
		h.writeServiceError(w, r, "auth.verify", err)
		return
	}

	h.audit(ctx, "auth.verify.ok", p.ID, clientIP(r, h.cfg.TrustProxy))
	writeJSON(w, http.StatusOK, userResponse{User: p})
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	h.handleMailRequest(w, r, "auth.verify_resend", h.svc.ResendVerification)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.handleMailRequest(w, r, "auth.forgot_password", h.svc.ForgotPassword)
}

// handleMailRequest answers 202 whether or not the address exists.
func (h *Handler) handleMailRequest(w http.ResponseWriter, r *http.Request, event string, send func(context.Context, string) error) {
	var req emailRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.Email = account.NormalizeEmail(req.Email)
	if err := account.Validate(&req); err != nil {
		h.writeServiceError(w, r, event, err)
		return
	}
	email := req.Email

	ip := clientIP(r, h.cfg.TrustProxy)
	if !h.allow(w, r, h.limits.Mail, event, "ip:"+ipKey(ip), "email:"+email) {
		return
	}

	ctx := r.Context()
	if err := send(ctx, email); err != nil {
		h.writeServiceError(w, r, event, err)
		return
	}

	h.audit(ctx, event+".accepted", "", ip)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address belongs to an account, a message is on its way",
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeDecodeError(w, err)
			return
		}
	}
	raw := h.refreshToken(r, req.RefreshToken)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "invalid_session", "refresh token required")
		return
	}

	ctx := r.Context()
	tok, err := h.svc.Refresh(ctx, raw)
	if err != nil {
		h.audit(ctx, "auth.refresh.fail", "", clientIP(r, h.cfg.TrustProxy), "reason", reason(err))
		h.writeServiceError(w, r, "auth.refresh", err)
		return
	}

	h.setCookie(w, h.cfg.AccessCookieName, tok.Value, tok.ExpiresAt)
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: tok.Value, AccessExpiresAt: tok.ExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeDecodeError(w, err)
			return
		}
	}

	ctx := r.Context()
	if raw := h.refreshToken(r, req.RefreshToken); raw != "" {
		if err := h.svc.SignOut(ctx, raw); err != nil {
			h.writeServiceError(w, r, "auth.logout", err)
			return
		}
	}

	h.audit(ctx, "auth.logout", "", clientIP(r, h.cfg.TrustProxy))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)

	if err := h.svc.SignOutAll(ctx, claims.AccountID); err != nil {
		h.writeServiceError(w, r, "auth.logout_all", err)
		return
	}

	h.audit(ctx, "auth.logout_all", claims.AccountID, clientIP(r, h.cfg.TrustProxy))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	views, err := h.svc.Sessions(ctx, claimsFrom(ctx).AccountID)
	if err != nil {
		h.writeServiceError(w, r, "auth.sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: views})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.svc.Me(ctx, claimsFrom(ctx).AccountID)
	if err != nil {
		h.writeServiceError(w, r, "auth.me", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: p})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ip := clientIP(r, h.cfg.TrustProxy)
	if !h.allow(w, r, h.limits.Mail, "auth.reset_password", "ip:"+ipKey(ip)) {
		return
	}

	ctx := r.Context()
	if err := h.svc.ResetPassword(ctx, chi.URLParam(r, "token"), req.Password); err != nil {
		h.audit(ctx, "auth.reset_password.fail", "", ip, "reason", reason(err))
		h.writeServiceError(w, r, "auth.reset_password", err)
		return
	}

	h.audit(ctx, "auth.reset_password.ok", "", ip)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	claims := claimsFrom(ctx)
	err := h.svc.ChangePassword(ctx, claims.AccountID, req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		h.audit(ctx, "auth.change_password.fail", claims.AccountID, clientIP(r, h.cfg.TrustProxy), "reason", reason(err))
		h.writeServiceError(w, r, "auth.change_password", err)
		return
	}

	h.audit(ctx, "auth.change_password.ok", claims.AccountID, clientIP(r, h.cfg.TrustProxy))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)
	if err := h.svc.Deactivate(ctx, claims.AccountID); err != nil {
		h.writeServiceError(w, r, "auth.deactivate", err)
		return
	}

	h.audit(ctx, "auth.deactivate", claims.AccountID, clientIP(r, h.cfg.TrustProxy))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	var req reactivateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	identifier := account.NormalizeIdentifier(req.Identifier)

	ip := clientIP(r, h.cfg.TrustProxy)
	if !h.allow(w, r, h.limits.SignInIP, "auth.reactivate", "ip:"+ipKey(ip)) {
		return
	}
	if !h.allow(w, r, h.limits.SignInIdentifier, "auth.reactivate", "id:"+identifier) {
		return
	}

	ctx := r.Context()
	if err := h.svc.Reactivate(ctx, identifier, req.Password); err != nil {
		h.audit(ctx, "auth.reactivate.fail", "", ip, "identifier", identifier, "reason", reason(err))
		h.writeServiceError(w, r, "auth.reactivate", err)
		return
	}

	h.audit(ctx, "auth.reactivate.ok", "", ip, "identifier", identifier)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	claims := claimsFrom(ctx)
	if err := h.svc.DeleteAccount(ctx, claims.AccountID, req.Password); err != nil {
		h.audit(ctx, "auth.delete_account.fail", claims.AccountID, clientIP(r, h.cfg.TrustProxy), "reason", reason(err))
		h.writeServiceError(w, r, "auth.delete_account", err)
		return
	}

	h.audit(ctx, "auth.delete_account.ok", claims.AccountID, clientIP(r, h.cfg.TrustProxy))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// ---- auth middleware ----

type ctxKey int

const claimsKey ctxKey = iota

// requireAuth accepts a valid access token from the Bearer header or the
// access cookie. The check is stateless.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := h.accessToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}
		claims, err := h.svc.Authenticate(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func claimsFrom(ctx context.Context) session.AccessClaims {
	c, _ := ctx.Value(claimsKey).(session.AccessClaims)
	return c
}

// ---- error mapping ----

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	var ve *account.ValidationError
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, session.ErrNotVerified):
		writeError(w, http.StatusForbidden, "email_not_verified", "email verification required")
	case errors.Is(err, session.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "account_inactive", "account is deactivated")
	case errors.Is(err, session.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "invalid_session", "session is not active")
	case errors.Is(err, session.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token", "token is invalid or has expired")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired access token")
	case errors.As(err, &ve):
		writeValidationError(w, ve.Fields)
	case errors.Is(err, account.ErrInvalidInput):
		writeValidationError(w, nil)
	case errors.Is(err, account.ErrConflict):
		field, _ := account.ConflictField(err)
		switch field {
		case "email":
			writeError(w, http.StatusConflict, "email_taken", "email is already registered")
		default:
			writeError(w, http.StatusConflict, "username_taken", "username is already taken")
		}
	case account.IsNotFound(err):
		// The token outlived its account.
		writeError(w, http.StatusUnauthorized, "unauthorized", "account not found")
	default:
		h.log.ErrorContext(r.Context(), event+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// reason is a short audit label for err.
func reason(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, session.ErrNotVerified):
		return "email_not_verified"
	case errors.Is(err, session.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, session.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, session.ErrInvalidOrExpiredToken):
		return "invalid_or_expired_token"
	case errors.Is(err, account.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, account.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

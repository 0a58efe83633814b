package app

import (
	"errors"
	"log/slog"
	"net/url"

	authapi "github.com/va4unsingh/socket-chat-app/cmd/internal/auth/api"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth/session"
)

// ValidateSecurityConfig enforces the startup security policy. Hard
// violations fail startup; risky but legal combinations are logged.
func ValidateSecurityConfig(cfg Config, sess session.Config, auth authapi.Config, log *slog.Logger) error {
	if cfg.RequireTokenHMAC && len(sess.RefreshHashKey) == 0 {
		return errors.New("security policy: WL_REQUIRE_TOKEN_HMAC=true but WL_TOKEN_HMAC_KEY is missing or shorter than 32 bytes")
	}

	if u, err := url.Parse(cfg.PublicBaseURL); err == nil && u.Scheme == "https" && !auth.CookieSecure {
		log.Warn("security.cookie_insecure", "public_base_url", cfg.PublicBaseURL)
	}
	if auth.TrustProxy {
		log.Info("security.trust_proxy", "note", "client ip taken from X-Forwarded-For")
	}
	return nil
}

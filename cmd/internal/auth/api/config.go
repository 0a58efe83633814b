package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	CookiePath        string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	SignInIPMax    int
	SignInIPWindow time.Duration

	SignInIdentifierMax    int
	SignInIdentifierWindow time.Duration

	// Mail covers forgot-password, resend-verification and reset-password.
	MailMax    int
	MailWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:           1 << 20, // 1 MiB
		AccessCookieName:       "accessToken",
		RefreshCookieName:      "refreshToken",
		CookiePath:             "/",
		CookieSecure:           true,
		CookieSameSite:         http.SameSiteLaxMode,
		SignInIPMax:            20,
		SignInIPWindow:         5 * time.Minute,
		SignInIdentifierMax:    5,
		SignInIdentifierWindow: 15 * time.Minute,
		MailMax:                5,
		MailWindow:             15 * time.Minute,
	}
}

// LoadConfigFromEnv loads auth config from WL_* variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:             envBool("WL_TRUST_PROXY", false),
		MaxBodyBytes:           envInt64("WL_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		AccessCookieName:       envString("WL_ACCESS_COOKIE_NAME", def.AccessCookieName),
		RefreshCookieName:      envString("WL_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		CookieDomain:           envString("WL_COOKIE_DOMAIN", ""),
		CookiePath:             envString("WL_COOKIE_PATH", def.CookiePath),
		CookieSecure:           envBool("WL_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:         parseSameSite(os.Getenv("WL_COOKIE_SAMESITE")),
		SignInIPMax:            envInt("WL_AUTH_SIGNIN_IP_MAX", def.SignInIPMax),
		SignInIPWindow:         envDuration("WL_AUTH_SIGNIN_IP_WINDOW", def.SignInIPWindow),
		SignInIdentifierMax:    envInt("WL_AUTH_SIGNIN_IDENTIFIER_MAX", def.SignInIdentifierMax),
		SignInIdentifierWindow: envDuration("WL_AUTH_SIGNIN_IDENTIFIER_WINDOW", def.SignInIdentifierWindow),
		MailMax:                envInt("WL_AUTH_MAIL_MAX", def.MailMax),
		MailWindow:             envDuration("WL_AUTH_MAIL_WINDOW", def.MailWindow),
	}

	// Browsers drop SameSite=None cookies without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	// Two cookies under one name would overwrite each other.
	if cfg.AccessCookieName == cfg.RefreshCookieName {
		cfg.AccessCookieName = def.AccessCookieName
		cfg.RefreshCookieName = def.RefreshCookieName
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

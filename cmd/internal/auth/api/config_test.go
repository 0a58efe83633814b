package authapi

import (
	"net/http"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("WL_ACCESS_COOKIE_NAME", "wl_token")
	t.Setenv("WL_REFRESH_COOKIE_NAME", "wl_token")
	t.Setenv("WL_COOKIE_SAMESITE", "none")
	t.Setenv("WL_COOKIE_SECURE", "false")

	cfg := LoadConfigFromEnv()

	if cfg.AccessCookieName == cfg.RefreshCookieName {
		t.Fatalf("access cookie name must differ from refresh cookie name")
	}
	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("WL_AUTH_SIGNIN_IP_MAX", "-3")
	t.Setenv("WL_AUTH_MAIL_WINDOW", "soon")
	t.Setenv("WL_TRUST_PROXY", "true")

	cfg := LoadConfigFromEnv()
	if cfg.SignInIPMax != 20 {
		t.Fatalf("SignInIPMax=%d, want default 20", cfg.SignInIPMax)
	}
	if cfg.MailWindow != 15*time.Minute {
		t.Fatalf("MailWindow=%v, want default 15m", cfg.MailWindow)
	}
	if !cfg.TrustProxy {
		t.Fatalf("expected TrustProxy=true")
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes=%d, want 1MiB", cfg.MaxBodyBytes)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		got := parseSameSite(tc.in)
		if got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

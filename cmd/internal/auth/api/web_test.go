package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookieHandler() *Handler {
	cfg := DefaultConfig()
	return &Handler{cfg: cfg}
}

func TestSetSessionCookies(t *testing.T) {
	h := cookieHandler()

	rr := httptest.NewRecorder()
	exp := time.Now().UTC().Add(30 * time.Minute)
	h.setSessionCookies(rr, "access-123", exp, "refresh-123", exp.Add(time.Hour))

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
			t.Fatalf("cookie %s has weak attributes: %+v", c.Name, c)
		}
	}
	if cookies[0].Name != "accessToken" || cookies[1].Name != "refreshToken" {
		t.Fatalf("unexpected cookie names %q, %q", cookies[0].Name, cookies[1].Name)
	}
}

func TestClearSessionCookies(t *testing.T) {
	h := cookieHandler()

	rr := httptest.NewRecorder()
	h.clearSessionCookies(rr)

	for _, c := range rr.Result().Cookies() {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Fatalf("cookie %s not expired: %+v", c.Name, c)
		}
	}
}

func TestAccessToken_HeaderThenCookie(t *testing.T) {
	h := cookieHandler()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "from-cookie"})
	if got := h.accessToken(req); got != "from-cookie" {
		t.Fatalf("accessToken=%q, want cookie value", got)
	}

	req.Header.Set("Authorization", "bearer from-header")
	if got := h.accessToken(req); got != "from-header" {
		t.Fatalf("accessToken=%q, want header value", got)
	}

	req.Header.Set("Authorization", "Basic abc")
	if got := bearerToken(req); got != "" {
		t.Fatalf("bearerToken=%q for non-bearer scheme", got)
	}
}

func TestRefreshToken_BodyThenCookie(t *testing.T) {
	h := cookieHandler()

	req := httptest.NewRequest(http.MethodPost, "/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "from-cookie"})

	if got := h.refreshToken(req, " "); got != "from-cookie" {
		t.Fatalf("refreshToken=%q, want cookie value", got)
	}
	if got := h.refreshToken(req, "from-body"); got != "from-body" {
		t.Fatalf("refreshToken=%q, want body value", got)
	}
}

package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth/session"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/mailer"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/ratelimit"
	"github.com/va4unsingh/socket-chat-app/cmd/security/password"
)

type plainPasswords struct{}

func (plainPasswords) Hash(pw string) (string, error) { return "plain:" + pw, nil }

func (plainPasswords) Verify(hash, pw string) (bool, error) { return hash == "plain:"+pw, nil }

func (plainPasswords) NeedsRehash(string) bool { return false }

func (plainPasswords) Validate(pw string) error {
	if len(pw) < 6 {
		return password.ErrPasswordTooShort
	}
	return nil
}

// outbox records mail so tests can follow the links.
type outbox struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func (o *outbox) lastToken(t *testing.T, path string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	re := regexp.MustCompile(regexp.QuoteMeta(path) + `([A-Za-z0-9_-]+)`)
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if m := re.FindStringSubmatch(o.msgs[i].Text); m != nil {
			return m[1]
		}
	}
	t.Fatalf("no mail with %s link", path)
	return ""
}

type testServer struct {
	*httptest.Server
	router http.Handler
	mail   *outbox
}

func newTestServer(t *testing.T, opts ...HandlerOption) *testServer {
	t.Helper()

	scfg := session.DefaultConfig()
	scfg.AccessTokenSecret = strings.Repeat("a", session.MinSecretBytes)
	scfg.RefreshTokenSecret = strings.Repeat("r", session.MinSecretBytes)
	mgr, err := session.NewManager(scfg, plainPasswords{})
	require.NoError(t, err)

	store := account.NewMemoryStore()
	mail := &outbox{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewService(store, mgr, plainPasswords{}, mail, mailer.Links{BaseURL: "http://wl.test"}, auth.WithLogger(log))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.CookieSecure = false
	h, err := NewHandler(log, svc, cfg, opts...)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/api/auth", h.Routes())
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, router: r, mail: mail}
}

type call struct {
	method  string
	path    string
	body    any
	bearer  string
	cookies []*http.Cookie
	ua      string
}

type reply struct {
	status  int
	body    []byte
	cookies []*http.Cookie
	header  http.Header
}

func (ts *testServer) do(t *testing.T, c call) reply {
	t.Helper()

	var rd io.Reader
	if c.body != nil {
		if raw, ok := c.body.(string); ok {
			rd = strings.NewReader(raw)
		} else {
			b, err := json.Marshal(c.body)
			require.NoError(t, err)
			rd = bytes.NewReader(b)
		}
	}
	req, err := http.NewRequest(c.method, ts.URL+"/api/auth"+c.path, rd)
	require.NoError(t, err)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return reply{status: res.StatusCode, body: b, cookies: res.Cookies(), header: res.Header}
}

func errorCode(t *testing.T, r reply) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(r.body, &e), "body=%s", r.body)
	return e.Error.Code
}

func signUpBody() map[string]string {
	return map[string]string{
		"firstname": "Ada",
		"lastname":  "Lovelace",
		"username":  "ada_l",
		"email":     "ada@example.com",
		"password":  "analytical",
	}
}

// verifiedUser signs up and verifies ada_l.
func (ts *testServer) verifiedUser(t *testing.T) {
	t.Helper()
	r := ts.do(t, call{method: http.MethodPost, path: "/signup", body: signUpBody()})
	require.Equal(t, http.StatusCreated, r.status, "body=%s", r.body)
	r = ts.do(t, call{method: http.MethodGet, path: "/verify/" + ts.mail.lastToken(t, "/api/auth/verify/")})
	require.Equal(t, http.StatusOK, r.status, "body=%s", r.body)
}

func (ts *testServer) signIn(t *testing.T, ua string) signInResponse {
	t.Helper()
	r := ts.do(t, call{method: http.MethodPost, path: "/signin", ua: ua,
		body: signInRequest{Identifier: "ada_l", Password: "analytical"}})
	require.Equal(t, http.StatusOK, r.status, "body=%s", r.body)
	var out signInResponse
	require.NoError(t, json.Unmarshal(r.body, &out))
	return out
}

func TestAuthAPI_SignUpAndVerify(t *testing.T) {
	ts := newTestServer(t)

	r := ts.do(t, call{method: http.MethodPost, path: "/signup", body: signUpBody()})
	require.Equal(t, http.StatusCreated, r.status, "body=%s", r.body)
	var created userResponse
	require.NoError(t, json.Unmarshal(r.body, &created))
	assert.Equal(t, "ada_l", created.User.Username)
	assert.False(t, created.User.IsVerified)
	assert.NotContains(t, string(r.body), "plain:", "password hash must not leak")

	r = ts.do(t, call{method: http.MethodPost, path: "/signup", body: signUpBody()})
	assert.Equal(t, http.StatusConflict, r.status)
	assert.Equal(t, "username_taken", errorCode(t, r))

	other := signUpBody()
	other["username"] = "someone"
	r = ts.do(t, call{method: http.MethodPost, path: "/signup", body: other})
	assert.Equal(t, "email_taken", errorCode(t, r))

	// Unverified sign-in is refused with a distinct code.
	r = ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ada_l", Password: "analytical"}})
	assert.Equal(t, http.StatusForbidden, r.status)
	assert.Equal(t, "email_not_verified", errorCode(t, r))

	token := ts.mail.lastToken(t, "/api/auth/verify/")
	r = ts.do(t, call{method: http.MethodGet, path: "/verify/" + token})
	require.Equal(t, http.StatusOK, r.status)

	r = ts.do(t, call{method: http.MethodGet, path: "/verify/" + token})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "invalid_or_expired_token", errorCode(t, r))
}

func TestAuthAPI_SignUpValidation(t *testing.T) {
	ts := newTestServer(t)

	body := signUpBody()
	body["username"] = "x"
	body["email"] = "nope"
	r := ts.do(t, call{method: http.MethodPost, path: "/signup", body: body})
	require.Equal(t, http.StatusBadRequest, r.status)

	var e errorResponse
	require.NoError(t, json.Unmarshal(r.body, &e))
	assert.Equal(t, "invalid_input", e.Error.Code)
	assert.Len(t, e.Error.Fields, 2)

	r = ts.do(t, call{method: http.MethodPost, path: "/signup", body: `{"username":"ada","unexpected":1}`})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "invalid_json", errorCode(t, r))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"firstname":"`+strings.Repeat("a", 2<<20)+`"}`))
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAuthAPI_SignInFailure_NoEnumeration(t *testing.T) {
	ts := newTestServer(t)
	ts.verifiedUser(t)

	a := ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "nobody", Password: "analytical"}})
	b := ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ada_l", Password: "wrong-password"}})

	assert.Equal(t, http.StatusUnauthorized, a.status)
	assert.Equal(t, http.StatusUnauthorized, b.status)
	assert.Equal(t, "invalid_credentials", errorCode(t, a))
	assert.Equal(t, string(a.body), string(b.body))

	r := ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: " "}})
	assert.Equal(t, http.StatusBadRequest, r.status)
}

func TestAuthAPI_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.verifiedUser(t)

	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	s1 := ts.signIn(t, chrome)
	s2 := ts.signIn(t, "")
	assert.NotEmpty(t, s1.AccessToken)
	assert.NotEqual(t, s1.RefreshToken, s2.RefreshToken)

	// Bearer header and access cookie both authenticate.
	r := ts.do(t, call{method: http.MethodGet, path: "/me", bearer: s1.AccessToken})
	require.Equal(t, http.StatusOK, r.status)
	r = ts.do(t, call{method: http.MethodGet, path: "/me", cookies: []*http.Cookie{{Name: "accessToken", Value: s1.AccessToken}}})
	require.Equal(t, http.StatusOK, r.status)

	r = ts.do(t, call{method: http.MethodGet, path: "/me"})
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, "unauthorized", errorCode(t, r))

	r = ts.do(t, call{method: http.MethodGet, path: "/sessions", bearer: s1.AccessToken})
	require.Equal(t, http.StatusOK, r.status)
	var list sessionsResponse
	require.NoError(t, json.Unmarshal(r.body, &list))
	require.Len(t, list.Sessions, 2)
	assert.Contains(t, list.Sessions[0].Device, "Chrome 126")
	assert.Equal(t, "unknown", list.Sessions[1].Device)
	assert.NotContains(t, string(r.body), "token_hash")

	// Refresh from body, then from cookie.
	r = ts.do(t, call{method: http.MethodPost, path: "/refresh-token", body: refreshRequest{RefreshToken: s1.RefreshToken}})
	require.Equal(t, http.StatusOK, r.status, "body=%s", r.body)
	r = ts.do(t, call{method: http.MethodPost, path: "/refresh-token", cookies: []*http.Cookie{{Name: "refreshToken", Value: s2.RefreshToken}}})
	require.Equal(t, http.StatusOK, r.status, "body=%s", r.body)
	var refreshed refreshResponse
	require.NoError(t, json.Unmarshal(r.body, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	// Logout revokes only that session and clears cookies.
	r = ts.do(t, call{method: http.MethodPost, path: "/logout", body: refreshRequest{RefreshToken: s1.RefreshToken}})
	require.Equal(t, http.StatusNoContent, r.status)
	assert.Len(t, r.cookies, 2)

	r = ts.do(t, call{method: http.MethodPost, path: "/refresh-token", body: refreshRequest{RefreshToken: s1.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, "invalid_session", errorCode(t, r))

	// Logging out twice is fine.
	r = ts.do(t, call{method: http.MethodPost, path: "/logout", body: refreshRequest{RefreshToken: s1.RefreshToken}})
	assert.Equal(t, http.StatusNoContent, r.status)

	r = ts.do(t, call{method: http.MethodPost, path: "/logout-all", bearer: s2.AccessToken})
	require.Equal(t, http.StatusNoContent, r.status)
	r = ts.do(t, call{method: http.MethodPost, path: "/refresh-token", body: refreshRequest{RefreshToken: s2.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = ts.do(t, call{method: http.MethodPost, path: "/refresh-token"})
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestAuthAPI_SignInSetsCookies(t *testing.T) {
	ts := newTestServer(t)
	ts.verifiedUser(t)

	r := ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ADA@example.com", Password: "analytical"}})
	require.Equal(t, http.StatusOK, r.status)

	names := map[string]*http.Cookie{}
	for _, c := range r.cookies {
		names[c.Name] = c
	}
	require.Contains(t, names, "accessToken")
	require.Contains(t, names, "refreshToken")
	assert.True(t, names["refreshToken"].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, names["refreshToken"].SameSite)
}

func TestAuthAPI_PasswordReset(t *testing.T) {
	ts := newTestServer(t)
	ts.verifiedUser(t)
	s := ts.signIn(t, "")

	r := ts.do(t, call{method: http.MethodPost, path: "/forgot-password", body: emailRequest{Email: "nobody@example.com"}})
	assert.Equal(t, http.StatusAccepted, r.status)
	sent := ts.mail.count()

	r = ts.do(t, call{method: http.MethodPost, path: "/forgot-password", body: emailRequest{Email: "ada@example.com"}})
	require.Equal(t, http.StatusAccepted, r.status)
	assert.Equal(t, sent+1, ts.mail.count())
	token := ts.mail.lastToken(t, "/reset-password/")

	r = ts.do(t, call{method: http.MethodPost, path: "/forgot-password", body: emailRequest{Email: "not-an-email"}})
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = ts.do(t, call{method: http.MethodPost, path: "/reset-password/" + token, body: resetPasswordRequest{Password: "123"}})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "invalid_input", errorCode(t, r))

	r = ts.do(t, call{method: http.MethodPost, path: "/reset-password/" + token, body: resetPasswordRequest{Password: "difference-engine"}})
	require.Equal(t, http.StatusNoContent, r.status, "body=%s", r.body)

	r = ts.do(t, call{method: http.MethodPost, path: "/reset-password/" + token, body: resetPasswordRequest{Password: "difference-engine"}})
	assert.Equal(t, "invalid_or_expired_token", errorCode(t, r))

	r = ts.do(t, call{method: http.MethodPost, path: "/refresh-token", body: refreshRequest{RefreshToken: s.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestAuthAPI_ChangePasswordDeactivateDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.verifiedUser(t)
	s := ts.signIn(t, "")

	r := ts.do(t, call{method: http.MethodPost, path: "/change-password", bearer: s.AccessToken,
		body: changePasswordRequest{CurrentPassword: "wrong-one", NewPassword: "engine-one", ConfirmNewPassword: "engine-one"}})
	assert.Equal(t, "invalid_credentials", errorCode(t, r))

	r = ts.do(t, call{method: http.MethodPost, path: "/change-password", bearer: s.AccessToken,
		body: changePasswordRequest{CurrentPassword: "analytical", NewPassword: "engine-one", ConfirmNewPassword: "engine-one"}})
	require.Equal(t, http.StatusNoContent, r.status, "body=%s", r.body)

	r = ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ada_l", Password: "engine-one"}})
	require.Equal(t, http.StatusOK, r.status)
	var s2 signInResponse
	require.NoError(t, json.Unmarshal(r.body, &s2))

	r = ts.do(t, call{method: http.MethodPost, path: "/deactivate", bearer: s2.AccessToken})
	require.Equal(t, http.StatusNoContent, r.status)

	r = ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ada_l", Password: "engine-one"}})
	assert.Equal(t, http.StatusForbidden, r.status)
	assert.Equal(t, "account_inactive", errorCode(t, r))

	r = ts.do(t, call{method: http.MethodPost, path: "/reactivate", body: reactivateRequest{Identifier: "ada_l", Password: "engine-one"}})
	require.Equal(t, http.StatusNoContent, r.status)

	r = ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ada_l", Password: "engine-one"}})
	require.Equal(t, http.StatusOK, r.status)
	var s3 signInResponse
	require.NoError(t, json.Unmarshal(r.body, &s3))

	r = ts.do(t, call{method: http.MethodDelete, path: "/account", bearer: s3.AccessToken, body: passwordRequest{Password: "engine-one"}})
	require.Equal(t, http.StatusNoContent, r.status)

	// The access token outlives the account but /me no longer resolves.
	r = ts.do(t, call{method: http.MethodGet, path: "/me", bearer: s3.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestAuthAPI_SignInRateLimited(t *testing.T) {
	lim, err := ratelimit.NewMemory(ratelimit.Rule{Limit: 2, Window: time.Minute})
	require.NoError(t, err)
	ts := newTestServer(t, WithLimiters(Limiters{SignInIdentifier: lim}))

	for i := 0; i < 2; i++ {
		r := ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ada_l", Password: "x"}})
		assert.Equal(t, http.StatusUnauthorized, r.status)
	}
	r := ts.do(t, call{method: http.MethodPost, path: "/signin", body: signInRequest{Identifier: "ADA_L", Password: "x"}})
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Equal(t, "rate_limited", errorCode(t, r))
	assert.NotEmpty(t, r.header.Get("Retry-After"))
}

// Package main provides a CI-friendly smoke test for the WhisperLink auth API.
//
// It validates:
//   - health and readiness
//   - sign-up of a fresh account and the duplicate-username conflict
//   - the unverified sign-in gate
//   - silent forgot-password and resend-verification
//   - the access-token requirement on /me
//
// With -identifier and -password pointing at a verified account it also runs
// sign-in, /me, /sessions, refresh, and logout.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

type reply struct {
	status int
	body   []byte
	header http.Header
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		baseURL    = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		identifier = flag.String("identifier", "", "Verified username or email for the session checks")
		password   = flag.String("password", "", "Password of -identifier")
		timeout    = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	mustStatus(c.do(root, http.MethodGet, "/healthz", nil, ""), http.StatusOK, "healthz")
	mustStatus(c.do(root, http.MethodGet, "/readyz", nil, ""), http.StatusOK, "readyz")

	suffix := fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000_000)
	username := "smoke_" + suffix
	email := "smoke+" + suffix + "@example.com"
	pw := "smoke-pass-" + suffix

	signup := map[string]string{
		"firstname": "Smoke",
		"lastname":  "Test",
		"username":  username,
		"email":     email,
		"password":  pw,
	}
	mustStatus(c.do(root, http.MethodPost, "/api/auth/signup", signup, ""), http.StatusCreated, "signup")
	mustCode(c.do(root, http.MethodPost, "/api/auth/signup", signup, ""), http.StatusConflict, "username_taken", "duplicate signup")

	mustCode(c.do(root, http.MethodPost, "/api/auth/signin",
		map[string]string{"identifier": username, "password": pw}, ""),
		http.StatusForbidden, "email_not_verified", "unverified signin")

	mustCode(c.do(root, http.MethodPost, "/api/auth/signin",
		map[string]string{"identifier": username, "password": "wrong-" + pw}, ""),
		http.StatusUnauthorized, "invalid_credentials", "wrong password")

	mustStatus(c.do(root, http.MethodPost, "/api/auth/forgot-password",
		map[string]string{"email": "nobody+" + suffix + "@example.com"}, ""),
		http.StatusAccepted, "forgot-password unknown")
	mustStatus(c.do(root, http.MethodPost, "/api/auth/verify/resend",
		map[string]string{"email": email}, ""),
		http.StatusAccepted, "resend verification")

	mustCode(c.do(root, http.MethodGet, "/api/auth/me", nil, ""), http.StatusUnauthorized, "unauthorized", "me without token")

	if *identifier == "" {
		fmt.Printf("OK: signup=%s (session checks skipped; pass -identifier/-password)\n", username)
		return
	}

	access, refresh := mustSignIn(root, c, *identifier, *password)
	mustStatus(c.do(root, http.MethodGet, "/api/auth/me", nil, access), http.StatusOK, "me")

	var sessions struct {
		Sessions []struct {
			Device string `json:"device"`
		} `json:"sessions"`
	}
	mustDecode(mustStatus(c.do(root, http.MethodGet, "/api/auth/sessions", nil, access), http.StatusOK, "sessions"), &sessions)
	if len(sessions.Sessions) == 0 {
		fatalf("sessions: expected at least one live session")
	}

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	mustDecode(mustStatus(c.do(root, http.MethodPost, "/api/auth/refresh-token",
		map[string]string{"refresh_token": refresh}, ""), http.StatusOK, "refresh"), &refreshed)
	if refreshed.AccessToken == "" {
		fatalf("refresh: empty access token")
	}

	mustStatus(c.do(root, http.MethodPost, "/api/auth/logout",
		map[string]string{"refresh_token": refresh}, ""), http.StatusNoContent, "logout")
	mustCode(c.do(root, http.MethodPost, "/api/auth/refresh-token",
		map[string]string{"refresh_token": refresh}, ""),
		http.StatusUnauthorized, "invalid_session", "refresh after logout")

	fmt.Printf("OK: signup=%s signin=%s sessions=%d\n", username, *identifier, len(sessions.Sessions))
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *smokeClient) do(parent context.Context, method, path string, body any, bearer string) reply {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(mustJSON(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		fatalf("%s %s: build request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", "whisperlink-auth-smoke/1.0")

	res, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, res.StatusCode, strings.TrimSpace(string(b)))
	}
	return reply{status: res.StatusCode, body: b, header: res.Header}
}

func mustSignIn(parent context.Context, c *smokeClient, identifier, password string) (access, refresh string) {
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	mustDecode(mustStatus(c.do(parent, http.MethodPost, "/api/auth/signin",
		map[string]string{"identifier": identifier, "password": password}, ""),
		http.StatusOK, "signin"), &out)
	if out.AccessToken == "" || out.RefreshToken == "" {
		fatalf("signin: missing tokens")
	}
	return out.AccessToken, out.RefreshToken
}

func mustStatus(r reply, want int, step string) reply {
	if r.status != want {
		fatalf("%s: status=%d want=%d body=%s", step, r.status, want, strings.TrimSpace(string(r.body)))
	}
	return r
}

func mustCode(r reply, wantStatus int, wantCode, step string) {
	mustStatus(r, wantStatus, step)
	var e apiErrorBody
	if err := json.Unmarshal(r.body, &e); err != nil {
		fatalf("%s: error body is not json: %v", step, err)
	}
	if e.Error.Code != wantCode {
		fatalf("%s: code=%q want=%q", step, e.Error.Code, wantCode)
	}
}

func mustDecode(r reply, dst any) {
	if err := json.Unmarshal(r.body, dst); err != nil {
		fatalf("decode: %v (body=%s)", err, strings.TrimSpace(string(r.body)))
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	return b
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

package authapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func limitHandler() *Handler {
	return &Handler{
		cfg: DefaultConfig(),
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestAllow_BlocksAfterLimit(t *testing.T) {
	h := limitHandler()
	lim, err := ratelimit.NewMemory(ratelimit.Rule{Limit: 2, Window: time.Minute})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/signin", nil)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		if !h.allow(rr, req, lim, "auth.signin", "ip:1") {
			t.Fatalf("attempt %d blocked early", i)
		}
	}

	rr := httptest.NewRecorder()
	if h.allow(rr, req, lim, "auth.signin", "ip:1") {
		t.Fatalf("expected third attempt to be blocked")
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After=%q, want 60", got)
	}
}

func TestAllow_SkipsEmptyKeysAndNilLimiter(t *testing.T) {
	h := limitHandler()
	req := httptest.NewRequest(http.MethodPost, "/signin", nil)

	if !h.allow(httptest.NewRecorder(), req, nil, "auth.signin", "ip:1") {
		t.Fatalf("nil limiter must allow")
	}
	if !h.allow(httptest.NewRecorder(), req, failingLimiter{}, "auth.signin", "") {
		t.Fatalf("empty key must be skipped")
	}
}

func TestAllow_BackendFailure(t *testing.T) {
	h := limitHandler()
	req := httptest.NewRequest(http.MethodPost, "/signin", nil)

	rr := httptest.NewRecorder()
	if h.allow(rr, req, failingLimiter{}, "auth.signin", "ip:1") {
		t.Fatalf("expected failure to block")
	}
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
}

func TestWriteRateLimited_RoundsUp(t *testing.T) {
	rr := httptest.NewRecorder()
	writeRateLimited(rr, 1500*time.Millisecond)
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After=%q, want 2", got)
	}
}

func TestMemoryLimiters(t *testing.T) {
	l, err := MemoryLimiters(DefaultConfig())
	if err != nil {
		t.Fatalf("MemoryLimiters: %v", err)
	}
	if l.SignInIP == nil || l.SignInIdentifier == nil || l.Mail == nil {
		t.Fatalf("expected all limiters set: %+v", l)
	}
}

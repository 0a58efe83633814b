package authapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/ratelimit"
)

// Limiters groups the throttles applied by the handler. Nil fields allow
// everything.
type Limiters struct {
	SignInIP         ratelimit.Limiter
	SignInIdentifier ratelimit.Limiter
	Mail             ratelimit.Limiter
}

func (c Config) signInIPRule() ratelimit.Rule {
	return ratelimit.Rule{Limit: c.SignInIPMax, Window: c.SignInIPWindow}
}

func (c Config) signInIdentifierRule() ratelimit.Rule {
	return ratelimit.Rule{Limit: c.SignInIdentifierMax, Window: c.SignInIdentifierWindow}
}

func (c Config) mailRule() ratelimit.Rule {
	return ratelimit.Rule{Limit: c.MailMax, Window: c.MailWindow}
}

// MemoryLimiters keeps counters in process memory (single instance).
func MemoryLimiters(cfg Config) (Limiters, error) {
	ip, err := ratelimit.NewMemory(cfg.signInIPRule())
	if err != nil {
		return Limiters{}, err
	}
	ident, err := ratelimit.NewMemory(cfg.signInIdentifierRule())
	if err != nil {
		return Limiters{}, err
	}
	mail, err := ratelimit.NewMemory(cfg.mailRule())
	if err != nil {
		return Limiters{}, err
	}
	return Limiters{SignInIP: ip, SignInIdentifier: ident, Mail: mail}, nil
}

// RedisLimiters shares counters across replicas through client.
func RedisLimiters(client *redis.Client, cfg Config) (Limiters, error) {
	ip, err := ratelimit.NewRedis(client, "wl:rl:signin:ip:", cfg.signInIPRule())
	if err != nil {
		return Limiters{}, err
	}
	ident, err := ratelimit.NewRedis(client, "wl:rl:signin:id:", cfg.signInIdentifierRule())
	if err != nil {
		return Limiters{}, err
	}
	mail, err := ratelimit.NewRedis(client, "wl:rl:mail:", cfg.mailRule())
	if err != nil {
		return Limiters{}, err
	}
	return Limiters{SignInIP: ip, SignInIdentifier: ident, Mail: mail}, nil
}

// allow checks every key against lim and writes the 429 (or 503 when the
// limiter backend fails) itself. Empty keys are skipped.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, lim ratelimit.Limiter, event string, keys ...string) bool {
	if lim == nil {
		return true
	}
	ctx := r.Context()
	now := h.now()
	for _, key := range keys {
		if key == "" {
			continue
		}
		ok, retryAfter, err := lim.Allow(ctx, key, now)
		if err != nil {
			h.log.ErrorContext(ctx, event+".throttle.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return false
		}
		if !ok {
			h.audit(ctx, event+".rate_limited", "", clientIP(r, h.cfg.TrustProxy),
				"retry_after_s", int64(retryAfter.Seconds()))
			writeRateLimited(w, retryAfter)
			return false
		}
	}
	return true
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

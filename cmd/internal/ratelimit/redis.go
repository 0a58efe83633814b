package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect builds a client from a redis:// URL or a bare host:port and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Redis is a fixed-window counter shared through Redis. Each key lives for
// one window after its first hit.
type Redis struct {
	client *redis.Client
	rule   Rule
	prefix string
}

func NewRedis(client *redis.Client, prefix string, rule Rule) (*Redis, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "wl:ratelimit:"
	}
	return &Redis{client: client, rule: rule, prefix: prefix}, nil
}

func (r *Redis) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	redisKey := r.prefix + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, redisKey, r.rule.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("ratelimit: redis pexpire: %w", err)
		}
	}
	if count <= int64(r.rule.Limit) {
		return true, 0, nil
	}

	wait, err := r.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: redis pttl: %w", err)
	}
	if wait <= 0 {
		// A key without expiry would block forever; start a fresh window.
		_ = r.client.PExpire(ctx, redisKey, r.rule.Window).Err()
		wait = r.rule.Window
	}
	return false, wait, nil
}

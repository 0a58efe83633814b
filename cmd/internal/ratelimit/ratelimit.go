// Package ratelimit throttles auth endpoints per client key (IP or
// identifier). The in-process limiter suits a single instance; the Redis
// limiter shares counters across replicas.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Limiter decides whether one more event for key is allowed at now.
// When it is not, retryAfter tells the caller how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// Rule is a budget of Limit events per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

var ErrInvalidRule = errors.New("ratelimit: limit and window must be positive")

func (r Rule) validate() error {
	if r.Limit <= 0 || r.Window <= 0 {
		return ErrInvalidRule
	}
	return nil
}

// Nop allows everything.
type Nop struct{}

func (Nop) Allow(context.Context, string, time.Time) (bool, time.Duration, error) {
	return true, 0, nil
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a per-key sliding-window limiter kept in process memory.
type Memory struct {
	rule Rule

	mu      sync.Mutex
	windows map[string][]time.Time
	calls   int
}

// sweepEvery bounds how often idle keys are dropped.
const sweepEvery = 1024

func NewMemory(rule Rule) (*Memory, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	return &Memory{rule: rule, windows: make(map[string][]time.Time)}, nil
}

func (m *Memory) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweepLocked(now)
	}

	events := prune(m.windows[key], now.Add(-m.rule.Window))
	if len(events) >= m.rule.Limit {
		m.windows[key] = events
		// The oldest event leaving the window frees a slot.
		return false, events[0].Add(m.rule.Window).Sub(now), nil
	}
	m.windows[key] = append(events, now)
	return true, 0, nil
}

// Len reports how many keys are tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *Memory) sweepLocked(now time.Time) {
	cut := now.Add(-m.rule.Window)
	for k, events := range m.windows {
		if len(prune(events, cut)) == 0 {
			delete(m.windows, k)
		}
	}
}

// prune keeps the events strictly after cut, reusing the backing array.
func prune(events []time.Time, cut time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cut) {
		i++
	}
	if i == 0 {
		return events
	}
	return append(events[:0], events[i:]...)
}

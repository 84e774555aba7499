// Package ratelimit bounds per-client request rates for the HTTP transport.
// The primary limiter keeps a sliding window in Redis so several server
// instances share one budget; an in-memory window covers single-instance
// deployments and tests.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Limiter answers whether one more request from key fits the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Decision, error)
	Close() error
}

// New picks the limiter for the given configuration: Redis when an address
// is configured, the in-memory window otherwise.
func New(cfg config.RateLimitConfig) (Limiter, error) {
	if cfg.RedisAddr != "" {
		return NewRedisLimiter(cfg)
	}
	return NewMemoryLimiter(cfg.RequestsPerMinute, time.Minute), nil
}

// MemoryLimiter is a process-local sliding window keyed by client.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter creates an in-memory sliding window limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow records the request when it fits and reports the decision.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (*Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	m.sweep(now, cutoff)

	kept := m.windows[key][:0]
	for _, t := range m.windows[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	decision := &Decision{Limit: m.limit}
	if len(kept) < m.limit {
		kept = append(kept, now)
		decision.Allowed = true
		decision.Remaining = m.limit - len(kept)
	} else {
		decision.RetryAfter = kept[0].Add(m.window).Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
	}
	m.windows[key] = kept
	return decision, nil
}

// sweep drops windows that went fully idle, at most once per window length,
// so the map does not grow without bound across distinct clients.
func (m *MemoryLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for key, entries := range m.windows {
		live := false
		for _, t := range entries {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(m.windows, key)
		}
	}
}

// Close releases nothing for the in-memory limiter.
func (m *MemoryLimiter) Close() error { return nil }

// ActiveKeys lists the clients with live windows, sorted.
func (m *MemoryLimiter) ActiveKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.windows))
	for k := range m.windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package ratelimit provides per-principal sliding-window admission control.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// Limiter tracks request timestamps per key and rejects a request when the
// key already has MaxRequests timestamps inside the window. State is
// process-local; each replica enforces its own budget.
type Limiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	requests map[string][]time.Time

	totalRequests    uint64
	allowedRequests  uint64
	rejectedRequests uint64

	now func() time.Time
}

// New creates a limiter from the given config.
func New(cfg config.RateLimitConfig) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	return &Limiter{
		cfg:      cfg,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Check admits or rejects a request for the key. An admitted request is
// recorded immediately and counts against subsequent calls. A rejected
// request is not recorded, so rejections never extend the lockout.
func (l *Limiter) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.totalRequests++

	times := l.pruneLocked(key, now)
	if len(times) >= l.cfg.MaxRequests {
		l.rejectedRequests++
		retryAfter := times[0].Add(l.cfg.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return errs.NewRateLimitError(
			fmt.Sprintf("rate limit exceeded for %s: %d requests per %s, retry after %.1fs",
				key, l.cfg.MaxRequests, l.cfg.Window, retryAfter.Seconds()),
			retryAfter,
		).WithDetail("identifier", key).
			WithDetail("limit", l.cfg.MaxRequests).
			WithDetail("window_seconds", l.cfg.Window.Seconds())
	}

	l.requests[key] = append(times, now)
	l.allowedRequests++
	return nil
}

// pruneLocked drops timestamps older than the window and returns the
// surviving slice. Empty keys are removed so the map does not grow without
// bound across principals.
func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.cfg.Window)
	times := l.requests[key]
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		times = times[idx:]
		if len(times) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = times
		}
	}
	return times
}

// Clear removes all recorded requests for the key.
func (l *Limiter) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.requests, key)
}

// Stats is a point-in-time snapshot for monitoring.
type Stats struct {
	TotalRequests    uint64  `json:"total_requests"`
	AllowedRequests  uint64  `json:"allowed_requests"`
	RejectedRequests uint64  `json:"rejected_requests"`
	UniqueKeys       int     `json:"unique_keys"`
	RejectionRate    float64 `json:"rejection_rate"`
}

// Stats returns a monitoring snapshot.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		TotalRequests:    l.totalRequests,
		AllowedRequests:  l.allowedRequests,
		RejectedRequests: l.rejectedRequests,
		UniqueKeys:       len(l.requests),
	}
	if s.TotalRequests > 0 {
		s.RejectionRate = float64(s.RejectedRequests) / float64(s.TotalRequests)
	}
	return s
}

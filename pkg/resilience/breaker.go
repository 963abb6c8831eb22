// Package resilience provides the circuit breaker guarding LLM call paths.
//
// The breaker is process-local and per-route: each provider route gets its
// own instance and instances share nothing. Transitions are driven by an
// explicit state machine over a sliding window of failure timestamps.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// State is the breaker's position in the state machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes a breaker.
type Config struct {
	// FailureThreshold opens the breaker when this many failures land
	// within Window.
	FailureThreshold int
	// Window is the sliding window over failure timestamps.
	Window time.Duration
	// RecoveryTimeout is how long the breaker stays open before allowing
	// a half-open probe.
	RecoveryTimeout time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker is a circuit breaker with a single half-open probe.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failures      []time.Time
	openedAt      time.Time
	probeInFlight bool
	successCount  uint64
	failureCount  uint64

	now func() time.Time
}

// New creates a breaker for the named route.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow decides whether a call may proceed. In the open state it rejects
// immediately; after the recovery timeout it admits exactly one probe and
// rejects everything else until that probe resolves via RecordSuccess or
// RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.probeInFlight = false
	}

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return b.rejectionLocked()
		}
		b.probeInFlight = true
		return nil
	default: // StateOpen
		return b.rejectionLocked()
	}
}

func (b *Breaker) rejectionLocked() error {
	retryIn := b.cfg.RecoveryTimeout - b.now().Sub(b.openedAt)
	if retryIn < 0 {
		retryIn = 0
	}
	return errs.NewCircuitBreakerError(
		fmt.Sprintf("%s unavailable (circuit breaker %s)", b.name, b.state),
		string(b.state),
	).WithDetail("retry_after_seconds", retryIn.Seconds())
}

// RecordSuccess notes a successful call. A successful half-open probe closes
// the breaker and resets the failure window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = nil
		b.probeInFlight = false
		b.openedAt = time.Time{}
	}
}

// RecordFailure notes a failed call. A failed half-open probe reopens the
// breaker; in the closed state the breaker opens once FailureThreshold
// failures accumulate within Window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failureCount++
	b.failures = append(b.failures, now)
	b.pruneLocked(now)

	switch b.state {
	case StateHalfOpen:
		b.openLocked(now)
	case StateClosed:
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.openLocked(now)
		}
	}
}

func (b *Breaker) openLocked(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.probeInFlight = false
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	idx := 0
	for idx < len(b.failures) && b.failures[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		b.failures = append(b.failures[:0], b.failures[idx:]...)
	}
}

// State returns the current state, applying any pending open→half_open
// transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.probeInFlight = false
	}
	return b.state
}

// Stats is a point-in-time snapshot for monitoring.
type Stats struct {
	State          State  `json:"state"`
	RecentFailures int    `json:"recent_failures"`
	TotalSuccesses uint64 `json:"total_successes"`
	TotalFailures  uint64 `json:"total_failures"`
}

// Stats returns a monitoring snapshot.
func (b *Breaker) Stats() Stats {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:          state,
		RecentFailures: len(b.failures),
		TotalSuccesses: b.successCount,
		TotalFailures:  b.failureCount,
	}
}

// Reset returns the breaker to its initial state. Intended for tests and
// manual operator recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = nil
	b.openedAt = time.Time{}
	b.probeInFlight = false
}

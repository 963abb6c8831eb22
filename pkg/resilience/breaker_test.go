package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// fakeClock lets tests advance breaker time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	b := New("llm", cfg)
	clock := &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	b.now = clock.Now
	return b, clock
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 5, Window: time.Minute, RecoveryTimeout: 30 * time.Second})

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, errs.IsCategory(err, errs.CategoryCircuitBreaker))

	se, _ := errs.As(err)
	assert.True(t, se.Retryable)
}

func TestBreaker_OldFailuresFallOutOfWindow(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 5, Window: time.Minute, RecoveryTimeout: 30 * time.Second})

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	// Push the first four failures outside the window.
	clock.Advance(61 * time.Second)

	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State(), "a lone failure in the window must not open the breaker")
}

func TestBreaker_HalfOpenAfterRecovery(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 2, Window: time.Minute, RecoveryTimeout: 30 * time.Second})

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.Error(t, b.Allow())

	clock.Advance(30 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow(), "first call after recovery is the probe")
}

func TestBreaker_SingleProbeInHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Window: time.Minute, RecoveryTimeout: 10 * time.Second})

	b.RecordFailure()
	clock.Advance(10 * time.Second)

	require.NoError(t, b.Allow())
	// Probe unresolved: further calls reject.
	require.Error(t, b.Allow())
	require.Error(t, b.Allow())
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Window: time.Minute, RecoveryTimeout: 10 * time.Second})

	b.RecordFailure()
	clock.Advance(10 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
	assert.NoError(t, b.Allow())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Window: time.Minute, RecoveryTimeout: 10 * time.Second})

	b.RecordFailure()
	clock.Advance(10 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	require.Error(t, b.Allow())

	// The recovery clock restarted at the probe failure.
	clock.Advance(9 * time.Second)
	require.Error(t, b.Allow())
	clock.Advance(1 * time.Second)
	require.NoError(t, b.Allow())
}

func TestBreaker_NoCallIssuedWhileOpen(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Window: time.Minute, RecoveryTimeout: 30 * time.Second})

	b.RecordFailure()
	for i := 0; i < 10; i++ {
		require.Error(t, b.Allow())
		clock.Advance(2 * time.Second) // total 20s < 30s recovery
	}
}

func TestBreaker_Stats(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	b.RecordSuccess()
	b.RecordFailure()

	stats := b.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 1, stats.RecentFailures)
	assert.Equal(t, uint64(1), stats.TotalSuccesses)
	assert.Equal(t, uint64(1), stats.TotalFailures)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, Window: time.Minute, RecoveryTimeout: time.Minute})

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if b.Allow() == nil {
				if n%2 == 0 {
					b.RecordSuccess()
				} else {
					b.RecordFailure()
				}
			}
		}(i)
	}
	wg.Wait()

	stats := b.Stats()
	assert.LessOrEqual(t, stats.TotalSuccesses+stats.TotalFailures, uint64(50))
}

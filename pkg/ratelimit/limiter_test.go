package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

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

func newTestLimiter(maxRequests int, window time.Duration) (*Limiter, *fakeClock) {
	l := New(config.RateLimitConfig{MaxRequests: maxRequests, Window: window})
	clock := &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	l.now = clock.Now
	return l, clock
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check("user-1"))
	}
	err := l.Check("user-1")
	require.Error(t, err)
	assert.True(t, errs.IsCategory(err, errs.CategoryRateLimit))

	se, ok := errs.As(err)
	require.True(t, ok)
	assert.True(t, se.Retryable)
	assert.Equal(t, "user-1", se.Details["identifier"])
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	require.NoError(t, l.Check("user-1"))
	require.NoError(t, l.Check("user-1"))
	require.Error(t, l.Check("user-1"))

	assert.NoError(t, l.Check("user-2"), "another key has its own budget")
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	require.NoError(t, l.Check("ip-1"))
	clock.Advance(30 * time.Second)
	require.NoError(t, l.Check("ip-1"))
	require.Error(t, l.Check("ip-1"))

	// First request falls out of the window; one slot frees up.
	clock.Advance(31 * time.Second)
	assert.NoError(t, l.Check("ip-1"))
	assert.Error(t, l.Check("ip-1"), "second request is still inside the window")
}

func TestLimiter_RetryAfterTracksOldestRequest(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)

	require.NoError(t, l.Check("ip-1"))
	clock.Advance(20 * time.Second)

	err := l.Check("ip-1")
	require.Error(t, err)
	se, ok := errs.As(err)
	require.True(t, ok)
	assert.InDelta(t, 40.0, se.Details["retry_after_seconds"], 1e-9)
}

func TestLimiter_RejectionsDoNotExtendLockout(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)

	require.NoError(t, l.Check("ip-1"))
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		require.Error(t, l.Check("ip-1"))
	}
	// 50s of rejections later the original request still expires on schedule.
	clock.Advance(11 * time.Second)
	assert.NoError(t, l.Check("ip-1"))
}

func TestLimiter_Clear(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	require.NoError(t, l.Check("ip-1"))
	require.Error(t, l.Check("ip-1"))

	l.Clear("ip-1")
	assert.NoError(t, l.Check("ip-1"))
}

func TestLimiter_Stats(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	require.NoError(t, l.Check("a"))
	require.NoError(t, l.Check("b"))
	require.Error(t, l.Check("a"))

	stats := l.Stats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(2), stats.AllowedRequests)
	assert.Equal(t, uint64(1), stats.RejectedRequests)
	assert.Equal(t, 2, stats.UniqueKeys)
	assert.InDelta(t, 1.0/3.0, stats.RejectionRate, 1e-9)
}

func TestLimiter_EmptyKeysAreDroppedAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Check(fmt.Sprintf("key-%d", i)))
	}
	clock.Advance(2 * time.Minute)

	// A check on one key prunes only that key, the rest expire lazily as
	// they are touched.
	require.NoError(t, l.Check("key-0"))
	stats := l.Stats()
	assert.LessOrEqual(t, stats.UniqueKeys, 10)
}

func TestLimiter_Concurrency(t *testing.T) {
	l, _ := newTestLimiter(100, time.Minute)

	var wg sync.WaitGroup
	var allowed sync.Map
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := l.Check("shared"); err == nil {
				allowed.Store(n, true)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	allowed.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 100, count, "exactly the budget is admitted under contention")
}

package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

func newTestCache(t *testing.T, cfg config.CacheConfig) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithClient(client, cfg, logger), mr
}

func testPlan() *models.Plan {
	return &models.Plan{
		SQL:         "SELECT region FROM sales_fact LIMIT 200",
		Confidence:  0.92,
		Explanation: "Lists regions",
		Source:      models.SourceLLM,
	}
}

func TestCache_SetThenGet(t *testing.T) {
	m, _ := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, m.Set(ctx, "show revenue", testPlan()))

	got := m.Get(ctx, "show revenue")
	require.NotNil(t, got)
	assert.Equal(t, "SELECT region FROM sales_fact LIMIT 200", got.SQL)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
}

func TestCache_MissOnUnknownQuestion(t *testing.T) {
	m, _ := newTestCache(t, config.CacheConfig{TTL: time.Minute})

	assert.Nil(t, m.Get(context.Background(), "never seen"))

	stats := m.Stats()
	assert.Equal(t, uint64(0), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_KeyNormalization(t *testing.T) {
	m, _ := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, m.Set(ctx, "Show Revenue", testPlan()))
	assert.NotNil(t, m.Get(ctx, "  show revenue  "), "case and padding share one entry")
	assert.NotNil(t, m.Get(ctx, "Show  REVENUE"), "internal whitespace runs share one entry")
	assert.Equal(t, Key("show revenue by region"), Key("Show  REVENUE  by region"))
}

func TestCache_EntriesExpire(t *testing.T) {
	m, mr := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, m.Set(ctx, "show revenue", testPlan()))
	mr.FastForward(61 * time.Second)

	assert.Nil(t, m.Get(ctx, "show revenue"))
}

func TestCache_OversizedValueSkipped(t *testing.T) {
	m, _ := newTestCache(t, config.CacheConfig{TTL: time.Minute, MaxValueBytes: 32})
	ctx := context.Background()

	assert.False(t, m.Set(ctx, "show revenue", testPlan()))
	assert.Nil(t, m.Get(ctx, "show revenue"))
}

func TestCache_CorruptEntryDropped(t *testing.T) {
	m, mr := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, mr.Set(Key("show revenue"), "{not json"))

	assert.Nil(t, m.Get(ctx, "show revenue"))
	assert.Equal(t, uint64(1), m.Stats().Errors)
	// The corrupt value is gone.
	assert.False(t, mr.Exists(Key("show revenue")))
}

func TestCache_BackendOutageIsMiss(t *testing.T) {
	m, mr := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, m.Set(ctx, "show revenue", testPlan()))
	mr.Close()

	assert.Nil(t, m.Get(ctx, "show revenue"))
	assert.False(t, m.Set(ctx, "other question", testPlan()))
	assert.GreaterOrEqual(t, m.Stats().Errors, uint64(2))
}

func TestCache_DisabledManagerAlwaysMisses(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewWithClient(nil, config.CacheConfig{TTL: time.Minute}, logger)

	assert.False(t, m.Enabled())
	assert.Nil(t, m.Get(context.Background(), "q"))
	assert.False(t, m.Set(context.Background(), "q", testPlan()))
}

func TestCache_Delete(t *testing.T) {
	m, _ := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, m.Set(ctx, "show revenue", testPlan()))
	m.Delete(ctx, "show revenue")
	assert.Nil(t, m.Get(ctx, "show revenue"))
}

func TestCache_Stats(t *testing.T) {
	m, _ := newTestCache(t, config.CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	m.Set(ctx, "a", testPlan())
	m.Get(ctx, "a")
	m.Get(ctx, "a")
	m.Get(ctx, "b")

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Sets)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

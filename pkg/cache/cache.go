// Package cache implements the Redis-backed short-term plan cache.
//
// Only validated plans are cached; failures are never stored so they can be
// retried. Redis being down degrades to a permanent miss, it never fails a
// request.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Manager caches validated plans keyed by a hash of the normalized question.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int
	logger *slog.Logger

	mu     sync.Mutex
	hits   uint64
	misses uint64
	sets   uint64
	errors uint64
}

// New connects to Redis and returns a cache manager. A failed connection is
// reported but not fatal: the returned manager answers every lookup with a
// miss until Redis comes back.
func New(ctx context.Context, redisCfg config.RedisConfig, cacheCfg config.CacheConfig, logger *slog.Logger) *Manager {
	m := &Manager{
		ttl:    cacheCfg.TTL,
		maxLen: cacheCfg.MaxValueBytes,
		logger: logger.With("component", "cache"),
	}
	if m.ttl <= 0 {
		m.ttl = 30 * time.Minute
	}
	if m.maxLen <= 0 {
		m.maxLen = 1 << 20
	}

	opts, err := redis.ParseURL(redisCfg.URL)
	if err != nil {
		m.logger.Warn("Invalid Redis URL, short-term cache disabled", "error", err)
		return m
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		m.logger.Warn("Redis unreachable, short-term cache disabled", "error", err)
		_ = client.Close()
		return m
	}

	m.client = client
	m.logger.Info("Short-term cache connected", "ttl", m.ttl)
	return m
}

// NewWithClient wraps an existing Redis client. Used by tests with miniredis.
func NewWithClient(client *redis.Client, cacheCfg config.CacheConfig, logger *slog.Logger) *Manager {
	m := &Manager{
		client: client,
		ttl:    cacheCfg.TTL,
		maxLen: cacheCfg.MaxValueBytes,
		logger: logger.With("component", "cache"),
	}
	if m.ttl <= 0 {
		m.ttl = 30 * time.Minute
	}
	if m.maxLen <= 0 {
		m.maxLen = 1 << 20
	}
	return m
}

// Enabled reports whether a Redis backend is attached.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Get returns the cached plan for a question, or nil on miss. Backend errors
// count as misses.
func (m *Manager) Get(ctx context.Context, question string) *models.Plan {
	if m.client == nil {
		m.count(&m.misses)
		return nil
	}

	raw, err := m.client.Get(ctx, Key(question)).Result()
	if err == redis.Nil {
		m.count(&m.misses)
		return nil
	}
	if err != nil {
		m.count(&m.errors)
		m.logger.Warn("Cache lookup failed", "error", err)
		return nil
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		m.count(&m.errors)
		m.logger.Warn("Cache entry corrupt, dropping", "error", err)
		_ = m.client.Del(ctx, Key(question)).Err()
		return nil
	}

	m.count(&m.hits)
	return &plan
}

// Set stores a validated plan under the question's key. Oversized values and
// backend errors are skipped silently.
func (m *Manager) Set(ctx context.Context, question string, plan *models.Plan) bool {
	if m.client == nil || plan == nil {
		return false
	}

	value, err := json.Marshal(plan)
	if err != nil {
		m.count(&m.errors)
		return false
	}
	if len(value) > m.maxLen {
		m.count(&m.sets)
		m.logger.Warn("Plan too large for cache, skipping", "bytes", len(value), "max", m.maxLen)
		return false
	}

	if err := m.client.Set(ctx, Key(question), value, m.ttl).Err(); err != nil {
		m.count(&m.errors)
		m.logger.Warn("Cache write failed", "error", err)
		return false
	}
	m.count(&m.sets)
	return true
}

// Delete removes the cached plan for a question.
func (m *Manager) Delete(ctx context.Context, question string) {
	if m.client == nil {
		return
	}
	if err := m.client.Del(ctx, Key(question)).Err(); err != nil {
		m.count(&m.errors)
	}
}

// Close releases the Redis connection.
func (m *Manager) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Stats is a point-in-time snapshot for monitoring.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns a monitoring snapshot.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Hits: m.hits, Misses: m.misses, Sets: m.sets, Errors: m.errors}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (m *Manager) count(field *uint64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

// Key derives the namespaced cache key for a question. Normalization lives
// in models.QueryHash so this tier and the history tier agree on what "the
// same question" means.
func Key(question string) string {
	return "sql:" + models.QueryHash(question)
}

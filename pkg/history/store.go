// Package history implements the long-retention query history store.
//
// The store maps a hash of the natural-language question to the validated
// SQL that answered it, with a per-row retention deadline. It is the second
// cache tier: slower than Redis but durable, and it survives cache flushes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Store reads and writes query_history rows.
type Store struct {
	db            *sqlx.DB
	retentionDays int
	logger        *slog.Logger
}

// New creates a history store.
func New(db *sqlx.DB, cfg config.HistoryConfig, logger *slog.Logger) *Store {
	days := cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	return &Store{
		db:            db,
		retentionDays: days,
		logger:        logger.With("component", "history"),
	}
}

// Hash derives the history key for a question. It is the same normalized
// hash the Redis tier keys on, minus that tier's namespace prefix.
func Hash(question string) string {
	return models.QueryHash(question)
}

const lookupColumns = `query_hash, natural_language_query, generated_sql, confidence,
	row_count, execution_time_ms, tokens_input, tokens_output, cost_usd,
	user_id, correlation_id, created_at, last_used_at, use_count, expires_at`

// Lookup returns the non-expired history entry for a question, or nil when
// there is none. A hit atomically bumps use_count and last_used_at as part of
// the same statement, so concurrent lookups never lose an increment.
func (s *Store) Lookup(ctx context.Context, question string) (*models.HistoryEntry, error) {
	query := fmt.Sprintf(`
		UPDATE query_history
		SET use_count = use_count + 1, last_used_at = CURRENT_TIMESTAMP
		WHERE query_hash = $1 AND expires_at > CURRENT_TIMESTAMP
		RETURNING %s`, lookupColumns)

	var entry models.HistoryEntry
	err := s.db.GetContext(ctx, &entry, query, Hash(question))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}
	return &entry, nil
}

// Store upserts a successful query. A new question inserts a fresh row; a
// repeat keeps the first validated SQL, bumps use_count, and pushes the
// retention deadline out.
func (s *Store) Store(ctx context.Context, entry *models.HistoryEntry) error {
	expiresAt := time.Now().UTC().Add(time.Duration(s.retentionDays) * 24 * time.Hour)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (
			query_hash, natural_language_query, generated_sql, confidence,
			row_count, execution_time_ms, tokens_input, tokens_output,
			cost_usd, user_id, correlation_id,
			created_at, last_used_at, use_count, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, 1, $12)
		ON CONFLICT (query_hash) DO UPDATE SET
			last_used_at = CURRENT_TIMESTAMP,
			use_count = query_history.use_count + 1,
			expires_at = EXCLUDED.expires_at`,
		Hash(entry.NaturalLanguage), entry.NaturalLanguage, entry.GeneratedSQL,
		entry.Confidence, entry.RowCount, entry.ExecutionTimeMs,
		entry.TokensIn, entry.TokensOut, entry.CostUSD,
		entry.UserID, entry.CorrelationID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s FROM query_history
		ORDER BY created_at DESC
		LIMIT $1`, lookupColumns)

	entries := []models.HistoryEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	return entries, nil
}

// Cleanup deletes rows past their retention deadline and returns how many
// were removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_history WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Expired history entries removed", "count", deleted)
	}
	return deleted, nil
}

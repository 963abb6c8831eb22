package history

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(sqlx.NewDb(db, "pgx"), config.HistoryConfig{RetentionDays: 30}, logger), mock
}

func entryColumns() []string {
	return []string{
		"query_hash", "natural_language_query", "generated_sql", "confidence",
		"row_count", "execution_time_ms", "tokens_input", "tokens_output",
		"cost_usd", "user_id", "correlation_id", "created_at", "last_used_at",
		"use_count", "expires_at",
	}
}

func TestHash_NormalizesQuestion(t *testing.T) {
	assert.Equal(t, Hash("Show Revenue"), Hash("  show revenue  "))
	assert.Equal(t, Hash("show revenue by region"), Hash("Show  REVENUE \t by region"))
	assert.NotEqual(t, Hash("show revenue"), Hash("show costs"))
	assert.Len(t, Hash("q"), 64)
}

func TestStore_LookupHitBumpsUseCount(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(entryColumns()).AddRow(
		Hash("show revenue"), "show revenue",
		"SELECT region FROM sales_fact LIMIT 200", 0.92,
		3, 45, 120, 40, 0.0021, "u1", "corr-1",
		now.Add(-time.Hour), now, 5, now.Add(24*time.Hour),
	)
	mock.ExpectQuery(`UPDATE query_history\s+SET use_count = use_count \+ 1`).
		WithArgs(Hash("show revenue")).
		WillReturnRows(rows)

	entry, err := store.Lookup(context.Background(), "Show Revenue")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "SELECT region FROM sales_fact LIMIT 200", entry.GeneratedSQL)
	assert.Equal(t, 5, entry.UseCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LookupMissReturnsNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE query_history`).
		WithArgs(Hash("unknown question")).
		WillReturnRows(sqlmock.NewRows(entryColumns()))

	entry, err := store.Lookup(context.Background(), "unknown question")
	require.NoError(t, err)
	assert.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LookupErrorSurfaces(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE query_history`).
		WillReturnError(assert.AnError)

	_, err := store.Lookup(context.Background(), "q")
	require.Error(t, err)
}

func TestStore_StoreUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO query_history .+ ON CONFLICT \(query_hash\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Store(context.Background(), &models.HistoryEntry{
		NaturalLanguage: "show revenue",
		GeneratedSQL:    "SELECT region FROM sales_fact LIMIT 200",
		Confidence:      0.92,
		RowCount:        3,
		ExecutionTimeMs: 45,
		TokensIn:        120,
		TokensOut:       40,
		CostUSD:         0.0021,
		UserID:          "u1",
		CorrelationID:   "corr-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Recent(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(entryColumns()).
		AddRow(Hash("a"), "a", "SELECT 1 LIMIT 1", 0.9, 1, 5, 0, 0, 0.0, "", "",
			now, now, 1, now.Add(24*time.Hour)).
		AddRow(Hash("b"), "b", "SELECT 2 LIMIT 1", 0.8, 1, 6, 0, 0, 0.0, "", "",
			now.Add(-time.Hour), now, 2, now.Add(24*time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM query_history\s+ORDER BY created_at DESC`).
		WithArgs(2).
		WillReturnRows(rows)

	entries, err := store.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].NaturalLanguage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Cleanup(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM query_history WHERE expires_at <= CURRENT_TIMESTAMP`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := store.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Package executor runs validator-approved SQL against the read-only store.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Executor materializes query results into the wire contract: arbitrary
// precision numerics become float64 and timestamps become RFC 3339 strings.
// It never sees SQL that has not passed the safety validator.
type Executor struct {
	db *sqlx.DB
}

// New creates an executor over the given database handle.
func New(db *sqlx.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs sanitizedSQL and returns the shaped result. Row volume is
// bounded by the LIMIT clause the validator guaranteed.
func (e *Executor) Execute(ctx context.Context, sanitizedSQL string) (*models.ExecutionResult, error) {
	rows, err := e.db.QueryContext(ctx, sanitizedSQL)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyError(err)
	}

	result := &models.ExecutionResult{
		Columns: columns,
		Rows:    [][]any{},
	}

	scanned := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range scanned {
		ptrs[i] = &scanned[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifyError(err)
		}
		row := make([]any, len(columns))
		for i, v := range scanned {
			row[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue converts driver scalars into JSON-safe values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		// NUMERIC columns arrive as text; prefer float64 for the wire contract.
		s := string(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	default:
		return val
	}
}

// classifyError maps driver failures onto the taxonomy: permission problems
// are not retryable, transport problems are.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.NewTimeoutError("query execution exceeded deadline").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return errs.NewExecutionError("query execution cancelled", false).WithCause(err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errs.NewExecutionError("database connection closed", true).WithCause(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 42 (syntax/access rule, incl. 42501 insufficient_privilege)
		// and class 28 (invalid authorization) need operator action.
		if strings.HasPrefix(pgErr.Code, "42") || strings.HasPrefix(pgErr.Code, "28") {
			return errs.NewExecutionError(
				fmt.Sprintf("query rejected by database: %s", pgErr.Message), false,
			).WithCause(err).WithDetail("sqlstate", pgErr.Code)
		}
	}

	return errs.NewExecutionError(fmt.Sprintf("query failed: %v", err), true).WithCause(err)
}

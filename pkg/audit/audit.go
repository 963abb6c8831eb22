// Package audit writes the append-only audit trail.
//
// Every core operation produces exactly one audit row. Inputs and outputs are
// canonicalized to stable JSON and stored only as SHA-256 hashes; no
// plaintext query or result ever reaches audit storage. Audit failures are
// logged and never fail the operation they describe.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Sink records audit rows into the audit_log table.
type Sink struct {
	db *sqlx.DB
}

// NewSink creates an audit sink over the given database handle.
func NewSink(db *sqlx.DB) *Sink {
	return &Sink{db: db}
}

// HashData canonicalizes v to JSON with sorted keys and returns the SHA-256
// hex digest. Semantically equal inputs produce identical hashes.
func HashData(v any) string {
	// encoding/json sorts map keys, so marshaling through a generic value
	// yields a stable byte sequence for hashing.
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(`"unserializable"`)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err == nil {
		if canonical, err := json.Marshal(generic); err == nil {
			raw = canonical
		}
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Record inserts one append-only audit row. Errors are returned for callers
// that want to log them, but the expected policy is log-and-continue.
func (s *Sink) Record(ctx context.Context, rec models.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			ts, correlation_id, user_id, tool, action,
			input_hash, output_hash, success, duration_ms,
			tokens_input, tokens_output, cost_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.Timestamp, rec.CorrelationID, nullable(rec.UserID), rec.Tool, rec.Action,
		rec.InputHash, rec.OutputHash, rec.Success, rec.DurationMs,
		rec.TokensIn, rec.TokensOut, rec.CostUSD,
	)
	return err
}

// Operation is a scoped audit capture: it times the enclosed work and
// guarantees a record on every exit path via Finish.
type Operation struct {
	sink          *Sink
	correlationID string
	userID        string
	action        string
	inputHash     string
	started       time.Time

	output   any
	success  bool
	usage    models.Usage
	finished bool
}

// Begin starts a scoped audit operation, hashing the input immediately.
func (s *Sink) Begin(correlationID, userID, action string, input any) *Operation {
	return &Operation{
		sink:          s,
		correlationID: correlationID,
		userID:        userID,
		action:        action,
		inputHash:     HashData(input),
		started:       time.Now(),
	}
}

// SetAction renames the operation, for flows that reclassify mid-request
// (a query that turns into a clarification, for instance).
func (op *Operation) SetAction(action string) {
	op.action = action
}

// Succeed marks the operation successful and captures its output and usage.
func (op *Operation) Succeed(output any, usage models.Usage) {
	op.output = output
	op.usage = usage
	op.success = true
}

// Fail captures a failure output. The record keeps success=false.
func (op *Operation) Fail(output any) {
	op.output = output
	op.success = false
}

// Finish writes the audit row. Safe to defer; idempotent.
func (op *Operation) Finish(ctx context.Context) {
	if op.finished {
		return
	}
	op.finished = true

	output := op.output
	if output == nil {
		output = map[string]any{"error": "operation failed"}
	}

	rec := models.AuditRecord{
		Timestamp:     time.Now().UTC(),
		CorrelationID: op.correlationID,
		UserID:        op.userID,
		Tool:          "sql",
		Action:        op.action,
		InputHash:     op.inputHash,
		OutputHash:    HashData(output),
		Success:       op.success,
		DurationMs:    time.Since(op.started).Milliseconds(),
		TokensIn:      op.usage.InputTokens,
		TokensOut:     op.usage.OutputTokens,
		CostUSD:       op.usage.CostUSD,
	}

	if err := op.sink.Record(ctx, rec); err != nil {
		// Availability wins over observability.
		slog.Error("Audit write failed",
			"correlation_id", op.correlationID,
			"action", op.action,
			"error", err)
	}
}

// GetRecords returns recent audit rows, optionally filtered by correlation ID.
func (s *Sink) GetRecords(ctx context.Context, correlationID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.AuditRecord
	var err error
	if correlationID != "" {
		err = s.db.SelectContext(ctx, &records, `
			SELECT id, ts, correlation_id, COALESCE(user_id, '') AS user_id, tool, action,
			       input_hash, output_hash, success, duration_ms,
			       tokens_input, tokens_output, cost_usd
			FROM audit_log
			WHERE correlation_id = $1
			ORDER BY ts DESC
			LIMIT $2`, correlationID, limit)
	} else {
		err = s.db.SelectContext(ctx, &records, `
			SELECT id, ts, correlation_id, COALESCE(user_id, '') AS user_id, tool, action,
			       input_hash, output_hash, success, duration_ms,
			       tokens_input, tokens_output, cost_usd
			FROM audit_log
			ORDER BY ts DESC
			LIMIT $1`, limit)
	}
	return records, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

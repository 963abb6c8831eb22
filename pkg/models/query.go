// Package models defines the shared request, plan, result, and record types
// exchanged between the router's components.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// QueryHash returns the canonical SHA-256 hash of a natural-language
// question. Case, surrounding space, and runs of internal whitespace are all
// insignificant, so rephrasings that differ only in spacing share one hash.
// Both cache tiers key on this value.
func QueryHash(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// PlanSource identifies where a validated plan came from.
type PlanSource string

const (
	SourceLLM        PlanSource = "llm"
	SourceHistory    PlanSource = "history"
	SourceShortCache PlanSource = "short_cache"
	SourceRaw        PlanSource = "raw"
)

// QueryRequest is the inbound envelope from the transport layer.
type QueryRequest struct {
	Query         string `json:"query" binding:"required,min=1,max=4000"`
	UserID        string `json:"user_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	BypassCache   bool   `json:"bypass_cache,omitempty"`
}

// Plan is a validated intent to execute. Immutable once produced.
type Plan struct {
	SQL         string     `json:"sql"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
	Source      PlanSource `json:"source"`
}

// ExecutionResult is the tabular outcome of a validated query.
// Decimals are normalized to float64 and timestamps to RFC 3339 strings
// before the result leaves the executor.
type ExecutionResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// Usage reports LLM token consumption and estimated cost for one call.
type Usage struct {
	InputTokens  int     `json:"tokens_in"`
	OutputTokens int     `json:"tokens_out"`
	CostUSD      float64 `json:"cost_usd"`
}

// Notes values surfaced on successful responses.
const (
	NoteLowConfidence      = "low_confidence"
	NoteCacheHit           = "cache_hit"
	NoteHistoryReuse       = "history_reuse"
	NoteHistoryWriteFailed = "history_write_failed"
)

// QueryResponse is the outbound success envelope.
type QueryResponse struct {
	ToolUsed   string           `json:"tool_used"`
	Confidence float64          `json:"confidence"`
	Plan       *Plan            `json:"plan,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	TraceID    string           `json:"trace_id"`
	TokensIn   int              `json:"tokens_in"`
	TokensOut  int              `json:"tokens_out"`
	CostUSD    float64          `json:"cost_usd"`
	Notes      string           `json:"notes,omitempty"`
}

// AuditRecord is one append-only audit row. Input and output are stored as
// SHA-256 hashes of their canonicalized content; no plaintext survives.
type AuditRecord struct {
	ID            int64     `db:"id" json:"id"`
	Timestamp     time.Time `db:"ts" json:"ts"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Tool          string    `db:"tool" json:"tool"`
	Action        string    `db:"action" json:"action"`
	InputHash     string    `db:"input_hash" json:"input_hash"`
	OutputHash    string    `db:"output_hash" json:"output_hash"`
	Success       bool      `db:"success" json:"success"`
	DurationMs    int64     `db:"duration_ms" json:"duration_ms"`
	TokensIn      int       `db:"tokens_input" json:"tokens_input"`
	TokensOut     int       `db:"tokens_output" json:"tokens_output"`
	CostUSD       float64   `db:"cost_usd" json:"cost_usd"`
}

// HistoryEntry is one long-retention (query → validated SQL) mapping.
type HistoryEntry struct {
	QueryHash       string    `db:"query_hash" json:"query_hash"`
	NaturalLanguage string    `db:"natural_language_query" json:"natural_language_query"`
	GeneratedSQL    string    `db:"generated_sql" json:"generated_sql"`
	Confidence      float64   `db:"confidence" json:"confidence"`
	RowCount        int       `db:"row_count" json:"row_count"`
	ExecutionTimeMs int64     `db:"execution_time_ms" json:"execution_time_ms"`
	TokensIn        int       `db:"tokens_input" json:"tokens_input"`
	TokensOut       int       `db:"tokens_output" json:"tokens_output"`
	CostUSD         float64   `db:"cost_usd" json:"cost_usd"`
	UserID          string    `db:"user_id" json:"user_id"`
	CorrelationID   string    `db:"correlation_id" json:"correlation_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	LastUsedAt      time.Time `db:"last_used_at" json:"last_used_at"`
	UseCount        int       `db:"use_count" json:"use_count"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
}

// Package planner turns natural-language questions into SQL plans.
//
// The planner proposes, it never approves: every plan it returns still goes
// through the safety validator before anything touches the database. Lookup
// order is the short-term cache, then query history, then the LLM behind the
// circuit breaker.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holdersav20001/enterprise-tool-router/pkg/cache"
	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/history"
	"github.com/holdersav20001/enterprise-tool-router/pkg/llm"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
	"github.com/holdersav20001/enterprise-tool-router/pkg/resilience"
)

// Planner generates SQL plans from natural language.
type Planner struct {
	provider llm.Provider
	breaker  *resilience.Breaker
	cache    *cache.Manager
	history  *history.Store
	logger   *slog.Logger
}

// New creates a planner. The provider should already carry its per-call
// timeout; the planner adds the breaker and the two cache tiers.
func New(provider llm.Provider, breaker *resilience.Breaker, cacheMgr *cache.Manager, hist *history.Store, logger *slog.Logger) *Planner {
	return &Planner{
		provider: provider,
		breaker:  breaker,
		cache:    cacheMgr,
		history:  hist,
		logger:   logger.With("component", "planner"),
	}
}

// ModelName reports the underlying model.
func (p *Planner) ModelName() string {
	return p.provider.ModelName()
}

// Plan produces a SQL plan for the question. With bypass set, both cache
// tiers are skipped on the read side and the LLM is always consulted. The
// planner never writes an LLM plan to either tier; that is the caller's job
// once validation and execution have succeeded. The one write it does make
// is warming the short-term cache from a history hit, since that SQL was
// already proven in a previous request.
//
// Usage is zero unless the LLM was actually called.
func (p *Planner) Plan(ctx context.Context, question string, bypass bool) (*models.Plan, models.Usage, error) {
	if !bypass {
		if plan := p.cache.Get(ctx, question); plan != nil {
			p.logger.Debug("Plan served from short-term cache")
			hit := *plan
			hit.Source = models.SourceShortCache
			return &hit, models.Usage{}, nil
		}

		entry, err := p.history.Lookup(ctx, question)
		if err != nil {
			// History is an optimization; a read failure falls through to
			// the LLM rather than failing the request.
			p.logger.Warn("History lookup failed, falling through to LLM", "error", err)
		} else if entry != nil {
			p.logger.Debug("Plan served from query history", "use_count", entry.UseCount)
			plan := &models.Plan{
				SQL:         entry.GeneratedSQL,
				Confidence:  entry.Confidence,
				Explanation: "Reused validated SQL from query history",
				Source:      models.SourceHistory,
			}
			// Warm the faster tier so the next repeat skips Postgres.
			p.cache.Set(ctx, question, plan)
			return plan, models.Usage{}, nil
		}
	}

	if err := p.breaker.Allow(); err != nil {
		return nil, models.Usage{}, err
	}

	out, usage, err := p.provider.GenerateStructured(ctx, BuildPrompt(question))
	if err != nil {
		p.breaker.RecordFailure()
		return nil, usage, p.classifyFailure(err)
	}
	p.breaker.RecordSuccess()

	// The caller persists LLM plans only after validation and execution
	// succeed, so nothing unproven lands in either tier from here.
	return &models.Plan{
		SQL:         out.SQL,
		Confidence:  out.Confidence,
		Explanation: out.Explanation,
		Source:      models.SourceLLM,
	}, usage, nil
}

// classifyFailure maps provider failures onto the taxonomy. Already-typed
// errors pass through unchanged so timeout and schema failures keep their
// categories.
func (p *Planner) classifyFailure(err error) error {
	if _, ok := errs.As(err); ok {
		return err
	}
	return errs.NewPlannerError(fmt.Sprintf("SQL generation failed: %v", err), true).WithCause(err)
}

// schemaDescription tells the model which tables and columns exist. Kept in
// sync with the migration by hand; the validator still rejects anything
// outside the allowlist regardless of what the model was told.
const schemaDescription = `Available Tables:

1. sales_fact
   - id: integer (primary key)
   - region: varchar(50) - Geographic region (e.g., "North America", "Europe")
   - quarter: varchar(10) - Quarter identifier (e.g., "Q1", "Q2", "Q3", "Q4")
   - revenue: decimal(12,2) - Revenue amount in USD
   - units_sold: integer - Number of units sold
   - created_at: timestamp - Record creation timestamp

2. job_runs
   - id: integer (primary key)
   - job_name: varchar(100) - Name of the ETL job
   - status: varchar(20) - Job status: 'success', 'failure', or 'running'
   - started_at: timestamp - Job start time
   - completed_at: timestamp - Job completion time (null if running)
   - records_processed: integer - Number of records processed

3. audit_log (read-only)
   - id: integer (primary key)
   - ts: timestamp - Timestamp of the operation
   - correlation_id: varchar(64) - Correlation ID for tracking
   - user_id: varchar(128) - User who performed the operation
   - tool: varchar(32) - Tool used (e.g., "sql", "vector", "rest")
   - action: varchar(64) - Action performed
   - input_hash: varchar(64) - SHA256 hash of input
   - output_hash: varchar(64) - SHA256 hash of output
   - success: boolean - Whether operation succeeded
   - duration_ms: integer - Duration in milliseconds

Allowed Tables: sales_fact, job_runs, audit_log`

// BuildPrompt assembles the full generation prompt for a question.
func BuildPrompt(question string) string {
	return fmt.Sprintf(`You are a SQL query generator for a PostgreSQL database.

DATABASE SCHEMA:
%s

SAFETY RULES (CRITICAL):
1. You MUST include a LIMIT clause in every query (default: LIMIT 200)
2. Only use SELECT statements (no INSERT, UPDATE, DELETE, DROP, etc.)
3. Only query the allowed tables listed above
4. Use proper SQL syntax for PostgreSQL

USER QUERY:
%s

TASK:
Generate a safe SQL query that answers the user's question.

REQUIREMENTS:
- Return valid PostgreSQL SELECT query
- Include LIMIT clause (required for safety)
- Provide confidence score (0.0-1.0) based on query clarity
- Explain what the SQL does in plain English

If the query is unclear or cannot be safely translated to SQL, use a low confidence score (<0.7) and explain why in the explanation field.`,
		schemaDescription, question)
}

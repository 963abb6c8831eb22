package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/holdersav20001/enterprise-tool-router/pkg/audit"
	"github.com/holdersav20001/enterprise-tool-router/pkg/cache"
	"github.com/holdersav20001/enterprise-tool-router/pkg/executor"
	"github.com/holdersav20001/enterprise-tool-router/pkg/history"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
	"github.com/holdersav20001/enterprise-tool-router/pkg/planner"
	"github.com/holdersav20001/enterprise-tool-router/pkg/ratelimit"
	"github.com/holdersav20001/enterprise-tool-router/pkg/safety"
)

// sqlVerbs mark a query as raw SQL rather than natural language. The list
// deliberately includes forbidden verbs so that "DROP TABLE x" is classified
// as SQL and rejected by the validator instead of being handed to the LLM.
var sqlVerbs = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE",
	"ALTER", "TRUNCATE", "GRANT", "REVOKE", "WITH", "COPY",
}

// SQLTool answers questions against the read-only warehouse. It owns the
// request lifecycle: admission, classification, planning, validation,
// execution, persistence, and audit.
type SQLTool struct {
	limiter   *ratelimit.Limiter
	validator *safety.Validator
	planner   *planner.Planner
	executor  *executor.Executor
	cache     *cache.Manager
	history   *history.Store
	audit     *audit.Sink

	confidenceThreshold float64
	logger              *slog.Logger
}

// SQLToolDeps bundles the collaborators the tool is built from.
type SQLToolDeps struct {
	Limiter             *ratelimit.Limiter
	Validator           *safety.Validator
	Planner             *planner.Planner
	Executor            *executor.Executor
	Cache               *cache.Manager
	History             *history.Store
	Audit               *audit.Sink
	ConfidenceThreshold float64
	Logger              *slog.Logger
}

// NewSQLTool creates the SQL tool.
func NewSQLTool(deps SQLToolDeps) *SQLTool {
	threshold := deps.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	return &SQLTool{
		limiter:             deps.Limiter,
		validator:           deps.Validator,
		planner:             deps.Planner,
		executor:            deps.Executor,
		cache:               deps.Cache,
		history:             deps.History,
		audit:               deps.Audit,
		confidenceThreshold: threshold,
		logger:              deps.Logger.With("component", "sql_tool"),
	}
}

// Name implements Tool.
func (t *SQLTool) Name() string { return "sql" }

// IsRawSQL reports whether the query text is SQL rather than natural
// language, judged by its leading verb.
func IsRawSQL(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, verb := range sqlVerbs {
		if strings.HasPrefix(upper, verb) {
			return true
		}
	}
	return false
}

// Run implements Tool. A returned error is always a typed *errs.Error; the
// transport layer maps it onto the error envelope. Exactly one audit record
// is written per call, on every exit path.
func (t *SQLTool) Run(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := t.logger.With("correlation_id", correlationID)

	op := t.audit.Begin(correlationID, req.UserID, "query", map[string]any{
		"query":        req.Query,
		"bypass_cache": req.BypassCache,
	})
	defer op.Finish(ctx)

	limitKey := req.UserID
	if limitKey == "" {
		limitKey = "anonymous"
	}
	if err := t.limiter.Check(limitKey); err != nil {
		logger.Warn("Request rejected by rate limiter", "key", limitKey)
		op.Fail(errorOutput(err))
		return nil, err
	}

	var (
		plan  *models.Plan
		usage models.Usage
	)
	if IsRawSQL(req.Query) {
		plan = &models.Plan{
			SQL:        req.Query,
			Confidence: 1.0,
			Source:     models.SourceRaw,
		}
	} else {
		var err error
		plan, usage, err = t.planner.Plan(ctx, req.Query, req.BypassCache)
		if err != nil {
			logger.Warn("Planning failed", "error", err)
			op.Fail(errorOutput(err))
			return nil, err
		}
	}

	// Confidence gate. Below the threshold the candidate SQL is returned
	// for the user to confirm, unexecuted and unpersisted.
	if plan.Confidence < t.confidenceThreshold {
		logger.Info("Plan below confidence threshold, asking for clarification",
			"confidence", plan.Confidence, "threshold", t.confidenceThreshold)
		resp := &models.QueryResponse{
			ToolUsed:   t.Name(),
			Confidence: plan.Confidence,
			Plan:       plan,
			TraceID:    correlationID,
			TokensIn:   usage.InputTokens,
			TokensOut:  usage.OutputTokens,
			CostUSD:    usage.CostUSD,
			Notes:      models.NoteLowConfidence,
		}
		op.SetAction("clarification")
		op.Succeed(map[string]any{
			"candidate_sql": plan.SQL,
			"confidence":    plan.Confidence,
		}, usage)
		return resp, nil
	}

	// Every plan is validated here, whatever its source. A poisoned cache
	// or history entry dies on this line, not in the database.
	sanitized, err := t.validator.Validate(plan.SQL)
	if err != nil {
		logger.Warn("Plan rejected by validator", "source", plan.Source, "error", err)
		op.Fail(errorOutput(err))
		return nil, err
	}
	plan.SQL = sanitized

	execStart := time.Now()
	result, err := t.executor.Execute(ctx, sanitized)
	execMs := time.Since(execStart).Milliseconds()
	if err != nil {
		logger.Error("Query execution failed", "error", err)
		op.Fail(errorOutput(err))
		return nil, err
	}

	notes := t.persist(ctx, req, plan, result, usage, execMs, correlationID, logger)

	op.Succeed(map[string]any{
		"columns":   result.Columns,
		"rows":      result.Rows,
		"row_count": result.RowCount,
	}, usage)

	logger.Info("Query served",
		"source", plan.Source,
		"row_count", result.RowCount,
		"duration_ms", execMs)

	return &models.QueryResponse{
		ToolUsed:   t.Name(),
		Confidence: plan.Confidence,
		Plan:       plan,
		Result:     result,
		TraceID:    correlationID,
		TokensIn:   usage.InputTokens,
		TokensOut:  usage.OutputTokens,
		CostUSD:    usage.CostUSD,
		Notes:      notes,
	}, nil
}

// persist writes the proven plan to the history store and the short-term
// cache per the source rules, and returns the response notes. Only the
// post-validation SQL is ever stored.
func (t *SQLTool) persist(
	ctx context.Context,
	req models.QueryRequest,
	plan *models.Plan,
	result *models.ExecutionResult,
	usage models.Usage,
	execMs int64,
	correlationID string,
	logger *slog.Logger,
) string {
	var notes string
	switch plan.Source {
	case models.SourceShortCache:
		// Already in the fast tier; refreshing the TTL is not desired.
		return models.NoteCacheHit
	case models.SourceHistory:
		notes = models.NoteHistoryReuse
	case models.SourceRaw:
		// Raw SQL carries no natural-language key to store under.
		return ""
	}

	err := t.history.Store(ctx, &models.HistoryEntry{
		NaturalLanguage: req.Query,
		GeneratedSQL:    plan.SQL,
		Confidence:      plan.Confidence,
		RowCount:        result.RowCount,
		ExecutionTimeMs: execMs,
		TokensIn:        usage.InputTokens,
		TokensOut:       usage.OutputTokens,
		CostUSD:         usage.CostUSD,
		UserID:          req.UserID,
		CorrelationID:   correlationID,
	})
	if err != nil {
		// The user already has the result; the durable tier catches up on
		// the next ask.
		logger.Warn("History write failed", "error", err)
		return models.NoteHistoryWriteFailed
	}

	if plan.Source == models.SourceLLM && !req.BypassCache {
		t.cache.Set(ctx, req.Query, plan)
	}
	return notes
}

func errorOutput(err error) map[string]any {
	return map[string]any{"error": fmt.Sprintf("%v", err)}
}

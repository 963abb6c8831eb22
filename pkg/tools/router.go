package tools

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Router picks a tool for a query with a deterministic keyword heuristic and
// runs it. Anything that smells like data or SQL goes to the SQL tool;
// documentation questions go to vector; API questions go to REST.
type Router struct {
	tools map[string]Tool
}

// NewRouter creates a router over the given SQL tool and the stub tools.
func NewRouter(sqlTool *SQLTool) *Router {
	return &Router{
		tools: map[string]Tool{
			"sql":    sqlTool,
			"vector": VectorTool{},
			"rest":   RestTool{},
		},
	}
}

var (
	sqlHints    = []string{"select", "from", "group by", "revenue", "count", "sum", "sql"}
	vectorHints = []string{"runbook", "docs", "how do i", "procedure", "playbook", "doc"}
	restHints   = []string{"call api", "endpoint", "http", "status", "service", "api"}
)

// Route returns the chosen tool name and the heuristic's confidence in that
// choice. "unknown" means no hint matched.
func (r *Router) Route(query string) (string, float64) {
	q := strings.ToLower(query)
	if containsAny(q, sqlHints) || IsRawSQL(query) {
		return "sql", 0.75
	}
	if containsAny(q, vectorHints) {
		return "vector", 0.70
	}
	if containsAny(q, restHints) {
		return "rest", 0.70
	}
	return "unknown", 0.30
}

// Handle routes the request and runs the chosen tool. An unroutable query is
// a success-shaped response saying so, not an error.
func (r *Router) Handle(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	name, confidence := r.Route(req.Query)
	tool, ok := r.tools[name]
	if !ok {
		return &models.QueryResponse{
			ToolUsed:   "unknown",
			Confidence: confidence,
			TraceID:    req.CorrelationID,
			Notes:      "no_confident_tool_match",
		}, nil
	}
	return tool.Run(ctx, req)
}

func containsAny(s string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}

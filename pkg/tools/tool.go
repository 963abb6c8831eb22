// Package tools holds the router's executable tools and the heuristic that
// dispatches between them. The SQL tool is the fully built one; vector and
// REST are placeholders that answer honestly instead of failing.
package tools

import (
	"context"

	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Tool is one executable capability behind the router.
type Tool interface {
	Name() string
	Run(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error)
}

// VectorTool is a placeholder for document retrieval.
type VectorTool struct{}

func (VectorTool) Name() string { return "vector" }

func (VectorTool) Run(_ context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	return &models.QueryResponse{
		ToolUsed:   "vector",
		Confidence: 0.70,
		TraceID:    req.CorrelationID,
		Notes:      "not_implemented",
	}, nil
}

// RestTool is a placeholder for outbound API calls.
type RestTool struct{}

func (RestTool) Name() string { return "rest" }

func (RestTool) Run(_ context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	return &models.QueryResponse{
		ToolUsed:   "rest",
		Confidence: 0.70,
		TraceID:    req.CorrelationID,
		Notes:      "not_implemented",
	}, nil
}

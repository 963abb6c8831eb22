package llm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// MockProvider returns canned plans or errors without network calls.
// Required for deterministic tests and for running the router without
// vendor credentials.
type MockProvider struct {
	Plan    *PlanOutput
	Usage   models.Usage
	Err     error
	Latency time.Duration

	calls atomic.Int64
}

// NewMockProvider creates a mock that returns the given plan.
func NewMockProvider(plan *PlanOutput) *MockProvider {
	return &MockProvider{
		Plan:  plan,
		Usage: models.Usage{InputTokens: 100, OutputTokens: 50, CostUSD: 0.001},
	}
}

// ModelName implements Provider.
func (m *MockProvider) ModelName() string {
	return "mock-llm-v1"
}

// GenerateStructured implements Provider. It honors ctx so the timeout
// wrapper can be exercised against a slow mock.
func (m *MockProvider) GenerateStructured(ctx context.Context, _ string) (*PlanOutput, models.Usage, error) {
	m.calls.Add(1)

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, models.Usage{}, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, models.Usage{}, m.Err
	}
	return m.Plan, m.Usage, nil
}

// Calls reports how many times GenerateStructured ran.
func (m *MockProvider) Calls() int64 {
	return m.calls.Load()
}

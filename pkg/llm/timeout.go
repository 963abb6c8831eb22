package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// TimeoutProvider bounds every call to the wrapped provider with a wall-clock
// deadline. Overruns surface as the taxonomy's timeout error; the policy for
// what to do about it belongs to the planner, never to this wrapper.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps a provider with a per-call deadline.
func WithTimeout(inner Provider, timeout time.Duration) *TimeoutProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TimeoutProvider{inner: inner, timeout: timeout}
}

// ModelName implements Provider.
func (t *TimeoutProvider) ModelName() string {
	return t.inner.ModelName()
}

// GenerateStructured implements Provider.
func (t *TimeoutProvider) GenerateStructured(ctx context.Context, prompt string) (*PlanOutput, models.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, usage, err := t.inner.GenerateStructured(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, usage, errs.NewTimeoutError(
				fmt.Sprintf("LLM call exceeded %s timeout", t.timeout)).WithCause(err)
		}
		return nil, usage, err
	}
	return out, usage, nil
}

package llm

import (
	"fmt"
	"strings"

	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// NewProvider builds the configured vendor provider. The caller is expected
// to wrap the result with WithTimeout and a circuit breaker.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openrouter":
		return NewOpenRouterProvider(cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model)
	case "mock":
		return NewMockProvider(&PlanOutput{
			SQL:         "SELECT region, SUM(revenue) FROM sales_fact GROUP BY region LIMIT 200",
			Confidence:  0.9,
			Explanation: "Aggregates revenue by region",
		}), nil
	default:
		return nil, errs.NewConfigurationError(
			fmt.Sprintf("unknown LLM provider %q", cfg.Provider))
	}
}

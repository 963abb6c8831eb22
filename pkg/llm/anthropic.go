package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// AnthropicProvider calls the Anthropic Messages API through the official SDK.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider for the given model.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errs.NewConfigurationError("Anthropic API key is required")
	}
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_0)
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// ModelName returns the configured model identifier.
func (p *AnthropicProvider) ModelName() string {
	return p.model
}

// GenerateStructured implements Provider.
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, prompt string) (*PlanOutput, models.Usage, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.Usage{}, errs.NewTimeoutError("Anthropic request exceeded deadline").WithCause(err)
		}
		return nil, models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("Anthropic request failed: %v", err), true).WithCause(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, models.Usage{}, errs.NewStructuredOutputError("empty response from Anthropic")
	}

	usage := models.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		CostUSD:      estimateCost(p.model, int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)),
	}

	out, err := ParsePlanOutput(text)
	if err != nil {
		return nil, usage, err
	}
	return out, usage, nil
}

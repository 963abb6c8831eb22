package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider calls the OpenAI chat completions API. Cost is estimated
// from the per-model rate table since OpenAI does not return it.
type OpenAIProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIProvider creates a provider for the given model.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errs.NewConfigurationError("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultOpenAIEndpoint,
		client:   &http.Client{},
	}, nil
}

// SetEndpoint overrides the API endpoint (tests).
func (p *OpenAIProvider) SetEndpoint(url string) {
	p.endpoint = url
}

// ModelName returns the configured model identifier.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// GenerateStructured implements Provider.
func (p *OpenAIProvider) GenerateStructured(ctx context.Context, prompt string) (*PlanOutput, models.Usage, error) {
	payload := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "sql_plan",
				"strict": true,
				"schema": planJSONSchema,
			},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, models.Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, models.Usage{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.Usage{}, errs.NewTimeoutError("OpenAI request exceeded deadline").WithCause(err)
		}
		return nil, models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("OpenAI request failed: %v", err), true).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("failed to read OpenAI response: %v", err), true).WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("OpenAI returned status %d", resp.StatusCode),
			resp.StatusCode >= 500).WithDetail("body", string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, models.Usage{}, errs.NewStructuredOutputError(
			fmt.Sprintf("invalid OpenAI response envelope: %v", err)).WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return nil, models.Usage{}, errs.NewStructuredOutputError("empty response from OpenAI")
	}

	usage := models.Usage{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		CostUSD:      estimateCost(p.model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
	}

	out, err := ParsePlanOutput(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, usage, err
	}
	return out, usage, nil
}

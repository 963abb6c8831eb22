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

const defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterProvider calls OpenRouter's chat completions API with a strict
// JSON-schema response format. OpenRouter reports request cost directly in
// the usage object.
type OpenRouterProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenRouterProvider creates a provider for the given model.
func NewOpenRouterProvider(apiKey, model string) (*OpenRouterProvider, error) {
	if apiKey == "" {
		return nil, errs.NewConfigurationError("OpenRouter API key is required")
	}
	if model == "" {
		model = "openrouter/auto"
	}
	return &OpenRouterProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultOpenRouterEndpoint,
		client:   &http.Client{},
	}, nil
}

// SetEndpoint overrides the API endpoint (tests).
func (p *OpenRouterProvider) SetEndpoint(url string) {
	p.endpoint = url
}

// ModelName returns the configured model identifier.
func (p *OpenRouterProvider) ModelName() string {
	return p.model
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalCost        float64 `json:"total_cost"`
	} `json:"usage"`
}

// GenerateStructured implements Provider.
func (p *OpenRouterProvider) GenerateStructured(ctx context.Context, prompt string) (*PlanOutput, models.Usage, error) {
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

	body, usage, err := p.post(ctx, payload)
	if err != nil {
		return nil, models.Usage{}, err
	}

	out, err := ParsePlanOutput(body)
	if err != nil {
		return nil, usage, err
	}
	return out, usage, nil
}

func (p *OpenRouterProvider) post(ctx context.Context, payload chatRequest) (string, models.Usage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("X-Title", "Enterprise Tool Router")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", models.Usage{}, errs.NewTimeoutError("OpenRouter request exceeded deadline").WithCause(err)
		}
		return "", models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("OpenRouter request failed: %v", err), true).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("failed to read OpenRouter response: %v", err), true).WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", models.Usage{}, errs.NewPlannerError(
			fmt.Sprintf("OpenRouter returned status %d", resp.StatusCode),
			resp.StatusCode >= 500).WithDetail("body", string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", models.Usage{}, errs.NewStructuredOutputError(
			fmt.Sprintf("invalid OpenRouter response envelope: %v", err)).WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return "", models.Usage{}, errs.NewStructuredOutputError("empty response from OpenRouter")
	}

	usage := models.Usage{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		CostUSD:      parsed.Usage.TotalCost,
	}
	return parsed.Choices[0].Message.Content, usage, nil
}

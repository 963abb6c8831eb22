// Package llm abstracts the remote model vendors behind a single structured
// output operation.
//
// Providers send a prompt with a system instruction demanding JSON matching
// the plan schema, validate the response against that schema, and report
// token usage with an estimated cost. The model's output is never trusted:
// a non-conforming response is a StructuredOutputError, and even a conforming
// plan must still pass the deterministic safety validator downstream.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// Provider is the capability set every model vendor must implement.
type Provider interface {
	// GenerateStructured sends the prompt and returns a schema-conforming
	// plan plus token usage. Implementations must honor ctx cancellation.
	GenerateStructured(ctx context.Context, prompt string) (*PlanOutput, models.Usage, error)

	// ModelName identifies the underlying model for logging and pricing.
	ModelName() string
}

// PlanOutput is the JSON shape the LLM must return.
type PlanOutput struct {
	SQL         string  `json:"sql"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// planJSONSchema is sent to vendors that support JSON-schema response formats.
var planJSONSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sql": map[string]any{
			"type":        "string",
			"description": "PostgreSQL SELECT query with a LIMIT clause",
		},
		"confidence": map[string]any{
			"type":        "number",
			"description": "Confidence in [0,1] that the SQL answers the question",
		},
		"explanation": map[string]any{
			"type":        "string",
			"description": "Plain-English explanation of what the SQL does",
		},
	},
	"required":             []string{"sql", "confidence", "explanation"},
	"additionalProperties": false,
}

// ParsePlanOutput parses and validates raw model output against the plan
// schema. Every constraint violation is a StructuredOutputError.
func ParsePlanOutput(raw string) (*PlanOutput, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in markdown fences despite instructions.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out PlanOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errs.NewStructuredOutputError(
			fmt.Sprintf("model returned invalid JSON: %v", err)).WithCause(err)
	}
	if strings.TrimSpace(out.SQL) == "" {
		return nil, errs.NewStructuredOutputError("model output missing sql")
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, errs.NewStructuredOutputError(
			fmt.Sprintf("confidence %v outside [0,1]", out.Confidence))
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return nil, errs.NewStructuredOutputError("model output missing explanation")
	}
	if !strings.Contains(strings.ToUpper(out.SQL), "LIMIT") {
		return nil, errs.NewStructuredOutputError("generated SQL must contain a LIMIT clause")
	}
	return &out, nil
}

// systemInstruction is prepended by providers that support a system role.
const systemInstruction = "You are a SQL generator. Respond with a single JSON object " +
	`matching {"sql": string, "confidence": number, "explanation": string}. ` +
	"No prose, no markdown fences."

// Package errs implements the router's structured error taxonomy.
//
// Every error surfaced by the core carries a category, a severity, and a
// retryability flag, and serializes to the same seven-key JSON shape so that
// callers can branch on machine-readable fields instead of message text.
package errs

import (
	"encoding/json"
	"errors"
	"time"
)

// Category classifies where in the pipeline an error originated.
type Category string

const (
	CategoryPlanning       Category = "planning"
	CategoryValidation     Category = "validation"
	CategoryExecution      Category = "execution"
	CategoryTimeout        Category = "timeout"
	CategoryRateLimit      Category = "rate_limit"
	CategoryCircuitBreaker Category = "circuit_breaker"
	CategoryCache          Category = "cache"
	CategoryConfiguration  Category = "configuration"
	CategoryUnknown        Category = "unknown"
)

// Severity indicates how serious an error is for operators.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is the structured error used across all router components.
//
// Kind is a stable machine-readable identifier (e.g. "SafetyError"),
// distinct from Message which is free-form human text.
type Error struct {
	Kind      string         `json:"error_type"`
	Message   string         `json:"message"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// WithDetail adds a single detail key and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// MarshalJSON serializes the fixed seven-key error envelope.
func (e *Error) MarshalJSON() ([]byte, error) {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal(map[string]any{
		"error_type": e.Kind,
		"message":    e.Message,
		"category":   string(e.Category),
		"severity":   string(e.Severity),
		"retryable":  e.Retryable,
		"details":    details,
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func newError(kind, message string, category Category, severity Severity, retryable bool) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Category:  category,
		Severity:  severity,
		Retryable: retryable,
		Details:   map[string]any{},
		Timestamp: time.Now().UTC(),
	}
}

// NewSafetyError reports a deterministic validator rejection. Never retryable:
// a retry would merely gamble on a different unsafe output.
func NewSafetyError(message string) *Error {
	return newError("SafetyError", message, CategoryValidation, SeverityError, false)
}

// NewPlannerError reports an LLM planning failure.
func NewPlannerError(message string, retryable bool) *Error {
	return newError("PlannerError", message, CategoryPlanning, SeverityError, retryable)
}

// NewStructuredOutputError reports LLM output that did not conform to the
// requested schema. Not retryable within the same request.
func NewStructuredOutputError(message string) *Error {
	return newError("StructuredOutputError", message, CategoryPlanning, SeverityError, false)
}

// NewExecutionError reports a query execution failure. Transport failures are
// retryable; permission failures are not.
func NewExecutionError(message string, retryable bool) *Error {
	return newError("ExecutionError", message, CategoryExecution, SeverityError, retryable)
}

// NewTimeoutError reports an operation that exceeded its deadline.
func NewTimeoutError(message string) *Error {
	return newError("TimeoutError", message, CategoryTimeout, SeverityWarning, true)
}

// NewRateLimitError reports an admission rejection with backoff guidance.
func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	e := newError("RateLimitError", message, CategoryRateLimit, SeverityWarning, true)
	e.Details["retry_after_seconds"] = retryAfter.Seconds()
	return e
}

// NewCircuitBreakerError reports a short-circuited call.
func NewCircuitBreakerError(message string, state string) *Error {
	e := newError("CircuitBreakerError", message, CategoryCircuitBreaker, SeverityWarning, true)
	e.Details["state"] = state
	return e
}

// NewCacheError reports a cache backend failure. The operation it decorated
// proceeded without the cache, so it is not retryable.
func NewCacheError(message string) *Error {
	return newError("CacheError", message, CategoryCache, SeverityInfo, false)
}

// NewConfigurationError reports invalid or missing configuration.
func NewConfigurationError(message string) *Error {
	return newError("ConfigurationError", message, CategoryConfiguration, SeverityCritical, false)
}

// As extracts a structured *Error from an error chain.
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// From returns the structured error in err's chain, or wraps err as an
// unknown-category execution error so every surfaced failure has the
// seven-key shape.
func From(err error) *Error {
	if se, ok := As(err); ok {
		return se
	}
	return newError("InternalError", err.Error(), CategoryUnknown, SeverityError, false).WithCause(err)
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, c Category) bool {
	se, ok := As(err)
	return ok && se.Category == c
}

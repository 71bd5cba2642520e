// Package errors defines unified error types for LLM gateway operations.
// All provider-specific errors are mapped to these standard error types.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LLMError represents a standardized error from an LLM provider.
// It contains all necessary information for error handling, logging, and client response.
type LLMError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Param      string `json:"param,omitempty"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`

	// RetryAfter is the upstream-suggested wait before retrying, zero when unknown.
	RetryAfter time.Duration `json:"-"`
	// ResponseHeaders carries the upstream response headers (x-ratelimit-*,
	// retry-after) so the API layer can forward them to the caller.
	ResponseHeaders http.Header `json:"-"`
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *LLMError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// WithHeaders attaches upstream response headers and extracts Retry-After.
func (e *LLMError) WithHeaders(h http.Header) *LLMError {
	if h == nil {
		return e
	}
	e.ResponseHeaders = h
	if e.RetryAfter == 0 {
		e.RetryAfter = ParseRetryAfter(h)
	}
	return e
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
	TypeContextLength      = "context_length_exceeded"
	TypeContentPolicy      = "content_policy_violation"
	TypeBudgetExceeded     = "budget_exceeded"
	TypeAPIConnection      = "api_connection_error"
	TypePermissionDenied   = "permission_denied_error"
)

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewPermissionError creates a permission denied error (403).
func NewPermissionError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusForbidden,
		Message:    message,
		Type:       TypePermissionDenied,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewBadRequestError is an alias for NewInvalidRequestError matching the
// OpenAI SDK naming.
func NewBadRequestError(provider, model, message string) *LLMError {
	return NewInvalidRequestError(provider, model, message)
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewAPIConnectionError creates a connection-level error (502). These are
// retryable and count toward deployment cooldown.
func NewAPIConnectionError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeAPIConnection,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewContextLengthExceededError creates a context window error (400). The
// request can never succeed on the same deployment, so it is not retryable
// and never triggers cooldown.
func NewContextLengthExceededError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeContextLength,
		Code:       "context_length_exceeded",
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewContentPolicyError creates a content policy violation error (400).
func NewContentPolicyError(provider, model, message string) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeContentPolicy,
		Code:       "content_policy_violation",
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewBudgetExceededError creates a budget violation error (400). The message
// format is a stable contract consumed by clients and alerting.
func NewBudgetExceededError(currentCost, maxBudget float64) *LLMError {
	return &LLMError{
		StatusCode: http.StatusBadRequest,
		Message: fmt.Sprintf("Budget has been exceeded! Current cost: %g, Max budget: %g",
			currentCost, maxBudget),
		Type:      TypeBudgetExceeded,
		Retryable: false,
	}
}

// rateLimitPatterns are substrings that identify rate-limit failures hidden
// inside non-429 upstream responses.
var rateLimitPatterns = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"429",
	"quota exceeded",
	"exceeded your current quota",
	"tokens per min",
	"requests per min",
	"tpm limit",
	"rpm limit",
	"resource_exhausted",
	"resource has been exhausted",
	"over capacity",
	"overloaded_error",
}

// IsRateLimitErrorString reports whether an upstream error body describes a
// rate limit regardless of the HTTP status it arrived with.
func IsRateLimitErrorString(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// FromStatusCode maps an upstream HTTP status and body to the taxonomy.
// Bodies that read as rate limits are reclassified to 429 regardless of the
// status they arrived with.
func FromStatusCode(provider, model string, statusCode int, body string, headers http.Header) *LLMError {
	if statusCode != http.StatusTooManyRequests && IsRateLimitErrorString(body) {
		return NewRateLimitError(provider, model, body).WithHeaders(headers)
	}

	var e *LLMError
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e = NewAuthenticationError(provider, model, body)
	case statusCode == http.StatusNotFound:
		e = NewNotFoundError(provider, model, body)
	case statusCode == http.StatusRequestTimeout:
		e = NewTimeoutError(provider, model, body)
	case statusCode == http.StatusTooManyRequests:
		e = NewRateLimitError(provider, model, body)
	case statusCode == http.StatusServiceUnavailable:
		e = NewServiceUnavailableError(provider, model, body)
	case statusCode >= 500:
		e = NewInternalError(provider, model, body)
		e.StatusCode = statusCode
		e.Retryable = true
	case statusCode >= 400:
		e = NewInvalidRequestError(provider, model, body)
		e.StatusCode = statusCode
	default:
		e = NewInternalError(provider, model, body)
	}
	return e.WithHeaders(headers)
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Returns zero when absent or unparseable.
func ParseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		v = h.Get("retry-after")
	}
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// IsRetryable reports whether the error is worth retrying on the same or
// another deployment.
func IsRetryable(err error) bool {
	if e, ok := err.(*LLMError); ok {
		return e.Retryable
	}
	return false
}

// ShouldFallback reports whether the error justifies moving to a fallback
// model group. Client mistakes (bad request, context length, content policy,
// budget) fail fast.
func ShouldFallback(err error) bool {
	e, ok := err.(*LLMError)
	if !ok {
		return true
	}
	switch e.Type {
	case TypeInvalidRequest, TypeContextLength, TypeContentPolicy, TypeBudgetExceeded, TypeAuthentication, TypeNotFound:
		return false
	}
	return true
}

// IsCooldownRequired determines if a deployment should be cooled down for an
// error. Caller mistakes never cool a deployment: 400, 401, 404 and 422 mean
// the request or credentials are wrong, not that the deployment is unhealthy.
// Context-length, content-policy and budget violations are likewise exempt.
// Timeouts, 429s, connection failures and all 5xx responses do cool down.
func IsCooldownRequired(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500
}

// IsCooldownRequiredForError extends IsCooldownRequired with type-level
// exemptions for errors whose status alone is ambiguous.
func IsCooldownRequiredForError(err error) bool {
	e, ok := err.(*LLMError)
	if !ok {
		// Unclassified transport failures count against the deployment.
		return true
	}
	switch e.Type {
	case TypeContextLength, TypeContentPolicy, TypeBudgetExceeded, TypeInvalidRequest, TypeAuthentication, TypeNotFound:
		return false
	case TypeAPIConnection, TypeTimeout, TypeRateLimit:
		return true
	}
	return IsCooldownRequired(e.StatusCode)
}

// Package llmerrors classifies errors returned by model providers so callers can decide whether to retry.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of provider errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 with no choices or no content.
	ErrorTypeEmptyResponse
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (400, too long, unknown model).
	ErrorTypeBadPrompt

	// ErrorTypeServiceUnavailable is emitted once retries are exhausted.
	ErrorTypeServiceUnavailable
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// Error represents a classified provider error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	BodyStub   string    // First portion of response body
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
	Attempts   int       // Attempts made, set on ServiceUnavailable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" && e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %s: %v", e.Type.String(), e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether this error type should be retried.
// Everything is retryable unless explicitly listed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// StatusOf returns the HTTP status recorded anywhere in err's chain, or 0.
func StatusOf(err error) int {
	for err != nil {
		var llmErr *Error
		if !errors.As(err, &llmErr) {
			return 0
		}
		if llmErr.StatusCode != 0 {
			return llmErr.StatusCode
		}
		err = llmErr.Err
	}
	return 0
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// FromStatus classifies a non-success HTTP status code.
func FromStatus(statusCode int, body string, cause error) *Error {
	var t ErrorType
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode == http.StatusPaymentRequired:
		t = ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		t = ErrorTypeAuth
	case statusCode == http.StatusBadRequest || statusCode == http.StatusNotFound || statusCode == http.StatusUnprocessableEntity:
		t = ErrorTypeBadPrompt
	case statusCode >= 500:
		t = ErrorTypeTransient
	default:
		t = ErrorTypeUnknown
	}

	stub := body
	if len(stub) > 256 {
		stub = stub[:256]
	}
	return &Error{
		Type:       t,
		StatusCode: statusCode,
		BodyStub:   stub,
		Err:        cause,
		Message:    fmt.Sprintf("API error: %d", statusCode),
	}
}

// FromContext classifies context errors raised during a provider call.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	case errors.Is(err, context.Canceled):
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
	}
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// Large prompts are reduced to first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if 2*halfMax >= len(prompt) {
		return prompt
	}

	first := prompt[:halfMax]
	last := prompt[len(prompt)-halfMax:]

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s",
		first, len(prompt), hashStr, last)
}

// IsServiceUnavailable reports whether retries were exhausted.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// NewServiceUnavailableError wraps the last error after retries are exhausted.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:       ErrorTypeServiceUnavailable,
		Err:        cause,
		Attempts:   attempts,
		StatusCode: StatusOf(cause),
		Message:    fmt.Sprintf("service unavailable after %d retry attempts", attempts),
	}
}

// FromTransport classifies errors that carry no HTTP status: context expiry, network faults and
// provider messages that only describe the failure in text.
func FromTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FromContext(err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "eof"),
		strings.Contains(lower, "temporary"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
	}
}

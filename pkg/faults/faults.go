// Package faults defines the error taxonomy surfaced by the analysis pipelines.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int8

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota
	// KindModelUnavailable means the model endpoint failed after retries were exhausted.
	KindModelUnavailable
	// KindMalformedStageOutput means a stage reply could not be coerced into valid JSON or failed validation.
	KindMalformedStageOutput
	// KindMissingConfiguration means a required credential or setting is absent.
	KindMissingConfiguration
	// KindInvalidInput means the caller supplied an empty or invalid required field.
	KindInvalidInput
	// KindTimeout means the per-run deadline expired.
	KindTimeout
	// KindNotFound means a stored record does not exist.
	KindNotFound
)

// ExcerptLimit caps how much stage output an error retains.
const ExcerptLimit = 1000

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindModelUnavailable:
		return "model_unavailable"
	case KindMalformedStageOutput:
		return "malformed_stage_output"
	case KindMissingConfiguration:
		return "missing_configuration"
	case KindInvalidInput:
		return "invalid_input"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified failure with enough context to diagnose without re-running.
type Error struct {
	Err        error  // underlying cause
	Message    string // human-readable summary
	Stage      string // failing stage role, if any
	Model      string // model id, for invoker failures
	Excerpt    string // first ExcerptLimit chars of the offending text
	Attempts   int    // attempts made, for invoker failures
	StatusCode int    // last HTTP status, when known
	Kind       Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Stage, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err carries a faults.Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// As extracts the *Error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}

// Excerpt truncates s to ExcerptLimit runes.
func Excerpt(s string) string {
	r := []rune(s)
	if len(r) <= ExcerptLimit {
		return s
	}
	return string(r[:ExcerptLimit])
}

// ModelUnavailable builds a KindModelUnavailable error.
func ModelUnavailable(model string, attempts, status int, cause error) *Error {
	return &Error{
		Kind:       KindModelUnavailable,
		Model:      model,
		Attempts:   attempts,
		StatusCode: status,
		Err:        cause,
		Message:    fmt.Sprintf("model %s unavailable after %d attempt(s): %v", model, attempts, cause),
	}
}

// MalformedStageOutput builds a KindMalformedStageOutput error, keeping a bounded excerpt of text.
func MalformedStageOutput(stage, text string, cause error) *Error {
	return &Error{
		Kind:    KindMalformedStageOutput,
		Stage:   stage,
		Excerpt: Excerpt(text),
		Err:     cause,
		Message: fmt.Sprintf("failed to parse %s response as JSON: %v", stage, cause),
	}
}

// InvalidStageOutput builds a KindMalformedStageOutput error for output that parsed but failed validation.
func InvalidStageOutput(stage, text string, cause error) *Error {
	return &Error{
		Kind:    KindMalformedStageOutput,
		Stage:   stage,
		Excerpt: Excerpt(text),
		Err:     cause,
		Message: fmt.Sprintf("%s response failed validation: %v", stage, cause),
	}
}

// MissingConfiguration builds a KindMissingConfiguration error.
func MissingConfiguration(setting string) *Error {
	return &Error{
		Kind:    KindMissingConfiguration,
		Message: fmt.Sprintf("%s is not configured", setting),
	}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

// Timeout builds a KindTimeout error for the given stage.
func Timeout(stage string, cause error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Stage:   stage,
		Err:     cause,
		Message: "run deadline exceeded",
	}
}

// NotFound builds a KindNotFound error.
func NotFound(what, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", what, id),
	}
}

// WithStage returns a copy of err tagged with stage, or a new error wrapping it.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		cp := *fe
		cp.Stage = stage
		return &cp
	}
	return &Error{Kind: KindUnknown, Stage: stage, Err: err}
}

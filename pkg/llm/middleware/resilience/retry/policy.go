// Package retry provides retry logic with exponential backoff for resilient model calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"advisor/pkg/llm/middleware/resilience/circuit"
	"advisor/pkg/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `mapstructure:"initial_delay"`  // Delay before the first retry
	MaxDelay      time.Duration `mapstructure:"max_delay"`      // Cap on the delay between retries
	BackoffFactor float64       `mapstructure:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `mapstructure:"jitter"`         // Spread retries by ±10%
}

// DefaultConfig provides reasonable defaults for retry behavior.
// MaxAttempts is the initial call plus two retries.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default error classifier.
//
// Caller cancellation and open circuits are final. Classified provider errors
// defer to their type. A per-request deadline is retried because the parent
// context may still be live; the middleware checks the parent separately.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	// Network failures and unclassified transport errors.
	return true
}

// RetryAnyFailure retries every failed call, whatever its status. Only caller cancellation
// and an open circuit are final.
func RetryAnyFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var circuitErr *circuit.Error
	return !errors.As(err, &circuitErr)
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier

	// OnRetry, when set, is called before sleeping ahead of attempt number next.
	OnRetry func(next int, err error, delay time.Duration)
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// WithMaxRetries returns a copy of the policy allowing maxRetries retries after the first attempt.
func (p *Policy) WithMaxRetries(maxRetries int) *Policy {
	cp := *p
	if maxRetries < 0 {
		maxRetries = 0
	}
	cp.Config.MaxAttempts = maxRetries + 1
	return &cp
}

// CalculateDelay computes the delay before the given attempt number.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))

	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1)) //nolint:gosec // jitter, not crypto
		delay += jitter
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

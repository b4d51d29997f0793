// Package circuit provides circuit breaker functionality for resilient model calls.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Testing if service recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           `mapstructure:"failure_threshold"` // Failures before opening circuit
	SuccessThreshold int           `mapstructure:"success_threshold"` // Successes to close from half-open
	Timeout          time.Duration `mapstructure:"timeout"`           // Wait before trying half-open
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
}

// Error is returned instead of calling the provider while the circuit is open.
type Error struct {
	Model string
	State State
}

func (e *Error) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("circuit breaker is %s", e.State)
	}
	return fmt.Sprintf("circuit breaker for %s is %s", e.Model, e.State)
}

// Breaker defines the interface for circuit breaker implementations.
type Breaker interface {
	// Allow checks if a request should be allowed based on current state.
	Allow() bool

	// Record records the result (success/failure) of a request.
	Record(success bool)

	// GetState returns the current circuit breaker state.
	GetState() State

	// Reset manually resets the circuit breaker to closed state.
	Reset()
}

//nolint:govet // Logical field grouping preferred over memory alignment
type breaker struct {
	config          Config
	now             func() time.Time
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a new circuit breaker with the given configuration.
func New(config Config) Breaker {
	return newWithClock(config, time.Now)
}

func newWithClock(config Config, now func() time.Time) *breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	return &breaker{
		config: config,
		now:    now,
		state:  Closed,
	}
}

// Allow checks if a request should be allowed based on current state.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if b.now().Sub(b.lastFailureTime) >= b.config.Timeout {
			b.state = HalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// Record records the success or failure of a request.
func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// GetState returns the current circuit breaker state.
func (b *breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually resets the circuit breaker to closed state.
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
}

func (b *breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		// Any failure while probing reopens the circuit.
		b.state = Open
		b.successCount = 0
	}
}

// Registry hands out one breaker per model so a failing model does not trip the others.
type Registry struct {
	breakers map[string]Breaker
	config   Config
	mu       sync.Mutex
}

// NewRegistry creates an empty registry whose breakers share config.
func NewRegistry(config Config) *Registry {
	return &Registry{
		breakers: make(map[string]Breaker),
		config:   config,
	}
}

// For returns the breaker for model, creating it on first use.
func (r *Registry) For(model string) Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[model]
	if !ok {
		b = New(r.config)
		r.breakers[model] = b
	}
	return b
}

// States snapshots the state of every breaker created so far.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for model, b := range r.breakers {
		out[model] = b.GetState()
	}
	return out
}

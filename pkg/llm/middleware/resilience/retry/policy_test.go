package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"advisor/pkg/llm"
	"advisor/pkg/llm/middleware/resilience/circuit"
	"advisor/pkg/llmerrors"
)

// =============================================================================
// ShouldRetry classifier tests
// =============================================================================

func TestShouldRetry_NilError(t *testing.T) {
	if ShouldRetry(nil) {
		t.Error("Expected false for nil error")
	}
}

func TestShouldRetry_ContextCanceled(t *testing.T) {
	if ShouldRetry(fmt.Errorf("operation failed: %w", context.Canceled)) {
		t.Error("Expected false for wrapped context.Canceled")
	}
}

func TestShouldRetry_DeadlineExceeded(t *testing.T) {
	if !ShouldRetry(fmt.Errorf("http call failed: %w", context.DeadlineExceeded)) {
		t.Error("Expected true for per-request deadline")
	}
}

func TestShouldRetry_CircuitOpen(t *testing.T) {
	if ShouldRetry(&circuit.Error{State: circuit.Open}) {
		t.Error("Expected false for circuit breaker error")
	}
}

func TestRetryAnyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"circuit open", &circuit.Error{State: circuit.Open}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"auth", llmerrors.FromStatus(401, "bad key", nil), true},
		{"bad prompt", llmerrors.FromStatus(400, "bad request", nil), true},
		{"not found", llmerrors.FromStatus(404, "", nil), true},
		{"transient", llmerrors.FromStatus(503, "", nil), true},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryAnyFailure(tt.err); got != tt.want {
				t.Errorf("RetryAnyFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestShouldRetry_Classified(t *testing.T) {
	tests := []struct {
		errType llmerrors.ErrorType
		want    bool
	}{
		{llmerrors.ErrorTypeRateLimit, true},
		{llmerrors.ErrorTypeTransient, true},
		{llmerrors.ErrorTypeEmptyResponse, true},
		{llmerrors.ErrorTypeUnknown, true},
		{llmerrors.ErrorTypeAuth, false},
		{llmerrors.ErrorTypeBadPrompt, false},
		{llmerrors.ErrorTypeServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", llmerrors.NewError(tt.errType, "x"))
			if got := ShouldRetry(err); got != tt.want {
				t.Errorf("ShouldRetry(%s) = %v, want %v", tt.errType, got, tt.want)
			}
		})
	}
}

// =============================================================================
// CalculateDelay tests
// =============================================================================

func TestCalculateDelay_FirstAttemptIsImmediate(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil)
	if d := p.CalculateDelay(1); d != 0 {
		t.Errorf("CalculateDelay(1) = %v, want 0", d)
	}
}

func TestCalculateDelay_ExponentialWithoutJitter(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}, nil)

	want := []time.Duration{0, 0, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for attempt := 1; attempt <= 4; attempt++ {
		if d := p.CalculateDelay(attempt); d != want[attempt] {
			t.Errorf("CalculateDelay(%d) = %v, want %v", attempt, d, want[attempt])
		}
	}
}

func TestCalculateDelay_Capped(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: 2 * time.Second, BackoffFactor: 10}, nil)
	if d := p.CalculateDelay(5); d != 2*time.Second {
		t.Errorf("CalculateDelay(5) = %v, want 2s", d)
	}
}

func TestCalculateDelay_JitterWithinTenPercent(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2, Jitter: true}, nil)
	for i := 0; i < 50; i++ {
		d := p.CalculateDelay(2)
		if d < 900*time.Millisecond || d > 1100*time.Millisecond {
			t.Fatalf("CalculateDelay(2) = %v, want within 10%% of 1s", d)
		}
	}
}

func TestWithMaxRetries(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil).WithMaxRetries(0)
	if p.Config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", p.Config.MaxAttempts)
	}
	if DefaultConfig.MaxAttempts != 3 {
		t.Error("WithMaxRetries must not mutate the source policy")
	}
}

// =============================================================================
// Middleware tests
// =============================================================================

func fastPolicy(maxAttempts int) *Policy {
	return NewPolicy(Config{MaxAttempts: maxAttempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}, nil)
}

func failingClient(calls *int, errs ...error) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			i := *calls
			*calls++
			if i < len(errs) && errs[i] != nil {
				return llm.CompletionResponse{}, errs[i]
			}
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		nil,
		func() string { return "test-model" },
	)
}

func TestMiddleware_RecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	client := Middleware(fastPolicy(3))(failingClient(&calls, llmerrors.FromStatus(503, "", nil)))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" || calls != 2 {
		t.Errorf("got content=%q calls=%d, want ok/2", resp.Content, calls)
	}
}

func TestMiddleware_ExhaustedBecomesServiceUnavailable(t *testing.T) {
	calls := 0
	e := llmerrors.FromStatus(500, "", nil)
	client := Middleware(fastPolicy(3))(failingClient(&calls, e, e, e))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	var llmErr *llmerrors.Error
	if !errors.As(err, &llmErr) || llmErr.Type != llmerrors.ErrorTypeServiceUnavailable {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if llmErr.Attempts != 3 || llmErr.StatusCode != 500 || calls != 3 {
		t.Errorf("attempts=%d status=%d calls=%d, want 3/500/3", llmErr.Attempts, llmErr.StatusCode, calls)
	}
}

func TestMiddleware_NonRetryablePassesThrough(t *testing.T) {
	calls := 0
	client := Middleware(fastPolicy(3))(failingClient(&calls, llmerrors.FromStatus(401, "", nil)))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if !llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMiddleware_StopsOnCancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	client := Middleware(fastPolicy(5))(llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			cancel()
			return llm.CompletionResponse{}, llmerrors.FromStatus(503, "", nil)
		},
		nil,
		func() string { return "m" },
	))

	_, err := client.Complete(ctx, llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

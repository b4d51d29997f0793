// Package retry provides retry middleware for model clients.
package retry

import (
	"context"
	"fmt"
	"time"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

// Middleware wraps a client with retry and exponential backoff.
// Exhausting the attempts on a retryable error yields an ErrorTypeServiceUnavailable error
// recording how many attempts were made and the last status seen.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var resp llm.CompletionResponse
				err := do(ctx, policy, func(ctx context.Context) error {
					var callErr error
					resp, callErr = next.Complete(ctx, req)
					return callErr
				})
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var ch <-chan llm.StreamChunk
				err := do(ctx, policy, func(ctx context.Context) error {
					var callErr error
					ch, callErr = next.Stream(ctx, req)
					return callErr
				})
				return ch, err
			},
			next.GetModelName,
		)
	}
}

func do(ctx context.Context, policy *Policy, call func(context.Context) error) error {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.CalculateDelay(attempt)
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, lastErr, delay)
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return fmt.Errorf("retry cancelled after %d attempts: %w", attempts, ctx.Err())
				case <-time.After(delay):
				}
			}
		}

		attempts++
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !policy.ShouldRetry(err) || ctx.Err() != nil {
			return err
		}
	}

	return llmerrors.NewServiceUnavailableError(lastErr, attempts)
}

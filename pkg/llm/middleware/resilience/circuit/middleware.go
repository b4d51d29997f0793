package circuit

import (
	"context"
	"errors"

	"advisor/pkg/llm"
)

// Middleware rejects requests while the breaker is open and records every outcome otherwise.
// Cancellation by the caller is not counted as a provider failure.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{Model: next.GetModelName(), State: breaker.GetState()}
				}

				resp, err := next.Complete(ctx, req)
				if !errors.Is(err, context.Canceled) {
					breaker.Record(err == nil)
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{Model: next.GetModelName(), State: breaker.GetState()}
				}

				// Only stream establishment counts towards breaker state.
				ch, err := next.Stream(ctx, req)
				breaker.Record(err == nil)

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// Package timeout provides timeout middleware for model clients.
package timeout

import (
	"context"
	"time"

	"advisor/pkg/llm"
)

// Middleware bounds every request with its own deadline. A zero duration disables it.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				// The stream outlives this call, so the deadline is released by the parent.
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				ch, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}
				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range ch {
						out <- chunk
					}
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}

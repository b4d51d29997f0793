package ratelimit

import (
	"context"

	"advisor/pkg/llm"
)

// ThrottleObserver is told about every request that had to wait or was refused.
type ThrottleObserver interface {
	IncThrottle(model, reason string)
}

// Middleware acquires an estimated token budget before each request.
// Models whose provider has no limiter pass straight through.
func Middleware(limiters *ProviderLimiterMap, estimator TokenEstimator, observer ThrottleObserver) llm.Middleware {
	if estimator == nil {
		estimator = DefaultTokenEstimator{}
	}

	acquire := func(ctx context.Context, model string, req llm.CompletionRequest) (func(), error) {
		limiter, err := limiters.GetLimiter(model)
		if err != nil {
			return func() {}, nil //nolint:nilerr // unlimited provider
		}
		release, err := limiter.Acquire(ctx, estimator.EstimatePrompt(req)+req.MaxTokens, model)
		if err != nil && observer != nil {
			observer.IncThrottle(model, "rate_limit")
		}
		return release, err
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				release, err := acquire(ctx, next.GetModelName(), req)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				release, err := acquire(ctx, next.GetModelName(), req)
				if err != nil {
					return nil, err
				}
				// Held only while the stream is being established.
				defer release()

				return next.Stream(ctx, req)
			},
			next.GetModelName,
		)
	}
}

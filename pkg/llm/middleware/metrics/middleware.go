package metrics

import (
	"context"
	"errors"
	"time"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/llm/middleware/resilience/circuit"
	"advisor/pkg/llmerrors"
	"advisor/pkg/logx"
	"advisor/pkg/utils"
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// UsageExtractor extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and counts with tiktoken otherwise.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	for i := range req.Messages {
		promptTokens += utils.CountTokensSimple(req.Messages[i].Content)
	}
	completionTokens = utils.CountTokensSimple(resp.Content)
	return promptTokens, completionTokens
}

// Middleware records latency, token usage, cost and outcome of every request.
// Pipeline and stage labels come from llm.CallInfo on the request context.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				info := llm.CallInfoFrom(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					cost = config.CalculateCost(model, promptTokens, completionTokens)
				}

				recorder.ObserveRequest(model, info.Pipeline, info.Stage,
					promptTokens, completionTokens, cost, err == nil, ErrorType(err), duration)

				if logger != nil {
					status := "success"
					if err != nil {
						status = "error"
					}
					logger.Info("model request: model=%s pipeline=%s stage=%q tokens=%d+%d status=%s duration=%dms",
						model, info.Pipeline, info.Stage, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				model := next.GetModelName()
				info := llm.CallInfoFrom(ctx)

				// Only stream setup is measured; tokens would require draining the stream.
				ch, err := next.Stream(ctx, req)
				recorder.ObserveRequest(model, info.Pipeline, info.Stage, 0, 0, 0, err == nil, ErrorType(err), time.Since(start))

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// ErrorType classifies err for metrics labeling.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var circuitErr *circuit.Error
	switch {
	case errors.As(err, &circuitErr):
		return "circuit_breaker"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.Type.String()
	}
	return "unknown"
}

// Package invoker issues single completion requests to language models with bounded retry.
//
// Every call is composed from the resilience middleware in this order:
//
//	Metrics -> CircuitBreaker -> Retry -> RateLimit -> Timeout -> provider client
//
// The per-model circuit breaker is shared by every run on the model, so it is off unless
// resilience.circuit.enabled is set.
//
// Provider clients are created once per model and cached; the middleware chain is assembled per
// call so that the retry budget can vary between callers.
package invoker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"advisor/pkg/config"
	"advisor/pkg/faults"
	"advisor/pkg/invoker/internal/llmimpl/anthropic"
	"advisor/pkg/invoker/internal/llmimpl/gateway"
	"advisor/pkg/invoker/internal/llmimpl/google"
	"advisor/pkg/invoker/internal/llmimpl/ollama"
	"advisor/pkg/llm"
	"advisor/pkg/llm/middleware/metrics"
	"advisor/pkg/llm/middleware/resilience/circuit"
	"advisor/pkg/llm/middleware/resilience/ratelimit"
	"advisor/pkg/llm/middleware/resilience/retry"
	"advisor/pkg/llm/middleware/resilience/timeout"
	"advisor/pkg/llmerrors"
	"advisor/pkg/logx"
)

// DefaultMaxRetries is the number of retries after the first attempt when callers do not choose.
const DefaultMaxRetries = 2

// ClientFactory builds the raw provider client for a model id.
type ClientFactory func(model string) (llm.LLMClient, error)

// Invoker sends one system + user exchange to a model and returns the completion text verbatim.
// It is safe for concurrent use by independent pipeline runs.
type Invoker struct {
	cfg      *config.Config
	recorder metrics.Recorder
	breakers *circuit.Registry
	limiters *ratelimit.ProviderLimiterMap
	policy   *retry.Policy
	logger   *logx.Logger
	factory  ClientFactory

	mu      sync.Mutex
	clients map[string]llm.LLMClient
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithRecorder sets the metrics recorder. The default discards metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(i *Invoker) { i.recorder = r }
}

// WithClientFactory replaces provider client construction.
func WithClientFactory(f ClientFactory) Option {
	return func(i *Invoker) { i.factory = f }
}

// WithRetryPolicy replaces the backoff timing built from configuration. Which failures are
// retried is fixed: every provider failure is, see retry.RetryAnyFailure.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(i *Invoker) { i.policy = p }
}

// New creates an Invoker from configuration. The context bounds the rate limiter refill goroutines.
func New(ctx context.Context, cfg *config.Config, opts ...Option) *Invoker {
	limits := make(map[string]ratelimit.Config, len(cfg.Resilience.RateLimit))
	for provider, l := range cfg.Resilience.RateLimit {
		limits[provider] = ratelimit.Config{
			TokensPerMinute: l.TokensPerMinute,
			MaxConcurrency:  l.MaxConcurrency,
		}
	}

	inv := &Invoker{
		cfg:      cfg,
		recorder: metrics.Nop(),
		breakers: circuit.NewRegistry(circuit.Config{
			FailureThreshold: cfg.Resilience.Circuit.FailureThreshold,
			SuccessThreshold: cfg.Resilience.Circuit.SuccessThreshold,
			Timeout:          cfg.Resilience.Circuit.Timeout,
		}),
		limiters: ratelimit.NewProviderLimiterMap(ctx, limits, cfg.Resilience.Timeout),
		logger:   logx.NewLogger("invoker"),
		clients:  make(map[string]llm.LLMClient),
	}
	inv.factory = inv.newProviderClient

	for _, opt := range opts {
		opt(inv)
	}

	if inv.policy == nil {
		inv.policy = retry.NewPolicy(retry.Config{
			MaxAttempts:   DefaultMaxRetries + 1,
			InitialDelay:  cfg.Resilience.Retry.InitialDelay,
			MaxDelay:      cfg.Resilience.Retry.MaxDelay,
			BackoffFactor: cfg.Resilience.Retry.BackoffFactor,
			Jitter:        cfg.Resilience.Retry.Jitter,
		}, retry.RetryAnyFailure)
		inv.policy.OnRetry = func(next int, err error, delay time.Duration) {
			inv.logger.Warn("retrying model call (attempt %d) in %v: %v", next, delay, err)
		}
	}
	return inv
}

// Close stops background rate limiter goroutines.
func (i *Invoker) Close() {
	i.limiters.Stop()
}

// BreakerStates reports the circuit breaker state per model. It is empty while breakers are disabled.
func (i *Invoker) BreakerStates() map[string]string {
	states := i.breakers.States()
	out := make(map[string]string, len(states))
	for model, s := range states {
		out[model] = s.String()
	}
	return out
}

// Invoke sends systemPrompt and userMessage to modelID, retrying any transport failure or
// non-success status up to maxRetries additional times with exponential backoff. A negative maxRetries selects DefaultMaxRetries.
// Exhaustion fails with a faults.KindModelUnavailable error carrying the attempt count and last status.
func (i *Invoker) Invoke(ctx context.Context, systemPrompt, userMessage, modelID string, maxRetries int) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" || strings.TrimSpace(userMessage) == "" {
		return "", faults.InvalidInput("system prompt and user message must be non-empty")
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	raw, err := i.client(modelID)
	if err != nil {
		return "", err
	}

	policy := i.policy.WithMaxRetries(maxRetries)
	policy.Classifier = retry.RetryAnyFailure

	var attempts atomic.Int32
	counted := llm.WrapClient(
		func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			attempts.Add(1)
			return raw.Complete(ctx, req)
		},
		raw.Stream,
		raw.GetModelName,
	)

	chain := []llm.Middleware{metrics.Middleware(i.recorder, nil, i.logger)}
	if i.cfg.Resilience.Circuit.Enabled {
		chain = append(chain, circuit.Middleware(i.breakers.For(modelID)))
	}
	chain = append(chain,
		retry.Middleware(policy),
		ratelimit.Middleware(i.limiters, nil, i.recorder),
		timeout.Middleware(i.cfg.Resilience.Timeout),
	)
	client := llm.Chain(counted, chain...)

	resp, err := client.Complete(ctx, llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(userMessage),
	}))
	if err != nil {
		return "", faults.ModelUnavailable(modelID, int(attempts.Load()), llmerrors.StatusOf(err), err)
	}
	return resp.Content, nil
}

func (i *Invoker) client(model string) (llm.LLMClient, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if c, ok := i.clients[model]; ok {
		return c, nil
	}
	c, err := i.factory(model)
	if err != nil {
		return nil, err
	}
	i.clients[model] = c
	return c, nil
}

// newProviderClient creates the raw client for the provider serving model.
func (i *Invoker) newProviderClient(model string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, faults.InvalidInput("%v", err)
	}

	key, err := i.cfg.APIKey(provider)
	if err != nil {
		return nil, err //nolint:wrapcheck // already a MissingConfiguration fault
	}

	switch provider {
	case config.ProviderGateway:
		return gateway.NewGatewayClient(key, i.cfg.Gateway.BaseURL, model), nil
	case config.ProviderOpenAI:
		return gateway.NewOpenAIClient(key, model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(key, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(key, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(key, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
	"advisor/pkg/llm/middleware/resilience/circuit"
	"advisor/pkg/llmerrors"
)

func TestErrorType(t *testing.T) {
	assert.Equal(t, "", ErrorType(nil))
	assert.Equal(t, "circuit_breaker", ErrorType(&circuit.Error{State: circuit.Open}))
	assert.Equal(t, "timeout", ErrorType(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", ErrorType(context.Canceled))
	assert.Equal(t, "rate_limit", ErrorType(llmerrors.FromStatus(429, "", nil)))
	assert.Equal(t, "unknown", ErrorType(errors.New("plain")))
}

func TestDefaultUsageExtractorPrefersProviderUsage(t *testing.T) {
	p, c := DefaultUsageExtractor(llm.CompletionRequest{}, llm.CompletionResponse{
		Content: "whatever",
		Usage:   llm.Usage{PromptTokens: 11, CompletionTokens: 7},
	})
	assert.Equal(t, 11, p)
	assert.Equal(t, 7, c)

	p, c = DefaultUsageExtractor(
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Hello world")}),
		llm.CompletionResponse{Content: "Hello"},
	)
	assert.Positive(t, p)
	assert.Positive(t, c)
}

func TestMiddlewareRecordsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	internal := NewInternalRecorder()

	client := Middleware(Tee(prom, internal), nil, nil)(llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: "{}", Usage: llm.Usage{PromptTokens: 1000, CompletionTokens: 500}}, nil
		},
		nil,
		func() string { return "google/gemini-2.5-pro" },
	))

	ctx := llm.WithCallInfo(context.Background(), llm.CallInfo{Pipeline: "analysis", Stage: "Research Agent"})
	_, err := client.Complete(ctx, llm.CompletionRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "llm_requests_total", map[string]string{
		"model": "google/gemini-2.5-pro", "pipeline": "analysis", "stage": "Research Agent", "status": "success",
	}))
	assert.Equal(t, 500.0, counterValue(t, reg, "llm_tokens_total", map[string]string{"type": "completion"}))

	usage := internal.Snapshot()
	require.Len(t, usage, 1)
	assert.Equal(t, "analysis", usage[0].Pipeline)
	assert.EqualValues(t, 1500, usage[0].TotalTokens)
	assert.Greater(t, usage[0].TotalCost, 0.0)
}

func TestInternalRecorderRuns(t *testing.T) {
	r := NewInternalRecorder()
	r.ObserveRun("brainstorm", OutcomeCompleted, time.Second)
	r.ObserveRun("brainstorm", OutcomeTimeout, time.Second)
	r.ObserveRequest("m", "brainstorm", "s", 0, 0, 0, false, "transient", time.Second)

	usage := r.Snapshot()
	require.Len(t, usage, 1)
	assert.EqualValues(t, 2, usage[0].Runs)
	assert.EqualValues(t, 1, usage[0].FailedRuns)
	assert.EqualValues(t, 1, usage[0].FailedRequests)

	r.Reset()
	assert.Empty(t, r.Snapshot())
}

func TestNopAcceptsEverything(t *testing.T) {
	n := Nop()
	n.ObserveRequest("m", "p", "s", 1, 1, 0, true, "", time.Millisecond)
	n.IncThrottle("m", "rate_limit")
	n.ObserveRun("p", OutcomeCompleted, time.Millisecond)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

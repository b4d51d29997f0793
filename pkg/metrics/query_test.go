package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmmetrics "advisor/pkg/llm/middleware/metrics"
)

func sample(labels map[string]string, value string) string {
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, fmt.Sprintf("%q:%q", k, v))
	}
	return fmt.Sprintf(`{"metric":{%s},"value":[1700000000,%q]}`, strings.Join(parts, ","), value)
}

func fakePrometheus(t *testing.T, results map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")
		w.Header().Set("Content-Type", "application/json")
		for prefix, samples := range results {
			if strings.Contains(query, prefix) {
				fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`, strings.Join(samples, ","))
				return
			}
		}
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryServiceUsage(t *testing.T) {
	srv := fakePrometheus(t, map[string][]string{
		"llm_tokens_total": {
			sample(map[string]string{"pipeline": "analysis", "model": "google/gemini-2.5-flash", "type": "prompt"}, "1200"),
			sample(map[string]string{"pipeline": "analysis", "model": "google/gemini-2.5-flash", "type": "completion"}, "800"),
			sample(map[string]string{"pipeline": "brainstorm", "model": "google/gemini-2.5-pro", "type": "prompt"}, "300"),
		},
		"llm_costs_total": {
			sample(map[string]string{"pipeline": "analysis", "model": "google/gemini-2.5-flash"}, "0.25"),
		},
		"pipeline_runs_total": {
			sample(map[string]string{"pipeline": "analysis", "outcome": "completed"}, "3"),
			sample(map[string]string{"pipeline": "analysis", "outcome": "timeout"}, "1"),
		},
	})

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := q.Usage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "prometheus", report.Source)
	require.Len(t, report.Usage, 3)

	runs := report.Usage[0]
	assert.Equal(t, Usage{Pipeline: "analysis", Runs: 4, FailedRuns: 1}, runs)

	flash := report.Usage[1]
	assert.Equal(t, "google/gemini-2.5-flash", flash.Model)
	assert.Equal(t, int64(1200), flash.PromptTokens)
	assert.Equal(t, int64(800), flash.CompletionTokens)
	assert.Equal(t, int64(2000), flash.TotalTokens)
	assert.InDelta(t, 0.25, flash.TotalCost, 1e-9)

	assert.Equal(t, "brainstorm", report.Usage[2].Pipeline)
	assert.Equal(t, int64(2300), report.Totals.TotalTokens)
	assert.Equal(t, int64(4), report.Totals.Runs)
}

func TestQueryServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	_, err = q.Usage(context.Background())
	assert.ErrorContains(t, err, "failed to query tokens")
}

func TestInternalSource(t *testing.T) {
	rec := llmmetrics.NewInternalRecorder()
	rec.ObserveRequest("m", "analysis", "Research Agent", 100, 50, 0.01, true, "", time.Second)
	rec.ObserveRequest("m", "analysis", "Research Agent", 0, 0, 0, false, "transient", time.Second)
	rec.ObserveRun("analysis", llmmetrics.OutcomeCompleted, time.Minute)
	rec.ObserveRun("brainstorm", llmmetrics.OutcomeFailed, time.Minute)

	report, err := InternalSource{Recorder: rec}.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "internal", report.Source)
	require.Len(t, report.Usage, 2)
	assert.Equal(t, int64(150), report.Usage[0].TotalTokens)
	assert.Equal(t, int64(1), report.Usage[1].FailedRuns)
	assert.Equal(t, int64(2), report.Totals.Runs)
	assert.InDelta(t, 0.01, report.Totals.TotalCost, 1e-9)
}

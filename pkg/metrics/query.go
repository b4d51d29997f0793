// Package metrics reports token and cost usage per pipeline and model, read back from
// Prometheus or from the in-process recorder.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	llmmetrics "advisor/pkg/llm/middleware/metrics"
)

// Usage is the aggregated usage of one pipeline on one model. Model is empty when the
// source does not break usage down by model.
type Usage struct {
	Pipeline         string  `json:"pipeline"`
	Model            string  `json:"model,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
	Runs             int64   `json:"runs"`
	FailedRuns       int64   `json:"failed_runs"`
}

// Report is a usage snapshot.
type Report struct {
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
	Usage       []Usage   `json:"usage"`
	Totals      Usage     `json:"totals"`
}

// Source produces usage reports.
type Source interface {
	Usage(ctx context.Context) (*Report, error)
}

// QueryService reads usage from a Prometheus server scraping the advisor.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

type usageKey struct{ pipeline, model string }

// Usage sums llm_tokens_total, llm_costs_total and pipeline_runs_total.
func (q *QueryService) Usage(ctx context.Context) (*Report, error) {
	now := time.Now()
	rows := map[usageKey]*Usage{}
	row := func(pipeline, modelName string) *Usage {
		k := usageKey{pipeline, modelName}
		u, ok := rows[k]
		if !ok {
			u = &Usage{Pipeline: pipeline, Model: modelName}
			rows[k] = u
		}
		return u
	}

	tokens, err := q.vector(ctx, `sum by (pipeline, model, type) (llm_tokens_total)`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	for _, s := range tokens {
		u := row(string(s.Metric["pipeline"]), string(s.Metric["model"]))
		switch s.Metric["type"] {
		case "prompt":
			u.PromptTokens += int64(s.Value)
		case "completion":
			u.CompletionTokens += int64(s.Value)
		}
	}

	costs, err := q.vector(ctx, `sum by (pipeline, model) (llm_costs_total)`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	for _, s := range costs {
		row(string(s.Metric["pipeline"]), string(s.Metric["model"])).TotalCost += float64(s.Value)
	}

	// Runs carry no model label and are reported on a per-pipeline row.
	runs, err := q.vector(ctx, `sum by (pipeline, outcome) (pipeline_runs_total)`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	for _, s := range runs {
		u := row(string(s.Metric["pipeline"]), "")
		u.Runs += int64(s.Value)
		if string(s.Metric["outcome"]) != llmmetrics.OutcomeCompleted {
			u.FailedRuns += int64(s.Value)
		}
	}

	usage := make([]Usage, 0, len(rows))
	for _, u := range rows {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		usage = append(usage, *u)
	}
	return newReport("prometheus", now, usage), nil
}

func (q *QueryService) vector(ctx context.Context, query string, at time.Time) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s for %q", result.Type(), query)
	}
	return vector, nil
}

// InternalSource reports the in-process recorder's counters.
type InternalSource struct {
	Recorder *llmmetrics.InternalRecorder
}

// Usage implements Source.
func (s InternalSource) Usage(context.Context) (*Report, error) {
	snapshot := s.Recorder.Snapshot()
	usage := make([]Usage, 0, len(snapshot))
	for _, p := range snapshot {
		usage = append(usage, Usage{
			Pipeline:         p.Pipeline,
			PromptTokens:     p.PromptTokens,
			CompletionTokens: p.CompletionTokens,
			TotalTokens:      p.TotalTokens,
			TotalCost:        p.TotalCost,
			Runs:             p.Runs,
			FailedRuns:       p.FailedRuns,
		})
	}
	return newReport("internal", time.Now(), usage), nil
}

func newReport(source string, at time.Time, usage []Usage) *Report {
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Pipeline != usage[j].Pipeline {
			return usage[i].Pipeline < usage[j].Pipeline
		}
		return usage[i].Model < usage[j].Model
	})
	r := &Report{Source: source, GeneratedAt: at.UTC(), Usage: usage}
	for _, u := range usage {
		r.Totals.PromptTokens += u.PromptTokens
		r.Totals.CompletionTokens += u.CompletionTokens
		r.Totals.TotalTokens += u.TotalTokens
		r.Totals.TotalCost += u.TotalCost
		r.Totals.Runs += u.Runs
		r.Totals.FailedRuns += u.FailedRuns
	}
	return r
}

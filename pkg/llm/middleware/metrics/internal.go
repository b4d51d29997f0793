package metrics

import (
	"sort"
	"sync"
	"time"
)

// InternalRecorder aggregates usage per pipeline in memory.
// It backs the usage report when no Prometheus server is configured.
type InternalRecorder struct {
	pipelines map[string]*PipelineUsage
	mu        sync.RWMutex
}

// PipelineUsage is the aggregated usage of one pipeline.
//
//nolint:govet
type PipelineUsage struct {
	Pipeline         string    `json:"pipeline"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	FailedRequests   int64     `json:"failed_requests"`
	Runs             int64     `json:"runs"`
	FailedRuns       int64     `json:"failed_runs"`
	TotalCost        float64   `json:"total_cost_usd"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{pipelines: make(map[string]*PipelineUsage)}
}

func (r *InternalRecorder) entry(pipeline string) *PipelineUsage {
	u, ok := r.pipelines[pipeline]
	if !ok {
		u = &PipelineUsage{Pipeline: pipeline}
		r.pipelines[pipeline] = u
	}
	return u
}

// ObserveRequest records metrics for a completed model request.
func (r *InternalRecorder) ObserveRequest(
	_, pipeline, _ string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.entry(pipeline)
	u.RequestCount++
	u.LastUpdated = time.Now()
	if !success {
		u.FailedRequests++
		return
	}
	u.PromptTokens += int64(promptTokens)
	u.CompletionTokens += int64(completionTokens)
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	u.TotalCost += cost
}

// IncThrottle is not tracked in memory.
func (r *InternalRecorder) IncThrottle(_, _ string) {}

// ObserveRun counts pipeline runs.
func (r *InternalRecorder) ObserveRun(pipeline, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.entry(pipeline)
	u.Runs++
	if outcome != OutcomeCompleted {
		u.FailedRuns++
	}
	u.LastUpdated = time.Now()
}

// Snapshot returns copies of all aggregates ordered by pipeline name.
func (r *InternalRecorder) Snapshot() []PipelineUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PipelineUsage, 0, len(r.pipelines))
	for _, u := range r.pipelines {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pipeline < out[j].Pipeline })
	return out
}

// Reset clears all aggregates.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines = make(map[string]*PipelineUsage)
}

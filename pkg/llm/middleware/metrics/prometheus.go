package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the advisor metrics with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of model requests by model, pipeline, stage, and status",
			},
			[]string{"model", "pipeline", "stage", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in model requests",
			},
			[]string{"model", "pipeline", "stage", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for model requests",
			},
			[]string{"model", "pipeline"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90},
			},
			[]string{"model", "pipeline", "stage"},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_throttle_total",
				Help: "Total number of model throttling events",
			},
			[]string{"model", "reason"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Pipeline runs by pipeline and outcome",
			},
			[]string{"pipeline", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs",
				Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
			},
			[]string{"pipeline"},
		),
	}
}

// ObserveRequest records metrics for a completed model request.
func (p *PrometheusRecorder) ObserveRequest(
	model, pipeline, stage string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, pipeline, stage, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, pipeline, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, pipeline, stage, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, pipeline).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, pipeline, stage).Observe(duration.Seconds())
}

// IncThrottle increments the throttle counter for rate limiting events.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// ObserveRun records the outcome of a pipeline run.
func (p *PrometheusRecorder) ObserveRun(pipeline, outcome string, duration time.Duration) {
	p.runsTotal.WithLabelValues(pipeline, outcome).Inc()
	p.runDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

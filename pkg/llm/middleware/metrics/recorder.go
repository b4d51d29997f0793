// Package metrics records latency, token usage and cost of model calls.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording model operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed model request.
	ObserveRequest(
		model, pipeline, stage string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(model, reason string)

	// ObserveRun records the outcome of a whole pipeline run.
	ObserveRun(pipeline, outcome string, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

// ObserveRequest does nothing.
func (NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}

// IncThrottle does nothing.
func (NoopRecorder) IncThrottle(_, _ string) {}

// ObserveRun does nothing.
func (NoopRecorder) ObserveRun(_, _ string, _ time.Duration) {}

// Tee fans every observation out to all recorders.
func Tee(recorders ...Recorder) Recorder {
	return tee(recorders)
}

type tee []Recorder

func (t tee) ObserveRequest(model, pipeline, stage string, promptTokens, completionTokens int, cost float64, success bool, errorType string, duration time.Duration) {
	for _, r := range t {
		r.ObserveRequest(model, pipeline, stage, promptTokens, completionTokens, cost, success, errorType, duration)
	}
}

func (t tee) IncThrottle(model, reason string) {
	for _, r := range t {
		r.IncThrottle(model, reason)
	}
}

func (t tee) ObserveRun(pipeline, outcome string, duration time.Duration) {
	for _, r := range t {
		r.ObserveRun(pipeline, outcome, duration)
	}
}

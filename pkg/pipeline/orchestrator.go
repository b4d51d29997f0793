package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"advisor/pkg/config"
	"advisor/pkg/faults"
	"advisor/pkg/llm"
	"advisor/pkg/llm/middleware/metrics"
	"advisor/pkg/logx"
	"advisor/pkg/sanitize"
)

// Invoker sends one system+user exchange to a model and returns the reply text.
type Invoker interface {
	Invoke(ctx context.Context, systemPrompt, userMessage, modelID string, maxRetries int) (string, error)
}

// Observer is notified of every run state change. Implementations must not block.
type Observer func(run *Run, t Transition)

// Orchestrator executes pipelines. It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	invoker  Invoker
	models   config.ModelsConfig
	settings config.PipelineConfig
	recorder metrics.Recorder
	observer Observer
	logger   *logx.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the recorder that receives run outcomes.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithObserver registers a callback for run state changes.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator calling models through inv.
func NewOrchestrator(inv Invoker, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:  inv,
		models:   cfg.Models,
		settings: cfg.Pipeline,
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("pipeline"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strict reports whether exact cardinalities are enforced.
func (o *Orchestrator) Strict() bool {
	return o.settings.StrictValidation
}

// Run executes every stage of p in order. Stage i starts only after stage i-1 has been
// parsed and validated; any failure ends the run immediately and is returned tagged with
// the failing stage. The returned Run is always non-nil and records how far execution got.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, input any) (*Run, error) {
	run := newRun(uuid.NewString(), p.Name)
	run.StartedAt = o.now()
	if sub, ok := input.(Subject); ok {
		run.Subject = sub.RunSubject()
	}

	if err := p.Validate(); err != nil {
		o.fail(run, "", err)
		return run, run.Err
	}

	if o.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.RunTimeout)
		defer cancel()
	}
	ctx = logx.WithRunID(ctx, run.ID)

	o.logger.Info("🚀 run %s: starting %s pipeline (%d stages)", run.ID, p.Name, len(p.Stages))

	for i := range p.Stages {
		stage := &p.Stages[i]
		if err := o.advance(run, i+1, stage.Name); err != nil {
			o.fail(run, stage.Name, err)
			return run, run.Err
		}

		result, err := o.runStage(ctx, run, stage, input)
		if err != nil {
			o.fail(run, stage.Name, err)
			return run, run.Err
		}
		run.Transcript = append(run.Transcript, result)
	}

	run.FinishedAt = o.now()
	_ = o.transition(run, StateCompleted, 0, "", "")
	o.recorder.ObserveRun(p.Name, metrics.OutcomeCompleted, run.Duration())
	o.logger.Info("✅ run %s: %s pipeline completed in %s", run.ID, p.Name, run.Duration().Round(time.Millisecond))
	return run, nil
}

func (o *Orchestrator) runStage(ctx context.Context, run *Run, stage *StageSpec, input any) (StageResult, error) {
	if err := ctx.Err(); err != nil {
		return StageResult{}, o.stageError(ctx, stage.Name, err)
	}

	view := Context{Input: input, Completed: run.Transcript}
	model := stage.Tier.Resolve(o.models)

	callCtx := llm.WithCallInfo(ctx, llm.CallInfo{Pipeline: run.Pipeline, Stage: stage.Name, RunID: run.ID})
	logx.Debug(callCtx, "pipeline", "stage %d %s calling %s", run.Stage, stage.Name, model)

	started := o.now()
	raw, err := o.invoker.Invoke(callCtx, stage.System(view), stage.User(view), model, o.settings.MaxRetries)
	if err != nil {
		return StageResult{}, o.stageError(ctx, stage.Name, err)
	}

	out := stage.NewOutput()
	if err := sanitize.Decode(stage.Name, raw, out); err != nil {
		return StageResult{}, err
	}
	if err := out.Validate(o.settings.StrictValidation); err != nil {
		return StageResult{}, faults.InvalidStageOutput(stage.Name, raw, err)
	}

	o.logger.Info("📋 run %s: stage %d %s done in %s", run.ID, run.Stage, stage.Name, o.now().Sub(started).Round(time.Millisecond))
	return StageResult{Role: stage.Name, RawContent: raw, Parsed: out}, nil
}

// stageError classifies an invoker failure. A deadline hit by the run's own timeout becomes
// KindTimeout; a caller cancellation is returned as is.
func (o *Orchestrator) stageError(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return faults.Timeout(stage, err)
	}
	return faults.WithStage(err, stage)
}

func (o *Orchestrator) advance(run *Run, index int, name string) error {
	return o.transition(run, StateRunning, index, name, "")
}

func (o *Orchestrator) transition(run *Run, next State, index int, name, reason string) error {
	if err := run.transitionTo(next, index, name, reason, o.now()); err != nil {
		return err
	}
	if o.observer != nil {
		o.observer(run, run.Transitions[len(run.Transitions)-1])
	}
	return nil
}

func (o *Orchestrator) fail(run *Run, stage string, err error) {
	if stage != "" {
		if _, ok := faults.As(err); !ok {
			err = faults.WithStage(err, stage)
		}
	}
	run.Err = err
	run.FinishedAt = o.now()

	if terr := o.transition(run, StateFailed, 0, stage, err.Error()); terr != nil {
		o.logger.Error("run %s: %v", run.ID, terr)
	}

	outcome := metrics.OutcomeFailed
	if faults.Is(err, faults.KindTimeout) {
		outcome = metrics.OutcomeTimeout
	}
	o.recorder.ObserveRun(run.Pipeline, outcome, run.Duration())
	o.logger.Error("❌ run %s: %s pipeline failed at stage %d %s: %v", run.ID, run.Pipeline, run.Stage, stage, err)
}

// Describe returns a one-line summary of a run for logs and CLI output.
func Describe(run *Run) string {
	if run.Err != nil {
		return fmt.Sprintf("%s %s %s at stage %d: %v", run.Pipeline, run.ID, run.State, run.Stage, run.Err)
	}
	return fmt.Sprintf("%s %s %s (%d stages, %s)", run.Pipeline, run.ID, run.State, len(run.Transcript), run.Duration().Round(time.Millisecond))
}

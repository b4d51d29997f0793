package testkit

import (
	"context"
	"sync"

	"advisor/pkg/faults"
	"advisor/pkg/llm"
)

// Call is one recorded invocation.
type Call struct {
	Stage    string
	Pipeline string
	RunID    string
	System   string
	User     string
	Model    string
}

// StageInvoker replies with a canned text per stage, identified by the call info on the context.
// It is safe for concurrent use.
type StageInvoker struct {
	replies map[string]string
	errs    map[string]error

	mu    sync.Mutex
	calls []Call
}

// NewStageInvoker returns a stub replying from replies.
func NewStageInvoker(replies map[string]string) *StageInvoker {
	cp := make(map[string]string, len(replies))
	for k, v := range replies {
		cp[k] = v
	}
	return &StageInvoker{replies: cp, errs: make(map[string]error)}
}

// Reply overrides the canned reply for stage.
func (s *StageInvoker) Reply(stage, text string) *StageInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[stage] = text
	return s
}

// Fail makes stage return err.
func (s *StageInvoker) Fail(stage string, err error) *StageInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[stage] = err
	return s
}

// Invoke records the call and returns the canned reply for the calling stage.
func (s *StageInvoker) Invoke(ctx context.Context, system, user, model string, _ int) (string, error) {
	info := llm.CallInfoFrom(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		Stage:    info.Stage,
		Pipeline: info.Pipeline,
		RunID:    info.RunID,
		System:   system,
		User:     user,
		Model:    model,
	})

	if err := ctx.Err(); err != nil {
		return "", faults.ModelUnavailable(model, 1, 0, err)
	}
	if err := s.errs[info.Stage]; err != nil {
		return "", err
	}
	reply, ok := s.replies[info.Stage]
	if !ok {
		return "", faults.ModelUnavailable(model, 1, 404, faults.NotFound("canned reply for stage", info.Stage))
	}
	return reply, nil
}

// Calls returns a copy of every recorded call.
func (s *StageInvoker) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Stages returns the invoked stage names in call order.
func (s *StageInvoker) Stages() []string {
	calls := s.Calls()
	names := make([]string, len(calls))
	for i := range calls {
		names[i] = calls[i].Stage
	}
	return names
}

// Call returns the first recorded call for stage.
func (s *StageInvoker) Call(stage string) (Call, bool) {
	for _, c := range s.Calls() {
		if c.Stage == stage {
			return c, true
		}
	}
	return Call{}, false
}

package pipeline

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a run.
type State int

// Run states. A run starts Idle, moves through Running once per stage and ends Completed or Failed.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateIdle, StateRunning, StateCompleted, StateFailed} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", b)
}

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// validTransitions lists the allowed next states. Running -> Running advances to the next stage.
//
//nolint:gochecknoglobals // static transition table
var validTransitions = map[State][]State{
	StateIdle:    {StateRunning, StateFailed},
	StateRunning: {StateRunning, StateCompleted, StateFailed},
}

// Transition records one state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Stage     int       `json:"stage,omitempty"` // 1-based stage index when entering Running
	StageName string    `json:"stageName,omitempty"`
	At        time.Time `json:"at"`
	Reason    string    `json:"reason,omitempty"`
}

// Run is the record of one pipeline execution. It is owned by the goroutine executing it.
type Run struct {
	ID          string
	Pipeline    string
	Subject     string // what the run is about, usually a company name
	State       State
	Stage       int // 1-based index of the current or failing stage, 0 while Idle
	Transcript  Transcript
	Transitions []Transition
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// Subject is implemented by pipeline inputs that can label their runs.
type Subject interface {
	RunSubject() string
}

func newRun(id, pipeline string) *Run {
	return &Run{ID: id, Pipeline: pipeline, State: StateIdle}
}

// transitionTo moves the run to next, recording the change.
func (r *Run) transitionTo(next State, stage int, stageName, reason string, at time.Time) error {
	if !allowed(r.State, next) {
		return fmt.Errorf("invalid transition %s -> %s for run %s", r.State, next, r.ID)
	}
	r.Transitions = append(r.Transitions, Transition{
		From:      r.State,
		To:        next,
		Stage:     stage,
		StageName: stageName,
		At:        at,
		Reason:    reason,
	})
	r.State = next
	if stage > 0 {
		r.Stage = stage
	}
	return nil
}

func allowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Output returns the parsed output recorded for stage, or nil.
func (r *Run) Output(stage string) Output {
	if res, ok := r.Transcript.Find(stage); ok {
		return res.Parsed
	}
	return nil
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

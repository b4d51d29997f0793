// Package pipeline runs a fixed sequence of dependent model stages.
//
// Each stage is a pure description (StageSpec): prompt templates over the upstream context,
// the model tier to call and the typed shape its JSON reply must decode into. The Orchestrator
// executes stages strictly in order, feeding every earlier stage's raw reply and parsed output
// into the next stage's prompts, and either completes with a full transcript or fails naming
// the stage that broke.
package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"advisor/pkg/config"
)

// Tier selects which configured model a stage calls.
type Tier string

// Model tiers.
const (
	// TierFast is the cheaper model used for extraction and planning stages.
	TierFast Tier = "fast"
	// TierStrong is the stronger model used for creative and critical stages.
	TierStrong Tier = "strong"
)

// Resolve maps the tier to a model id from configuration.
func (t Tier) Resolve(models config.ModelsConfig) string {
	if t == TierStrong {
		return models.Strong
	}
	return models.Fast
}

// Output is the typed shape of a stage's parsed reply.
type Output interface {
	// Validate reports missing required fields and out-of-set enum literals.
	// Exact cardinalities are only enforced when strict is true.
	Validate(strict bool) error
}

// Template renders a prompt from the upstream context.
type Template func(c Context) string

// Static returns a Template that ignores upstream context.
func Static(s string) Template {
	return func(Context) string { return s }
}

// StageSpec describes one stage. Specs are defined statically per pipeline and never mutated.
type StageSpec struct {
	Name      string        // role label recorded in the transcript
	Tier      Tier          // model tier to call
	System    Template      // persona, output shape and enumerated literals
	User      Template      // upstream context rendered for this stage
	NewOutput func() Output // returns a pointer to a zero value of the expected shape
}

// Pipeline is an ordered, named list of stages.
type Pipeline struct {
	Name   string
	Stages []StageSpec
}

// Validate checks that the pipeline is runnable.
func (p Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is empty")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %s has no stages", p.Name)
	}
	seen := make(map[string]bool, len(p.Stages))
	for i := range p.Stages {
		s := &p.Stages[i]
		switch {
		case s.Name == "":
			return fmt.Errorf("pipeline %s stage %d has no name", p.Name, i+1)
		case seen[s.Name]:
			return fmt.Errorf("pipeline %s has duplicate stage %q", p.Name, s.Name)
		case s.System == nil || s.User == nil || s.NewOutput == nil:
			return fmt.Errorf("pipeline %s stage %q is incomplete", p.Name, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// StageNames lists the stage names in execution order.
func (p Pipeline) StageNames() []string {
	names := make([]string, len(p.Stages))
	for i := range p.Stages {
		names[i] = p.Stages[i].Name
	}
	return names
}

// Context is what a stage template can see: the caller's input and every stage completed so far.
type Context struct {
	Input     any
	Completed Transcript
}

// Raw returns the verbatim reply of the named upstream stage, or "" if it has not run.
func (c Context) Raw(stage string) string {
	if r, ok := c.Completed.Find(stage); ok {
		return r.RawContent
	}
	return ""
}

// Parsed returns the parsed output of the named upstream stage, or nil if it has not run.
func (c Context) Parsed(stage string) Output {
	if r, ok := c.Completed.Find(stage); ok {
		return r.Parsed
	}
	return nil
}

// StageResult is one completed exchange. RawContent is the model reply exactly as received.
type StageResult struct {
	Role       string `json:"role"`
	RawContent string `json:"content"`
	Parsed     Output `json:"-"`
}

// Transcript is the append-only, execution-ordered record of a run.
type Transcript []StageResult

// Find returns the result for stage.
func (t Transcript) Find(stage string) (StageResult, bool) {
	i := slices.IndexFunc(t, func(r StageResult) bool { return r.Role == stage })
	if i < 0 {
		return StageResult{}, false
	}
	return t[i], true
}

// String renders the transcript as labeled role/content blocks.
func (t Transcript) String() string {
	var b strings.Builder
	for i := range t {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n%s", t[i].Role, t[i].RawContent)
	}
	return b.String()
}

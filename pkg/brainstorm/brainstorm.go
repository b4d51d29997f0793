package brainstorm

import (
	"context"
	"fmt"
	"strings"

	"advisor/pkg/pipeline"
)

// PipelineName labels brainstorm runs in logs and metrics.
const PipelineName = "brainstorm"

// Stage names, recorded as transcript roles.
const (
	StageProfiler   = "Company Profiler Agent"
	StageDivergent  = "Divergent Brainstorm Agent"
	StageCritic     = "Synthesis & Critic Agent"
	StageRoundtable = "Agent Roundtable"
)

// Pipeline returns the four brainstorm stages in execution order. Every stage uses the strong tier.
func Pipeline() pipeline.Pipeline {
	return pipeline.Pipeline{
		Name: PipelineName,
		Stages: []pipeline.StageSpec{
			{
				Name:      StageProfiler,
				Tier:      pipeline.TierStrong,
				System:    pipeline.Static(profilerSystem),
				User:      profilerUser,
				NewOutput: func() pipeline.Output { return &Profile{} },
			},
			{
				Name:      StageDivergent,
				Tier:      pipeline.TierStrong,
				System:    pipeline.Static(divergentSystem),
				User:      divergentUser,
				NewOutput: func() pipeline.Output { return &Ideas{} },
			},
			{
				Name:      StageCritic,
				Tier:      pipeline.TierStrong,
				System:    pipeline.Static(criticSystem),
				User:      criticUser,
				NewOutput: func() pipeline.Output { return &Selection{} },
			},
			{
				Name:      StageRoundtable,
				Tier:      pipeline.TierStrong,
				System:    pipeline.Static(roundtableSystem),
				User:      roundtableUser,
				NewOutput: func() pipeline.Output { return &Roundtable{} },
			},
		},
	}
}

// Runner executes a pipeline. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, p pipeline.Pipeline, input any) (*pipeline.Run, error)
}

// Brainstorm runs the ideation pipeline for the trimmed company name.
func Brainstorm(ctx context.Context, r Runner, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)

	run, err := r.Run(ctx, Pipeline(), req)
	if err != nil {
		return nil, err
	}
	return Merge(run)
}

// Merge combines the outputs of a completed run into a Result.
func Merge(run *pipeline.Run) (*Result, error) {
	if run.State != pipeline.StateCompleted {
		return nil, fmt.Errorf("brainstorm run %s is %s, not completed", run.ID, run.State)
	}

	profile, ok1 := run.Output(StageProfiler).(*Profile)
	ideas, ok2 := run.Output(StageDivergent).(*Ideas)
	top, ok3 := run.Output(StageCritic).(*Selection)
	chat, ok4 := run.Output(StageRoundtable).(*Roundtable)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("brainstorm run %s is missing stage outputs", run.ID)
	}

	highlights := chat.Highlights
	if highlights == nil {
		highlights = []string{}
	}

	return &Result{
		Company:           *profile.Company,
		Ideas:             ideas.Ideas,
		TopIdeas:          top.TopIdeas,
		AgentChat:         chat.Messages,
		ChatHighlights:    highlights,
		GeneratedAt:       run.FinishedAt.UTC(),
		AgentConversation: run.Transcript,
	}, nil
}

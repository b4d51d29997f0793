package analysis

import (
	"context"
	"fmt"

	"advisor/pkg/pipeline"
)

// PipelineName labels analysis runs in logs and metrics.
const PipelineName = "analysis"

// Stage names, recorded as transcript roles.
const (
	StageResearch   = "Research Agent"
	StageSolutions  = "Creative Solutions Agent"
	StagePlan       = "Project Manager Agent"
	StageFinancials = "Financial Analyst Agent"
)

// Pipeline returns the four analysis stages in execution order.
func Pipeline() pipeline.Pipeline {
	return pipeline.Pipeline{
		Name: PipelineName,
		Stages: []pipeline.StageSpec{
			{
				Name:      StageResearch,
				Tier:      pipeline.TierFast,
				System:    pipeline.Static(researchSystem),
				User:      researchUser,
				NewOutput: func() pipeline.Output { return &Research{} },
			},
			{
				Name:      StageSolutions,
				Tier:      pipeline.TierStrong,
				System:    pipeline.Static(solutionsSystem),
				User:      solutionsUser,
				NewOutput: func() pipeline.Output { return &Solutions{} },
			},
			{
				Name:      StagePlan,
				Tier:      pipeline.TierFast,
				System:    pipeline.Static(planSystem),
				User:      planUser,
				NewOutput: func() pipeline.Output { return &Plan{} },
			},
			{
				Name:      StageFinancials,
				Tier:      pipeline.TierFast,
				System:    pipeline.Static(financialSystem),
				User:      financialUser,
				NewOutput: func() pipeline.Output { return &Financials{} },
			},
		},
	}
}

// Runner executes a pipeline. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, p pipeline.Pipeline, input any) (*pipeline.Run, error)
}

// Analyze validates in, runs the analysis pipeline and merges the stage outputs.
// On failure no partial result is returned.
func Analyze(ctx context.Context, r Runner, in CompanyInput) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	run, err := r.Run(ctx, Pipeline(), in)
	if err != nil {
		return nil, err
	}
	return Merge(in, run)
}

// Merge combines the outputs of a completed run into a Result.
func Merge(in CompanyInput, run *pipeline.Run) (*Result, error) {
	if run.State != pipeline.StateCompleted {
		return nil, fmt.Errorf("analysis run %s is %s, not completed", run.ID, run.State)
	}

	research, ok1 := run.Output(StageResearch).(*Research)
	solutions, ok2 := run.Output(StageSolutions).(*Solutions)
	plan, ok3 := run.Output(StagePlan).(*Plan)
	financials, ok4 := run.Output(StageFinancials).(*Financials)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("analysis run %s is missing stage outputs", run.ID)
	}

	quality := research.DataQuality
	if quality == "" {
		quality = DataQualityPartial
	}
	missing := research.MissingData
	if missing == nil {
		missing = []string{}
	}

	return &Result{
		Company: in,
		CompanyInfo: CompanyInfo{
			Found:       true,
			Details:     research.CompanyProfile,
			Industry:    in.Industry,
			Size:        in.CompanyType,
			DataQuality: quality,
			MissingData: missing,
		},
		Suggestions:       solutions.Suggestions,
		ActionPlan:        plan.ActionPlan,
		ROIEstimate:       *financials.ROIEstimate,
		GeneratedAt:       run.FinishedAt.UTC(),
		AgentConversation: run.Transcript,
	}, nil
}

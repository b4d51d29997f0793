package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/config"
	"advisor/pkg/faults"
	"advisor/pkg/pipeline"
	"advisor/pkg/testkit"
)

func acme() CompanyInput {
	return CompanyInput{
		CompanyType: "sme",
		CompanyName: "Acme AB",
		Industry:    "retail",
		Challenges:  "Manuell lagerplanering",
		Goals:       "Minska svinn",
	}
}

func newOrchestrator(t *testing.T, inv pipeline.Invoker) *pipeline.Orchestrator {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.StrictValidation = true
	return pipeline.NewOrchestrator(inv, cfg)
}

func TestAnalyzeAcme(t *testing.T) {
	inv := testkit.NewStageInvoker(testkit.AnalysisReplies())
	orch := newOrchestrator(t, inv)

	start := time.Now().UTC().Truncate(time.Second)
	res, err := Analyze(context.Background(), orch, acme())
	require.NoError(t, err)

	assert.Len(t, res.Suggestions, testkit.AnalysisSuggestions)
	assert.Len(t, res.ActionPlan, testkit.AnalysisPhases)
	assert.False(t, res.GeneratedAt.Before(start), "generatedAt %s before run start %s", res.GeneratedAt, start)

	assert.Equal(t, acme(), res.Company)
	assert.True(t, res.CompanyInfo.Found)
	assert.Equal(t, "retail", res.CompanyInfo.Industry)
	assert.Equal(t, "sme", res.CompanyInfo.Size)
	assert.Equal(t, DataQualityPartial, res.CompanyInfo.DataQuality)
	assert.Equal(t, []string{"Omsättning", "Antal anställda"}, res.CompanyInfo.MissingData)
	assert.Contains(t, res.CompanyInfo.Details, "Acme AB")

	assert.InDelta(t, 45, res.Suggestions[0].EstimatedROI.Percentage, 0, "range collapsed to its first bound")
	assert.InDelta(t, 8, res.ROIEstimate.BreakEvenMonths, 0)
	assert.InDelta(t, 400000, res.ROIEstimate.TotalInvestment, 0)

	require.Len(t, res.AgentConversation, 4)
	assert.Equal(t, []string{StageResearch, StageSolutions, StagePlan, StageFinancials}, Pipeline().StageNames())
	for i, name := range Pipeline().StageNames() {
		assert.Equal(t, name, res.AgentConversation[i].Role)
		assert.Equal(t, testkit.AnalysisReplies()[name], res.AgentConversation[i].RawContent)
	}

	testkit.AssertCalledStages(t, inv, StageResearch, StageSolutions, StagePlan, StageFinancials)
}

func TestStagesReceiveUpstreamRawText(t *testing.T) {
	inv := testkit.NewStageInvoker(testkit.AnalysisReplies())
	_, err := Analyze(context.Background(), newOrchestrator(t, inv), acme())
	require.NoError(t, err)

	testkit.AssertUserMessageContains(t, inv, StageResearch, "Företagsnamn: Acme AB")
	testkit.AssertUserMessageContains(t, inv, StageResearch, "Nuvarande processer: Ej specificerat")
	testkit.AssertUserMessageContains(t, inv, StageSolutions, testkit.ResearchReply)
	testkit.AssertUserMessageContains(t, inv, StagePlan, testkit.SolutionsReply)
	testkit.AssertUserMessageContains(t, inv, StageFinancials, testkit.SolutionsReply)
	testkit.AssertUserMessageContains(t, inv, StageFinancials, testkit.PlanReply)
}

func TestModelTiers(t *testing.T) {
	inv := testkit.NewStageInvoker(testkit.AnalysisReplies())
	_, err := Analyze(context.Background(), newOrchestrator(t, inv), acme())
	require.NoError(t, err)

	models := map[string]string{}
	for _, c := range inv.Calls() {
		models[c.Stage] = c.Model
	}
	assert.Equal(t, map[string]string{
		StageResearch:   config.ModelGeminiFlash,
		StageSolutions:  config.ModelGeminiPro,
		StagePlan:       config.ModelGeminiFlash,
		StageFinancials: config.ModelGeminiFlash,
	}, models)
}

func TestPromptsEnumerateLiterals(t *testing.T) {
	system := Pipeline().Stages
	for _, lit := range append(append(categories, levels...), priorities...) {
		assert.Contains(t, system[1].System(pipeline.Context{}), lit)
	}
	for _, lit := range dataQualities {
		assert.Contains(t, system[0].System(pipeline.Context{}), lit)
	}
	assert.Contains(t, system[3].System(pipeline.Context{}), "Småföretag (SME): 300,000 - 500,000 SEK")
}

func TestFailureShortCircuits(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testkit.StageInvoker)
		kind  faults.Kind
	}{
		{"invoker exhaustion", func(s *testkit.StageInvoker) {
			s.Fail(StageSolutions, faults.ModelUnavailable(config.ModelGeminiPro, 3, 503, errors.New("overloaded")))
		}, faults.KindModelUnavailable},
		{"parse failure", func(s *testkit.StageInvoker) {
			s.Reply(StageSolutions, "Jag föreslår att ni börjar med en chatbot.")
		}, faults.KindMalformedStageOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := testkit.NewStageInvoker(testkit.AnalysisReplies())
			tt.setup(inv)

			res, err := Analyze(context.Background(), newOrchestrator(t, inv), acme())
			assert.Nil(t, res)
			testkit.AssertFaultAtStage(t, err, tt.kind, StageSolutions)
			testkit.AssertCalledStages(t, inv, StageResearch, StageSolutions)
		})
	}
}

func TestOutOfSetLiteralsAreRejected(t *testing.T) {
	tests := []struct {
		name, good, bad, literal string
	}{
		{"category", `"category": "analytics"`, `"category": "robotics"`, "robotics"},
		{"priority", `"priority": "strategic"`, `"priority": "urgent"`, "urgent"},
		{"complexity", `"implementationComplexity": "high"`, `"implementationComplexity": "extreme"`, "extreme"},
		{"confidence", `"confidence": "low"`, `"confidence": "certain"`, "certain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, testkit.SolutionsReply, tt.good)
			reply := strings.Replace(testkit.SolutionsReply, tt.good, tt.bad, 1)
			inv := testkit.NewStageInvoker(testkit.AnalysisReplies()).Reply(StageSolutions, reply)

			_, err := Analyze(context.Background(), newOrchestrator(t, inv), acme())
			testkit.AssertFaultAtStage(t, err, faults.KindMalformedStageOutput, StageSolutions)
			assert.Contains(t, err.Error(), tt.literal)
			testkit.AssertCalledStages(t, inv, StageResearch, StageSolutions)
		})
	}
}

func TestEmptyCompanyNameIsInvalidInput(t *testing.T) {
	inv := testkit.NewStageInvoker(testkit.AnalysisReplies())
	in := acme()
	in.CompanyName = "  "

	_, err := Analyze(context.Background(), newOrchestrator(t, inv), in)
	testkit.AssertFault(t, err, faults.KindInvalidInput)
	assert.Empty(t, inv.Calls())
}

func TestValidateOutputs(t *testing.T) {
	assert.Error(t, (&Research{}).Validate(false))
	assert.NoError(t, (&Research{CompanyProfile: "x"}).Validate(false), "dataQuality may be omitted")
	assert.Error(t, (&Research{CompanyProfile: "x", DataQuality: "great"}).Validate(false))

	one := Suggestion{Title: "t", Category: CategoryAgentic, Priority: PriorityStrategic,
		ImplementationComplexity: LevelLow, EstimatedROI: EstimatedROI{Confidence: LevelHigh}}
	assert.NoError(t, (&Solutions{Suggestions: []Suggestion{one}}).Validate(false))
	assert.Error(t, (&Solutions{Suggestions: []Suggestion{one}}).Validate(true), "strict needs 4-5 suggestions")
	assert.Error(t, (&Solutions{}).Validate(false))
	for _, n := range []int{4, 5} {
		assert.NoError(t, (&Solutions{Suggestions: slices.Repeat([]Suggestion{one}, n)}).Validate(true), "%d suggestions", n)
	}
	assert.Error(t, (&Solutions{Suggestions: slices.Repeat([]Suggestion{one}, 6)}).Validate(true))

	phase := Phase{Name: "p", Tasks: []Task{{Title: "t", Status: "done"}}}
	assert.Error(t, (&Plan{ActionPlan: []Phase{phase}}).Validate(false))

	assert.Error(t, (&Financials{}).Validate(false))
	assert.Error(t, (&Financials{ROIEstimate: &ROIEstimate{ConfidenceLevel: "medium", TotalInvestment: -1}}).Validate(false))
}

func TestResultJSONShape(t *testing.T) {
	inv := testkit.NewStageInvoker(testkit.AnalysisReplies())
	res, err := Analyze(context.Background(), newOrchestrator(t, inv), acme())
	require.NoError(t, err)

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(b, &generic))
	for _, key := range []string{"company", "companyInfo", "suggestions", "actionPlan", "roiEstimate", "generatedAt", "agentConversation"} {
		assert.Contains(t, generic, key)
	}
	conv := generic["agentConversation"].([]any)
	assert.Equal(t, StageResearch, conv[0].(map[string]any)["role"])
	assert.Contains(t, conv[0].(map[string]any), "content")

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Len(t, back.Suggestions, testkit.AnalysisSuggestions)
	assert.Equal(t, res.AverageROIPercentage(), back.AverageROIPercentage())
}

func TestAverageROIPercentage(t *testing.T) {
	r := &Result{}
	assert.Equal(t, 0, r.AverageROIPercentage())

	r.Suggestions = []Suggestion{
		{EstimatedROI: EstimatedROI{Percentage: 45}},
		{EstimatedROI: EstimatedROI{Percentage: 30}},
		{EstimatedROI: EstimatedROI{Percentage: 50}},
		{EstimatedROI: EstimatedROI{Percentage: 35}},
	}
	assert.Equal(t, 40, r.AverageROIPercentage())
}

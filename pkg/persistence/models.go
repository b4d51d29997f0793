package persistence

import (
	"time"

	"github.com/google/uuid"

	"advisor/pkg/analysis"
	"advisor/pkg/pipeline"
)

// StatusCompleted is the only status a saved analysis currently takes.
const StatusCompleted = "completed"

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SavedAnalysis is one stored analysis. The JSON form uses the column names.
type SavedAnalysis struct {
	ID                 string                `json:"id"`
	CompanyName        string                `json:"company_name"`
	Industry           string                `json:"industry"`
	CompanyType        string                `json:"company_type"`
	Challenges         string                `json:"challenges"`
	Goals              string                `json:"goals"`
	CurrentProcesses   string                `json:"current_processes"`
	Suggestions        []analysis.Suggestion `json:"suggestions"`
	ActionPlan         []analysis.Phase      `json:"action_plan"`
	ROIEstimate        analysis.ROIEstimate  `json:"roi_estimate"`
	CompanyInfo        analysis.CompanyInfo  `json:"company_info"`
	AgentConversation  pipeline.Transcript   `json:"agent_conversation"`
	TotalROIPercentage int                   `json:"total_roi_percentage"`
	TotalInvestment    float64               `json:"total_investment"`
	SuggestionsCount   int                   `json:"suggestions_count"`
	Status             string                `json:"status"`
	GeneratedAt        time.Time             `json:"generated_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// NewSavedAnalysis flattens a result into a record with a fresh id and derived totals.
func NewSavedAnalysis(res *analysis.Result, now time.Time) *SavedAnalysis {
	now = now.UTC()
	return &SavedAnalysis{
		ID:                 uuid.NewString(),
		CompanyName:        res.Company.CompanyName,
		Industry:           res.Company.Industry,
		CompanyType:        res.Company.CompanyType,
		Challenges:         res.Company.Challenges,
		Goals:              res.Company.Goals,
		CurrentProcesses:   res.Company.CurrentProcesses,
		Suggestions:        res.Suggestions,
		ActionPlan:         res.ActionPlan,
		ROIEstimate:        res.ROIEstimate,
		CompanyInfo:        res.CompanyInfo,
		AgentConversation:  res.AgentConversation,
		TotalROIPercentage: res.AverageROIPercentage(),
		TotalInvestment:    res.ROIEstimate.TotalInvestment,
		SuggestionsCount:   len(res.Suggestions),
		Status:             StatusCompleted,
		GeneratedAt:        res.GeneratedAt.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Result rebuilds the analysis result, for export.
func (a *SavedAnalysis) Result() *analysis.Result {
	return &analysis.Result{
		Company: analysis.CompanyInput{
			CompanyType:      a.CompanyType,
			CompanyName:      a.CompanyName,
			Industry:         a.Industry,
			Challenges:       a.Challenges,
			Goals:            a.Goals,
			CurrentProcesses: a.CurrentProcesses,
		},
		CompanyInfo:       a.CompanyInfo,
		Suggestions:       a.Suggestions,
		ActionPlan:        a.ActionPlan,
		ROIEstimate:       a.ROIEstimate,
		GeneratedAt:       a.GeneratedAt,
		AgentConversation: a.AgentConversation,
	}
}

// AnalysisSummary is the list view of a saved analysis.
type AnalysisSummary struct {
	ID                 string    `json:"id"`
	CompanyName        string    `json:"company_name"`
	Industry           string    `json:"industry"`
	CompanyType        string    `json:"company_type"`
	TotalROIPercentage int       `json:"total_roi_percentage"`
	TotalInvestment    float64   `json:"total_investment"`
	SuggestionsCount   int       `json:"suggestions_count"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// RunRecord is the stored history of one pipeline run.
type RunRecord struct {
	ID           string                `json:"id"`
	Pipeline     string                `json:"pipeline"`
	Subject      string                `json:"subject"`
	State        string                `json:"state"`
	Stage        int                   `json:"stage"`
	ErrorKind    string                `json:"error_kind,omitempty"`
	ErrorStage   string                `json:"error_stage,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Transitions  []pipeline.Transition `json:"transitions"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

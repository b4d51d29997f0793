// Package analysis is the four-stage business-analysis pipeline: research, creative AI
// solutions, a phased project plan and a financial ROI estimate for one company.
package analysis

import (
	"fmt"
	"strings"
	"time"

	"advisor/pkg/faults"
	"advisor/pkg/pipeline"
)

// Enumerated literals accepted in stage outputs.
const (
	DataQualityComplete = "complete"
	DataQualityPartial  = "partial"
	DataQualityLimited  = "limited"

	CategoryGenerative = "generative"
	CategoryAgentic    = "agentic"
	CategoryAutomation = "automation"
	CategoryAnalytics  = "analytics"

	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"

	PriorityQuickWin  = "quick-win"
	PriorityStrategic = "strategic"
	PriorityLongTerm  = "long-term"

	TaskPending    = "pending"
	TaskInProgress = "in-progress"
	TaskCompleted  = "completed"
)

//nolint:gochecknoglobals // enumerations
var (
	dataQualities = []string{DataQualityComplete, DataQualityPartial, DataQualityLimited}
	categories    = []string{CategoryGenerative, CategoryAgentic, CategoryAutomation, CategoryAnalytics}
	levels        = []string{LevelLow, LevelMedium, LevelHigh}
	priorities    = []string{PriorityQuickWin, PriorityStrategic, PriorityLongTerm}
	taskStatuses  = []string{TaskPending, TaskInProgress, TaskCompleted}
)

// CompanyInput describes the company to analyze. It is never modified by the pipeline.
type CompanyInput struct {
	CompanyType      string `json:"companyType" yaml:"companyType"`
	CompanyName      string `json:"companyName" yaml:"companyName"`
	Industry         string `json:"industry" yaml:"industry"`
	Challenges       string `json:"challenges" yaml:"challenges"`
	Goals            string `json:"goals" yaml:"goals"`
	CurrentProcesses string `json:"currentProcesses" yaml:"currentProcesses"`
}

// RunSubject labels pipeline runs with the company name.
func (in CompanyInput) RunSubject() string {
	return strings.TrimSpace(in.CompanyName)
}

// Validate rejects input the pipeline cannot run with.
func (in CompanyInput) Validate() error {
	if strings.TrimSpace(in.CompanyName) == "" {
		return faults.InvalidInput("companyName is required")
	}
	return nil
}

// Research is the Research Agent output.
type Research struct {
	CompanyProfile       string   `json:"companyProfile"`
	IndustryContext      string   `json:"industryContext"`
	IdentifiedChallenges []string `json:"identifiedChallenges"`
	OpportunityAreas     []string `json:"opportunityAreas"`
	DataQuality          string   `json:"dataQuality"`
	MissingData          []string `json:"missingData"`
}

// Validate implements pipeline.Output.
func (r *Research) Validate(bool) error {
	var c pipeline.Checks
	c.Required("companyProfile", r.CompanyProfile)
	c.OneOf("dataQuality", r.DataQuality, false, dataQualities...)
	return c.Err()
}

// EstimatedROI is a suggestion's expected return.
type EstimatedROI struct {
	Percentage float64 `json:"percentage"`
	Timeframe  string  `json:"timeframe"`
	Confidence string  `json:"confidence"`
}

// Suggestion is one proposed AI solution.
type Suggestion struct {
	ID                       string       `json:"id"`
	Category                 string       `json:"category"`
	Title                    string       `json:"title"`
	Description              string       `json:"description"`
	UseCases                 []string     `json:"useCases"`
	EstimatedROI             EstimatedROI `json:"estimatedROI"`
	ImplementationComplexity string       `json:"implementationComplexity"`
	Priority                 string       `json:"priority"`
}

// Solutions is the Creative Solutions Agent output.
type Solutions struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Validate implements pipeline.Output. Strict mode requires 4-5 suggestions.
func (s *Solutions) Validate(strict bool) error {
	var c pipeline.Checks
	c.NonEmpty("suggestions", len(s.Suggestions))
	if strict {
		c.Count("suggestions", len(s.Suggestions), 4, 5)
	}
	for i := range s.Suggestions {
		sg := &s.Suggestions[i]
		field := fmt.Sprintf("suggestions[%d]", i)
		c.Required(field+".title", sg.Title)
		c.OneOf(field+".category", sg.Category, true, categories...)
		c.OneOf(field+".estimatedROI.confidence", sg.EstimatedROI.Confidence, true, levels...)
		c.OneOf(field+".implementationComplexity", sg.ImplementationComplexity, true, levels...)
		c.OneOf(field+".priority", sg.Priority, true, priorities...)
		c.NonNegative(field+".estimatedROI.percentage", sg.EstimatedROI.Percentage)
	}
	return c.Err()
}

// Task is one unit of work inside a phase.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Responsible  string   `json:"responsible"`
	Duration     string   `json:"duration"`
	Dependencies []string `json:"dependencies"`
	Status       string   `json:"status"`
}

// Phase is one stage of the implementation plan.
type Phase struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Duration     string   `json:"duration"`
	Tasks        []Task   `json:"tasks"`
	Milestones   []string `json:"milestones"`
	Deliverables []string `json:"deliverables"`
}

// Plan is the Project Manager Agent output.
type Plan struct {
	ActionPlan []Phase `json:"actionPlan"`
}

// Validate implements pipeline.Output. Strict mode requires the four prescribed phases.
func (p *Plan) Validate(strict bool) error {
	var c pipeline.Checks
	c.NonEmpty("actionPlan", len(p.ActionPlan))
	if strict {
		c.Count("actionPlan", len(p.ActionPlan), 4, 4)
	}
	for i := range p.ActionPlan {
		ph := &p.ActionPlan[i]
		field := fmt.Sprintf("actionPlan[%d]", i)
		c.Required(field+".name", ph.Name)
		for j := range ph.Tasks {
			c.Required(fmt.Sprintf("%s.tasks[%d].title", field, j), ph.Tasks[j].Title)
			c.OneOf(fmt.Sprintf("%s.tasks[%d].status", field, j), ph.Tasks[j].Status, false, taskStatuses...)
		}
	}
	return c.Err()
}

// LineItem is one cost saving or revenue increase.
type LineItem struct {
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// ROIEstimate is the financial estimate, amounts in SEK.
type ROIEstimate struct {
	TotalInvestment  float64    `json:"totalInvestment"`
	YearOneReturns   float64    `json:"yearOneReturns"`
	YearThreeReturns float64    `json:"yearThreeReturns"`
	BreakEvenMonths  float64    `json:"breakEvenMonths"`
	CostSavings      []LineItem `json:"costSavings"`
	RevenueIncrease  []LineItem `json:"revenueIncrease"`
	ConfidenceLevel  string     `json:"confidenceLevel"`
	Assumptions      []string   `json:"assumptions"`
}

// Financials is the Financial Analyst Agent output.
type Financials struct {
	ROIEstimate *ROIEstimate `json:"roiEstimate"`
}

// Validate implements pipeline.Output.
func (f *Financials) Validate(bool) error {
	var c pipeline.Checks
	if f.ROIEstimate == nil {
		c.Addf("roiEstimate is required")
		return c.Err()
	}
	r := f.ROIEstimate
	c.NonNegative("roiEstimate.totalInvestment", r.TotalInvestment)
	c.NonNegative("roiEstimate.breakEvenMonths", r.BreakEvenMonths)
	c.OneOf("roiEstimate.confidenceLevel", r.ConfidenceLevel, true, levels...)
	return c.Err()
}

// CompanyInfo summarizes what the research stage found.
type CompanyInfo struct {
	Found       bool     `json:"found"`
	Details     string   `json:"details,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Size        string   `json:"size,omitempty"`
	DataQuality string   `json:"dataQuality"`
	MissingData []string `json:"missingData"`
}

// Result is the merged outcome of a completed analysis run.
type Result struct {
	Company           CompanyInput        `json:"company"`
	CompanyInfo       CompanyInfo         `json:"companyInfo"`
	Suggestions       []Suggestion        `json:"suggestions"`
	ActionPlan        []Phase             `json:"actionPlan"`
	ROIEstimate       ROIEstimate         `json:"roiEstimate"`
	GeneratedAt       time.Time           `json:"generatedAt"`
	AgentConversation pipeline.Transcript `json:"agentConversation,omitempty"`
}

// AverageROIPercentage is the rounded mean of the suggestions' estimated ROI, 0 when there are none.
func (r *Result) AverageROIPercentage() int {
	if len(r.Suggestions) == 0 {
		return 0
	}
	var sum float64
	for i := range r.Suggestions {
		sum += r.Suggestions[i].EstimatedROI.Percentage
	}
	avg := sum / float64(len(r.Suggestions))
	return int(avg + 0.5)
}

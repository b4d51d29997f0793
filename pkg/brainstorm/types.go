// Package brainstorm is the four-stage open-ended ideation pipeline: infer a company profile
// from a bare name, generate ten divergent ideas, select and sharpen the top five and simulate a
// roundtable between specialist personas.
package brainstorm

import (
	"fmt"
	"strings"
	"time"

	"advisor/pkg/faults"
	"advisor/pkg/pipeline"
)

// Required collection sizes, enforced when strict validation is on.
const (
	IdeaCount        = 10
	TopIdeaCount     = 5
	MinMessages      = 10
	MaxMessages      = 16
	MinMVPWeeks      = 1
	MaxMVPWeeks      = 12
	MinHowItWorks    = 3
	MaxHowItWorks    = 6
	companyTypesList = "startup|sme|midmarket|enterprise"
)

// Roundtable personas.
const (
	RoleStrategist = "Strateg"
	RoleEngineer   = "Engineer"
	RoleSkeptic    = "Skeptic"
	RoleDomain     = "Domain"
)

//nolint:gochecknoglobals // enumerations
var (
	companyTypes = strings.Split(companyTypesList, "|")
	roles        = []string{RoleStrategist, RoleEngineer, RoleSkeptic, RoleDomain}
)

// Request is the ideation input: only a company name.
type Request struct {
	CompanyName string `json:"companyName"`
}

// RunSubject labels pipeline runs with the company name.
func (r Request) RunSubject() string {
	return strings.TrimSpace(r.CompanyName)
}

// Validate trims the name and rejects blanks.
func (r Request) Validate() error {
	if strings.TrimSpace(r.CompanyName) == "" {
		return faults.InvalidInput("companyName is required")
	}
	return nil
}

// Company is the inferred profile.
type Company struct {
	CompanyName      string   `json:"companyName"`
	InferredIndustry string   `json:"inferredIndustry"`
	CompanyType      string   `json:"companyType"`
	WhatTheyLikelyDo string   `json:"whatTheyLikelyDo"`
	WhyThisInference []string `json:"whyThisInference"`
	Assumptions      []string `json:"assumptions"`
	MissingData      []string `json:"missingData"`
}

// Profile is the Company Profiler Agent output.
type Profile struct {
	Company *Company `json:"company"`
}

// Validate implements pipeline.Output.
func (p *Profile) Validate(bool) error {
	var c pipeline.Checks
	if p.Company == nil {
		c.Addf("company is required")
		return c.Err()
	}
	c.Required("company.companyName", p.Company.CompanyName)
	c.OneOf("company.companyType", p.Company.CompanyType, true, companyTypes...)
	return c.Err()
}

// Idea is one divergent idea.
type Idea struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	OneLiner        string   `json:"oneLiner"`
	NovelMechanism  string   `json:"novelMechanism"`
	HowItWorks      []string `json:"howItWorks"`
	DataSignals     []string `json:"dataSignals"`
	MVPInWeeks      int      `json:"mvpInWeeks"`
	Team            []string `json:"team"`
	CanDoInHouse    *bool    `json:"canDoInHouse"`
	KeyRisks        []string `json:"keyRisks"`
	FirstExperiment string   `json:"firstExperiment"`
}

// Ideas is the Divergent Brainstorm Agent output.
type Ideas struct {
	Ideas []Idea `json:"ideas"`
}

// Validate implements pipeline.Output. mvpInWeeks and canDoInHouse are always checked;
// the idea count and howItWorks length only in strict mode.
func (o *Ideas) Validate(strict bool) error {
	var c pipeline.Checks
	c.NonEmpty("ideas", len(o.Ideas))
	if strict {
		c.Count("ideas", len(o.Ideas), IdeaCount, IdeaCount)
	}
	for i := range o.Ideas {
		idea := &o.Ideas[i]
		field := fmt.Sprintf("ideas[%d]", i)
		c.Required(field+".title", idea.Title)
		c.Range(field+".mvpInWeeks", idea.MVPInWeeks, MinMVPWeeks, MaxMVPWeeks)
		if idea.CanDoInHouse == nil {
			c.Addf("%s.canDoInHouse is required", field)
		}
		if strict {
			c.Count(field+".howItWorks", len(idea.HowItWorks), MinHowItWorks, MaxHowItWorks)
		}
	}
	return c.Err()
}

// TopIdea is one refined idea chosen by the critic.
type TopIdea struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	WhyThisWins         []string `json:"whyThisWins"`
	WhatToDeRiskFirst   []string `json:"whatToDeRiskFirst"`
	MVPPlan             []string `json:"mvpPlan"`
	KPIs                []string `json:"kpis"`
	AntiPatternsToAvoid []string `json:"antiPatternsToAvoid"`
	PromptToStartCoding string   `json:"promptToStartCoding"`
}

// Selection is the Synthesis & Critic Agent output.
type Selection struct {
	TopIdeas []TopIdea `json:"topIdeas"`
}

// Validate implements pipeline.Output.
func (s *Selection) Validate(strict bool) error {
	var c pipeline.Checks
	c.NonEmpty("topIdeas", len(s.TopIdeas))
	if strict {
		c.Count("topIdeas", len(s.TopIdeas), TopIdeaCount, TopIdeaCount)
	}
	for i := range s.TopIdeas {
		c.Required(fmt.Sprintf("topIdeas[%d].title", i), s.TopIdeas[i].Title)
	}
	return c.Err()
}

// ChatMessage is one roundtable utterance.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roundtable is the Agent Roundtable output.
type Roundtable struct {
	Messages   []ChatMessage `json:"messages"`
	Highlights []string      `json:"highlights"`
}

// Validate implements pipeline.Output.
func (r *Roundtable) Validate(strict bool) error {
	var c pipeline.Checks
	c.NonEmpty("messages", len(r.Messages))
	if strict {
		c.Count("messages", len(r.Messages), MinMessages, MaxMessages)
	}
	for i := range r.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		c.OneOf(field+".role", r.Messages[i].Role, true, roles...)
		c.Required(field+".content", r.Messages[i].Content)
	}
	return c.Err()
}

// Result is the merged outcome of a completed brainstorm run.
type Result struct {
	Company           Company             `json:"company"`
	Ideas             []Idea              `json:"ideas"`
	TopIdeas          []TopIdea           `json:"topIdeas"`
	AgentChat         []ChatMessage       `json:"agentChat"`
	ChatHighlights    []string            `json:"chatHighlights"`
	GeneratedAt       time.Time           `json:"generatedAt"`
	AgentConversation pipeline.Transcript `json:"agentConversation"`
}

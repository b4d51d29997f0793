package testkit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Canned analysis replies, written the way models tend to answer: fenced, sometimes with prose,
// ranges where integers are expected and trailing commas.
const (
	ResearchReply = "```json\n" + `{
  "companyProfile": "Acme AB är en svensk detaljhandelskedja med fysiska butiker och e-handel.",
  "industryContext": "Detaljhandeln pressas av e-handel och stigande kostnader.",
  "identifiedChallenges": ["Manuell lagerplanering", "Låg konvertering online"],
  "opportunityAreas": ["Efterfrågeprognoser", "Personalisering"],
  "dataQuality": "partial",
  "missingData": ["Omsättning", "Antal anställda"],
}` + "\n```"

	SolutionsReply = "Här är mina förslag:\n```json\n" + `{
  "suggestions": [
    {
      "id": "demand-forecast",
      "category": "analytics",
      "title": "AI-driven efterfrågeprognos",
      "description": "Prognostisera försäljning per butik och artikel för att minska svinn.",
      "useCases": ["Inköp", "Bemanning", "Kampanjplanering"],
      "estimatedROI": {"percentage": 45-60, "timeframe": "6-12 månader", "confidence": "high"},
      "implementationComplexity": "medium",
      "priority": "quick-win"
    },
    {
      "id": "product-copy",
      "category": "generative",
      "title": "Generativa produkttexter",
      "description": "Skapa produktbeskrivningar automatiskt för e-handeln.",
      "useCases": ["Produktsidor", "Nyhetsbrev"],
      "estimatedROI": {"percentage": 30, "timeframe": "3-6 månader", "confidence": "medium"},
      "implementationComplexity": "low",
      "priority": "quick-win"
    },
    {
      "id": "service-agent",
      "category": "agentic",
      "title": "Autonom kundtjänstagent",
      "description": "En agent som hanterar returer och orderfrågor från början till slut.",
      "useCases": ["Returer", "Orderstatus"],
      "estimatedROI": {"percentage": 50, "timeframe": "12-18 månader", "confidence": "medium"},
      "implementationComplexity": "high",
      "priority": "strategic"
    },
    {
      "id": "invoice-flow",
      "category": "automation",
      "title": "Automatiserad fakturahantering",
      "description": "Tolka och kontera leverantörsfakturor automatiskt.",
      "useCases": ["Leverantörsfakturor"],
      "estimatedROI": {"percentage": 35, "timeframe": "6-12 månader", "confidence": "low"},
      "implementationComplexity": "medium",
      "priority": "long-term"
    },
  ]
}` + "\n```\nLycka till!"

	PlanReply = `{
  "actionPlan": [
    {"id": "phase-1", "name": "Förstudie & Planering", "duration": "2-3 veckor",
     "tasks": [{"id": "t1", "title": "Kartlägg datakällor", "description": "Inventera kassasystem och e-handelsdata", "responsible": "Dataanalytiker", "duration": "1 vecka", "dependencies": [], "status": "pending"}],
     "milestones": ["Beslut om PoC"], "deliverables": ["Förstudierapport"]},
    {"id": "phase-2", "name": "Proof of Concept", "duration": "4-6 veckor",
     "tasks": [{"id": "t2", "title": "Bygg prognosmodell", "description": "Träna en första modell på historisk försäljning", "responsible": "ML-ingenjör", "duration": "3 veckor", "dependencies": ["t1"], "status": "pending"}],
     "milestones": ["PoC demonstrerad"], "deliverables": ["Prototyp"]},
    {"id": "phase-3", "name": "Pilot & Skalning", "duration": "6-8 veckor",
     "tasks": [{"id": "t3", "title": "Pilot i fem butiker", "description": "Kör prognoser skarpt i utvalda butiker", "responsible": "Projektledare", "duration": "6 veckor", "dependencies": ["t2"], "status": "pending"}],
     "milestones": ["Pilot utvärderad"], "deliverables": ["Pilotrapport"]},
    {"id": "phase-4", "name": "Optimering & Kontinuerlig förbättring", "duration": "Löpande",
     "tasks": [{"id": "t4", "title": "Månatlig uppföljning", "description": "Följ upp träffsäkerhet och justera modellen", "responsible": "AI-team", "duration": "Löpande", "dependencies": ["t3"], "status": "pending"}],
     "milestones": ["Full utrullning"], "deliverables": ["Driftsmodell"]}
  ]
}`

	FinancialReply = "```\n" + `{
  "roiEstimate": {
    "totalInvestment": 400000,
    "yearOneReturns": 600000,
    "yearThreeReturns": 1800000,
    "breakEvenMonths": 8-10,
    "costSavings": [{"category": "Minskat svinn", "amount": 250000, "description": "Bättre inköp"}],
    "revenueIncrease": [{"category": "Ökad konvertering", "amount": 350000, "description": "Bättre produkttexter"}],
    "confidenceLevel": "medium",
    "assumptions": ["Historisk data finns för minst två år", "Butikerna följer prognoserna"],
  }
}` + "\n```"
)

// AnalysisSuggestions and AnalysisPhases are the collection sizes in the canned analysis replies.
const (
	AnalysisSuggestions = 4
	AnalysisPhases      = 4
)

// AnalysisReplies maps analysis stage names to canned replies.
func AnalysisReplies() map[string]string {
	return map[string]string{
		"Research Agent":           ResearchReply,
		"Creative Solutions Agent": SolutionsReply,
		"Project Manager Agent":    PlanReply,
		"Financial Analyst Agent":  FinancialReply,
	}
}

// ProfileReply is a canned Company Profiler Agent reply.
const ProfileReply = `{
  "company": {
    "companyName": "Acme AB",
    "inferredIndustry": "Detaljhandel",
    "companyType": "sme",
    "whatTheyLikelyDo": "Säljer verktyg och hushållsprodukter i butik och online.",
    "whyThisInference": ["Namnet förekommer ofta för handelsbolag"],
    "assumptions": ["Verksamhet i Sverige"],
    "missingData": ["Omsättning"]
  }
}`

// IdeasReply returns a Divergent Brainstorm Agent reply with n ideas.
func IdeasReply(n int) string {
	ideas := make([]map[string]any, n)
	for i := range ideas {
		ideas[i] = map[string]any{
			"id":              fmt.Sprintf("idea-%d", i+1),
			"title":           fmt.Sprintf("Idé %d", i+1),
			"oneLiner":        "En kontraintuitiv idé",
			"novelMechanism":  "Kunderna tränar modellen genom sina returer",
			"howItWorks":      []string{"Samla signaler", "Träna modell", "Testa i butik"},
			"dataSignals":     []string{"Returorsaker"},
			"mvpInWeeks":      i%12 + 1,
			"team":            []string{"Utvecklare", "Butikschef"},
			"canDoInHouse":    i%2 == 0,
			"keyRisks":        []string{"Datakvalitet"},
			"firstExperiment": "Testa i en butik under två veckor",
		}
	}
	return "```json\n" + mustJSON(map[string]any{"ideas": ideas}) + "\n```"
}

// TopIdeasReply returns a Synthesis & Critic Agent reply with n top ideas.
func TopIdeasReply(n int) string {
	top := make([]map[string]any, n)
	for i := range top {
		top[i] = map[string]any{
			"id":                  fmt.Sprintf("idea-%d", i+1),
			"title":               fmt.Sprintf("Idé %d", i+1),
			"whyThisWins":         []string{"Snabb effekt"},
			"whatToDeRiskFirst":   []string{"Datatillgång"},
			"mvpPlan":             []string{"Dag 1-2: Samla data", "Vecka 1: Prototyp", "Vecka 2: Test"},
			"kpis":                []string{"Minskade returer"},
			"antiPatternsToAvoid": []string{"Bygga allt på en gång"},
			"promptToStartCoding": strings.Repeat("Bygg en tjänst som läser returdata.\n", 5),
		}
	}
	return mustJSON(map[string]any{"topIdeas": top})
}

// RoundtableReply returns an Agent Roundtable reply with n messages cycling through the roles.
func RoundtableReply(n int) string {
	roles := []string{"Strateg", "Engineer", "Skeptic", "Domain"}
	msgs := make([]map[string]string, n)
	for i := range msgs {
		msgs[i] = map[string]string{
			"role":    roles[i%len(roles)],
			"content": fmt.Sprintf("Inlägg %d om idé %d", i+1, i%3+1),
		}
	}
	return mustJSON(map[string]any{
		"messages":   msgs,
		"highlights": []string{"Testa idé 1 först", "Mät returer", "Involvera butikerna"},
	})
}

// Brainstorm collection sizes in the canned replies.
const (
	BrainstormIdeas    = 10
	BrainstormTopIdeas = 5
	BrainstormMessages = 12
)

// BrainstormReplies maps brainstorm stage names to canned replies.
func BrainstormReplies() map[string]string {
	return map[string]string{
		"Company Profiler Agent":     ProfileReply,
		"Divergent Brainstorm Agent": IdeasReply(BrainstormIdeas),
		"Synthesis & Critic Agent":   TopIdeasReply(BrainstormTopIdeas),
		"Agent Roundtable":           RoundtableReply(BrainstormMessages),
	}
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b)
}

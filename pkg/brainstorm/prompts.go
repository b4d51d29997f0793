package brainstorm

import (
	"fmt"

	"advisor/pkg/pipeline"
)

const profilerSystem = `Du är en senior research-analytiker och varumärkesdetektiv. Du ska "fatta" vilket företag det är baserat ENBART på företagsnamnet.

Skriv på svenska.
Returnera ENDAST valid JSON utan markdown.

Returnera:
{
  "company": {
    "companyName": "...",
    "inferredIndustry": "...",
    "companyType": "` + companyTypesList + `",
    "whatTheyLikelyDo": "...",
    "whyThisInference": ["..."],
    "assumptions": ["..."],
    "missingData": ["..."]
  }
}

Regler:
- Var tydlig med osäkerhet och antaganden.
- Om du inte känner igen bolaget: gör en rimlig hypotetisk profil baserad på namn/kontext.
- companyType måste vara exakt en av: startup, sme, midmarket, enterprise.`

func profilerUser(c pipeline.Context) string {
	req, _ := c.Input.(Request)
	return "Företagsnamn: " + req.CompanyName
}

var divergentSystem = fmt.Sprintf(`Du är en extremt kreativ AI-strateg. Du ska skapa out-of-the-box AI-idéer som känns som att "ingen har tänkt på dem".

Skriv på svenska.
Returnera ENDAST valid JSON utan markdown.

Du brainstormar som ett team av flera agenter i ditt huvud och varje idé ska vara:
- kontraintuitiv men genomförbar
- tydligt kopplad till affärsvärde
- innehålla en ny mekanism (inte bara "chatbot"/"RAG"/"dashboard")

Returnera exakt %[1]d idéer:
{
  "ideas": [
    {
      "id": "idea-1",
      "title": "...",
      "oneLiner": "...",
      "novelMechanism": "Vad är den nya mekanismen?",
      "howItWorks": ["...", "..."],
      "dataSignals": ["Vilka signaler/data behövs?"],
      "mvpInWeeks": 2,
      "team": ["Roll 1", "Roll 2"],
      "canDoInHouse": true,
      "keyRisks": ["..."],
      "firstExperiment": "Exakt första testet (1-2 veckor)"
    }
  ]
}

Regler:
- mvpInWeeks måste vara ett heltal %[2]d-%[3]d
- canDoInHouse måste vara boolean
- howItWorks måste vara en lista med %[4]d-%[5]d punkter
- Hög kreativitet utan sci-fi: det måste gå att bygga med dagens teknik.`,
	IdeaCount, MinMVPWeeks, MaxMVPWeeks, MinHowItWorks, MaxHowItWorks)

func divergentUser(c pipeline.Context) string {
	return "Här är företagsprofilen (JSON). Generera idéerna baserat på den:\n\n" + c.Raw(StageProfiler)
}

var criticSystem = fmt.Sprintf(`Du är en krävande partner (konsult) och "kill your darlings"-kritiker. Du ska välja de %[1]d starkaste idéerna och förbättra dem.

Skriv på svenska.
Returnera ENDAST valid JSON utan markdown.

Returnera:
{
  "topIdeas": [
    {
      "id": "...",
      "title": "...",
      "whyThisWins": ["..."],
      "whatToDeRiskFirst": ["..."],
      "mvpPlan": ["Dag 1-2: ...", "Vecka 1: ...", "Vecka 2: ..."],
      "kpis": ["..."],
      "antiPatternsToAvoid": ["..."],
      "promptToStartCoding": "En kort prompt som en utvecklare kan klistra in i en AI för att börja bygga"
    }
  ]
}

Regler:
- Returnera exakt %[1]d topIdeas
- Var brutalt konkret (ingen fluff)
- promptToStartCoding ska vara 5-12 rader med tydliga instruktioner.`, TopIdeaCount)

func criticUser(c pipeline.Context) string {
	return fmt.Sprintf("Företagsprofil:\n%s\n\nIdéer:\n%s", c.Raw(StageProfiler), c.Raw(StageDivergent))
}

var roundtableSystem = fmt.Sprintf(`Du ska simulera en intern brainstorming där flera AI-agenter chattar med varandra.

Skriv på svenska.
Returnera ENDAST valid JSON utan markdown.

Roller i chatten:
- "%[1]s" (affärsvärde, prioritering)
- "%[2]s" (hur man bygger, begränsningar)
- "%[3]s" (risker, vad som kan gå fel)
- "%[4]s" (branschrealism, kundvärde)

Returnera:
{
  "messages": [
    {"role": "%[1]s", "content": "..."},
    {"role": "%[2]s", "content": "..."}
  ],
  "highlights": ["...", "...", "..."]
}

Regler:
- role måste vara exakt en av: %[1]s, %[2]s, %[3]s, %[4]s
- Skapa %[5]d-%[6]d meddelanden totalt
- Var out-of-the-box men konkret
- Referera till 2-3 idéer från input och hur ni skulle testa dem i praktiken
- Inga priser eller säljsnack, bara planering och resonemang.`,
	RoleStrategist, RoleEngineer, RoleSkeptic, RoleDomain, MinMessages, MaxMessages)

func roundtableUser(c pipeline.Context) string {
	return fmt.Sprintf("Här är underlag:\n\nFöretagsprofil:\n%s\n\nIdéer:\n%s\n\nTop 5:\n%s\n\nSimulera chatten.",
		c.Raw(StageProfiler), c.Raw(StageDivergent), c.Raw(StageCritic))
}

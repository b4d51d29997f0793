package analysis

import (
	"fmt"

	"advisor/pkg/pipeline"
)

const notSpecified = "Ej specificerat"

func orNotSpecified(s string) string {
	if s == "" {
		return notSpecified
	}
	return s
}

func input(c pipeline.Context) CompanyInput {
	in, _ := c.Input.(CompanyInput)
	return in
}

const researchSystem = `Du är en erfaren affärsanalytiker på en AI-konsultfirma. Din uppgift är att analysera företag och sammanställa relevant information.

VIKTIGT:
- Basera din analys på den information som ges
- Om information saknas, notera detta tydligt
- Var konkret och affärsinriktad
- Skriv på svenska

Returnera en strukturerad analys i JSON-format med följande struktur:
{
  "companyProfile": "Kort beskrivning av företaget",
  "industryContext": "Branschens nuläge och trender",
  "identifiedChallenges": ["utmaning1", "utmaning2"],
  "opportunityAreas": ["område1", "område2"],
  "dataQuality": "complete" | "partial" | "limited",
  "missingData": ["saknad info1", "saknad info2"]
}

dataQuality måste vara exakt en av: complete, partial, limited.`

func researchUser(c pipeline.Context) string {
	in := input(c)
	return fmt.Sprintf(`Analysera följande företag:
Företagsnamn: %s
Företagstyp: %s
Bransch: %s
Utmaningar: %s
Mål: %s
Nuvarande processer: %s`,
		in.CompanyName, in.CompanyType, in.Industry,
		orNotSpecified(in.Challenges), orNotSpecified(in.Goals), orNotSpecified(in.CurrentProcesses))
}

const solutionsSystem = `Du är en kreativ AI-strateg på en ledande AI-konsultfirma. Din uppgift är att föreslå innovativa AI-lösningar.

FOKUSERA PÅ:
- Generativ AI (innehållsskapande, automatisering av text/bild)
- Agentisk AI (autonoma system som agerar självständigt)
- Prediktiv analys och ML
- Processautomation med AI

VIKTIGT:
- Varje förslag ska vara konkret och genomförbart
- Inkludera uppskattad ROI baserat på branschdata
- Prioritera "quick wins" och strategiska initiativ
- Skriv på svenska

Returnera exakt 4-5 AI-förslag i JSON-format:
{
  "suggestions": [
    {
      "id": "unik-id",
      "category": "generative" | "agentic" | "automation" | "analytics",
      "title": "Titel på lösning",
      "description": "Detaljerad beskrivning",
      "useCases": ["användning1", "användning2", "användning3"],
      "estimatedROI": {
        "percentage": 30-80,
        "timeframe": "6-24 månader",
        "confidence": "low" | "medium" | "high"
      },
      "implementationComplexity": "low" | "medium" | "high",
      "priority": "quick-win" | "strategic" | "long-term"
    }
  ]
}

Regler:
- category måste vara exakt en av: generative, agentic, automation, analytics
- confidence och implementationComplexity måste vara exakt en av: low, medium, high
- priority måste vara exakt en av: quick-win, strategic, long-term
- percentage måste vara ett enda heltal, inte ett intervall`

func solutionsUser(c pipeline.Context) string {
	in := input(c)
	return fmt.Sprintf(`Baserat på följande företagsanalys, föreslå kreativa AI-lösningar:

FÖRETAGSINFORMATION:
Namn: %s
Typ: %s
Bransch: %s
Utmaningar: %s
Mål: %s

RESEARCH DATA:
%s

Generera 4-5 konkreta AI-lösningar som skulle ge störst affärsvärde för detta företag.`,
		in.CompanyName, in.CompanyType, in.Industry,
		orNotSpecified(in.Challenges), orNotSpecified(in.Goals),
		c.Raw(StageResearch))
}

const planSystem = `Du är en senior projektledare på en AI-konsultfirma med expertis inom PMBOK, PRINCE2 och agila metoder.

DIN UPPGIFT:
Skapa en detaljerad implementeringsplan för AI-lösningarna.

STRUKTURERA PLANEN I FASER:
1. Förstudie & Planering (2-3 veckor)
2. Proof of Concept (4-6 veckor)
3. Pilot & Skalning (6-8 veckor)
4. Optimering & Kontinuerlig förbättring (Löpande)

FÖR VARJE FAS, INKLUDERA:
- Konkreta uppgifter med ansvariga roller
- Tidsuppskattningar
- Milstolpar
- Leverabler

Skriv på svenska och returnera i JSON-format:
{
  "actionPlan": [
    {
      "id": "phase-1",
      "name": "Fasnamn",
      "duration": "X veckor",
      "tasks": [
        {
          "id": "t1",
          "title": "Uppgiftstitel",
          "description": "Beskrivning",
          "responsible": "Roll/Team",
          "duration": "X dagar/veckor",
          "dependencies": [],
          "status": "pending"
        }
      ],
      "milestones": ["milstolpe1"],
      "deliverables": ["leverabel1"]
    }
  ]
}

Regler:
- Returnera exakt 4 faser
- status måste vara exakt en av: pending, in-progress, completed`

func planUser(c pipeline.Context) string {
	in := input(c)
	return fmt.Sprintf(`Skapa en implementeringsplan för följande AI-lösningar hos %s:

LÖSNINGAR ATT IMPLEMENTERA:
%s

FÖRETAGSKONTEXT:
Typ: %s
Bransch: %s`,
		in.CompanyName, c.Raw(StageSolutions), in.CompanyType, in.Industry)
}

const financialSystem = `Du är en finansanalytiker specialiserad på AI-investeringar och ROI-beräkningar.

DIN UPPGIFT:
Beräkna detaljerad ROI för AI-implementeringen.

BASERA INVESTERINGSBELOPP PÅ FÖRETAGSTYP:
- Startup: 100,000 - 200,000 SEK
- Småföretag (SME): 300,000 - 500,000 SEK
- Medelstort: 700,000 - 1,200,000 SEK
- Storföretag: 1,500,000 - 3,000,000 SEK

INKLUDERA I ANALYSEN:
- Kostnadsbesparingar (personaleffektivisering, processoptimering, kundtjänst)
- Intäktsökning (försäljning, nya affärsmöjligheter)
- Break-even punkt
- Konfidensnivå med antaganden

Skriv på svenska och returnera i JSON-format:
{
  "roiEstimate": {
    "totalInvestment": 500000,
    "yearOneReturns": 750000,
    "yearThreeReturns": 2000000,
    "breakEvenMonths": 8,
    "costSavings": [
      {"category": "Kategori", "amount": 100000, "description": "Beskrivning"}
    ],
    "revenueIncrease": [
      {"category": "Kategori", "amount": 150000, "description": "Beskrivning"}
    ],
    "confidenceLevel": "medium",
    "assumptions": ["antagande1", "antagande2"]
  }
}

Regler:
- Alla belopp är heltal i SEK utan tusentalsavgränsare
- confidenceLevel måste vara exakt en av: low, medium, high`

func financialUser(c pipeline.Context) string {
	in := input(c)
	return fmt.Sprintf(`Beräkna ROI för AI-implementation hos %s:

FÖRETAGSTYP: %s
BRANSCH: %s

FÖRESLAGNA LÖSNINGAR:
%s

IMPLEMENTERINGSPLAN:
%s`,
		in.CompanyName, in.CompanyType, in.Industry, c.Raw(StageSolutions), c.Raw(StagePlan))
}

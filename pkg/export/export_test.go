package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/analysis"
	"advisor/pkg/faults"
)

func sampleResult() *analysis.Result {
	return &analysis.Result{
		Company: analysis.CompanyInput{
			CompanyType: "sme",
			CompanyName: "Acme AB",
			Industry:    "retail",
			Challenges:  "Manuell lagerplanering",
			Goals:       "Minska svinn",
		},
		Suggestions: []analysis.Suggestion{
			{
				ID: "s1", Category: analysis.CategoryAnalytics, Title: `Prognos "AI"`,
				Description:  strings.Repeat("a", 250),
				UseCases:     []string{"Inköp", "Kampanjer"},
				EstimatedROI: analysis.EstimatedROI{Percentage: 45, Timeframe: "12 månader", Confidence: analysis.LevelMedium},
				ImplementationComplexity: analysis.LevelMedium, Priority: analysis.PriorityStrategic,
			},
			{ID: "s2", Title: "Chatbot", Description: "Svarar kunder", Priority: analysis.PriorityQuickWin},
			{ID: "s3", Title: "Tredje", Description: "c"},
			{ID: "s4", Title: "Fjärde", Description: "d"},
		},
		ActionPlan: []analysis.Phase{
			{
				Name: "Förstudie", Duration: "2 veckor",
				Tasks: []analysis.Task{
					{Title: "Kartlägg data", Description: strings.Repeat("b", 180), Responsible: "Analytiker", Duration: "1 vecka"},
					{Title: "Workshop", Responsible: "PM", Duration: "2 dagar"},
				},
				Milestones:   []string{"Datakarta klar"},
				Deliverables: []string{"Förstudierapport"},
			},
		},
		ROIEstimate: analysis.ROIEstimate{
			TotalInvestment:  400000,
			YearOneReturns:   600000,
			YearThreeReturns: 2100000,
			BreakEvenMonths:  8,
			CostSavings:      []analysis.LineItem{{Category: "Lager", Amount: 250000, Description: "Mindre svinn"}},
			RevenueIncrease:  []analysis.LineItem{{Category: "Försäljning", Amount: 350000.5, Description: "Färre slutsålda varor"}},
			ConfidenceLevel:  analysis.LevelMedium,
			Assumptions:      []string{"Data finns tillgänglig"},
		},
		GeneratedAt: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(WithClock(func() time.Time { return time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)
	return r
}

// plainSpaces folds the non-breaking spaces used as Swedish digit grouping.
func plainSpaces(s string) string {
	return strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(s)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"excel": FormatExcel, " PDF ": FormatPDF, "pitch": FormatPitch, "": FormatPDF} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.True(t, faults.Is(err, faults.KindInvalidInput))
}

func TestExcelExport(t *testing.T) {
	doc, err := newTestRenderer(t).Render(sampleResult(), FormatExcel)
	require.NoError(t, err)

	assert.Equal(t, "CSA_AI_Analys_Acme AB.csv", doc.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", doc.ContentType)
	require.True(t, bytes.HasPrefix(doc.Body, []byte("\ufeff")), "excel export starts with a BOM")

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(doc.Body, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"CSA AI ADVISOR - ANALYS RAPPORT"}, records[0])
	assert.Equal(t, []string{"Genererad: 2025-03-14"}, records[3])

	var suggestionRows, taskRows [][]string
	section := ""
	for _, rec := range records {
		if strings.HasPrefix(rec[0], "===") {
			section = rec[0]
			continue
		}
		switch section {
		case "=== AI-LÖSNINGSFÖRSLAG ===":
			if rec[0] != "ID" {
				suggestionRows = append(suggestionRows, rec)
			}
		case "=== ACTION PLAN ===":
			if rec[0] != "Fas" {
				taskRows = append(taskRows, rec)
			}
		}
	}

	require.Len(t, suggestionRows, 4)
	first := suggestionRows[0]
	assert.Equal(t, `Prognos "AI"`, first[2], "quotes survive CSV escaping")
	assert.Len(t, first[3], 200, "description truncated")
	assert.Equal(t, "45", first[4])
	assert.Equal(t, "AI", suggestionRows[1][1], "missing category falls back to AI")
	assert.Equal(t, "", suggestionRows[1][4], "zero ROI left blank")

	require.Len(t, taskRows, 2)
	assert.Len(t, taskRows[0][4], 150, "task description truncated")
	assert.Equal(t, "Förstudie", taskRows[0][1])

	body := string(doc.Body)
	assert.Contains(t, body, "Total Investering,400000 SEK")
	assert.Contains(t, body, "Break-even,8 månader")
	assert.Contains(t, body, "Försäljning,350000.5 SEK,Färre slutsålda varor")
	assert.Contains(t, body, "Data finns tillgänglig")
}

func TestTextReport(t *testing.T) {
	doc, err := newTestRenderer(t).Render(sampleResult(), FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, "CSA_AI_Analys_Acme AB.txt", doc.Filename)
	assert.Equal(t, "text/plain; charset=utf-8", doc.ContentType)

	body := plainSpaces(string(doc.Body))
	lines := strings.Split(body, "\n")
	assert.Equal(t, strings.Repeat("═", 60), lines[0])
	assert.Contains(t, lines, "Företag: Acme AB")
	assert.Contains(t, lines, "Genererad: 2025-03-14")
	assert.Contains(t, lines, "Utmaningar: Manuell lagerplanering")
	assert.Contains(t, lines, `1. Prognos "AI"`)
	assert.Contains(t, lines, strings.Repeat("─", 40))
	assert.Contains(t, lines, "   • Inköp")
	assert.Contains(t, lines, "   Förväntad ROI: +45% (12 månader)")
	assert.Contains(t, lines, "FAS 1: Förstudie")
	assert.Contains(t, lines, "  1.2 Workshop")
	assert.Contains(t, lines, "  ✓ Datakarta klar")
	assert.Contains(t, lines, "  → Förstudierapport")
	assert.Contains(t, lines, "Total Investering:    400 000 SEK")
	assert.Contains(t, lines, "Avkastning År 3:      2 100 000 SEK")
	assert.Contains(t, lines, "  • Försäljning: +350 000,5 SEK/år")
	assert.Contains(t, lines, "  ⚠ Data finns tillgänglig")
	assert.Contains(t, lines, "              2025-04-01T08:00:00.000Z")
	assert.NotContains(t, body, "<no value>")
}

func TestTextReportOmitsEmptySections(t *testing.T) {
	res := sampleResult()
	res.Company.Challenges = ""
	res.ROIEstimate.Assumptions = nil
	res.ActionPlan[0].Milestones = nil

	doc, err := newTestRenderer(t).Render(res, FormatPDF)
	require.NoError(t, err)
	body := string(doc.Body)
	assert.NotContains(t, body, "Utmaningar:")
	assert.NotContains(t, body, "ANTAGANDEN:")
	assert.NotContains(t, body, "Milstolpar:")
	assert.Contains(t, body, "Leverabler:")
}

func TestPitchDeck(t *testing.T) {
	doc, err := newTestRenderer(t).Render(sampleResult(), FormatPitch)
	require.NoError(t, err)

	assert.Equal(t, "CSA_Pitch_Deck_Acme AB.txt", doc.Filename)
	body := plainSpaces(string(doc.Body))
	assert.Contains(t, body, "Datum: 2025-04-01")
	assert.Contains(t, body, "Vi föreslår 4 AI-drivna lösningar:")
	assert.Contains(t, body, "3. Tredje")
	assert.NotContains(t, body, "4. Fjärde", "only the first three suggestions are pitched")
	assert.Contains(t, body, "   → "+strings.Repeat("a", 100)+"...")
	assert.Contains(t, body, "💰 Investering:     400 000 SEK")
	assert.Contains(t, body, "⭐ FÖRVÄNTAD ROI: +150%")
	assert.Contains(t, body, "SLIDE 4: NÄSTA STEG")
}

func TestPitchDefaultChallenge(t *testing.T) {
	res := sampleResult()
	res.Company.Challenges = ""
	doc, err := newTestRenderer(t).Render(res, FormatPitch)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "Företaget står inför digitala utmaningar")
}

func TestPitchROIPercent(t *testing.T) {
	assert.Equal(t, 150, PitchROIPercent(analysis.ROIEstimate{TotalInvestment: 400000, YearOneReturns: 600000}))
	assert.Equal(t, 33, PitchROIPercent(analysis.ROIEstimate{TotalInvestment: 300, YearOneReturns: 100}))
	assert.Equal(t, 0, PitchROIPercent(analysis.ROIEstimate{YearOneReturns: 600000}))
}

func TestFilenameFallback(t *testing.T) {
	res := sampleResult()
	res.Company.CompanyName = "  "
	doc, err := Render(res, FormatExcel)
	require.NoError(t, err)
	assert.Equal(t, "CSA_AI_Analys_rapport.csv", doc.Filename)

	assert.Equal(t, "A_B AB", FilenameSafe(`A/B AB`))
	assert.Equal(t, "rapport", FilenameSafe("\n"))
}

func TestContentDisposition(t *testing.T) {
	doc := &Document{Filename: "CSA_AI_Analys_Acme.csv"}
	assert.Equal(t, `attachment; filename=CSA_AI_Analys_Acme.csv`, doc.ContentDisposition())

	swedish := &Document{Filename: "CSA_AI_Analys_Företag.txt"}
	assert.Contains(t, swedish.ContentDisposition(), "filename*=utf-8''CSA_AI_Analys_F%C3%B6retag.txt")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "400 000", plainSpaces(FormatAmount(400000)))
	assert.Equal(t, "12 345,5", plainSpaces(FormatAmount(12345.5)))
	assert.Equal(t, "0", FormatAmount(0))
}

func TestNilResult(t *testing.T) {
	_, err := Render(nil, FormatPDF)
	assert.True(t, faults.Is(err, faults.KindInvalidInput))
}

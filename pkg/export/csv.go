package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"advisor/pkg/analysis"
)

const (
	csvDescriptionLimit     = 200
	csvTaskDescriptionLimit = 150
)

// renderCSV writes the spreadsheet export: a header block, then suggestions, action plan
// and ROI sections separated by blank rows.
func renderCSV(res *analysis.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"CSA AI ADVISOR - ANALYS RAPPORT"},
		{"Företag: " + res.Company.CompanyName},
		{"Bransch: " + res.Company.Industry},
		{"Genererad: " + FormatDate(res.GeneratedAt)},
		{},
		{"=== AI-LÖSNINGSFÖRSLAG ==="},
		{"ID", "Kategori", "Titel", "Beskrivning", "ROI %", "Tidsram", "Komplexitet", "Prioritet"},
	}
	for i, s := range res.Suggestions {
		category := s.Category
		if category == "" {
			category = "AI"
		}
		percentage := ""
		if s.EstimatedROI.Percentage != 0 {
			percentage = formatNumber(s.EstimatedROI.Percentage)
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			category,
			s.Title,
			truncate(csvDescriptionLimit, s.Description),
			percentage,
			s.EstimatedROI.Timeframe,
			s.ImplementationComplexity,
			s.Priority,
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"=== ACTION PLAN ==="},
		[]string{"Fas", "Fas Namn", "Varaktighet", "Uppgift", "Beskrivning", "Ansvarig", "Uppgift Varaktighet"},
	)
	for p, phase := range res.ActionPlan {
		for _, task := range phase.Tasks {
			rows = append(rows, []string{
				fmt.Sprint(p + 1),
				phase.Name,
				phase.Duration,
				task.Title,
				truncate(csvTaskDescriptionLimit, task.Description),
				task.Responsible,
				task.Duration,
			})
		}
	}

	roi := res.ROIEstimate
	rows = append(rows,
		[]string{},
		[]string{"=== ROI ANALYS ==="},
		[]string{"Total Investering", formatNumber(roi.TotalInvestment) + " SEK"},
		[]string{"Avkastning År 1", formatNumber(roi.YearOneReturns) + " SEK"},
		[]string{"Avkastning År 3", formatNumber(roi.YearThreeReturns) + " SEK"},
		[]string{"Break-even", formatNumber(roi.BreakEvenMonths) + " månader"},
		[]string{},
		[]string{"Kostnadsbesparingar:"},
	)
	rows = append(rows, lineItemRows(roi.CostSavings)...)
	rows = append(rows, []string{}, []string{"Intäktsökning:"})
	rows = append(rows, lineItemRows(roi.RevenueIncrease)...)
	rows = append(rows, []string{}, []string{"Antaganden:"})
	for _, a := range roi.Assumptions {
		rows = append(rows, []string{a})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func lineItemRows(items []analysis.LineItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{item.Category, formatNumber(item.Amount) + " SEK", item.Description})
	}
	return rows
}

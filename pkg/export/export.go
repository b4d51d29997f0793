// Package export renders analysis results as downloadable documents: a spreadsheet-friendly
// CSV, a plain-text report and a four-slide text pitch deck.
package export

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"advisor/pkg/analysis"
	"advisor/pkg/faults"
)

//go:embed templates/*.tpl.txt
var templateFS embed.FS

// Format selects the document kind.
type Format string

// Supported formats. The names match what the web client sends.
const (
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
	FormatPitch Format = "pitch"
)

// Formats lists every supported format.
//
//nolint:gochecknoglobals // enumeration
var Formats = []Format{FormatExcel, FormatPDF, FormatPitch}

// ParseFormat validates a format name. An empty name selects the text report.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPDF, nil
	case FormatExcel, FormatPDF, FormatPitch:
		return f, nil
	default:
		return "", faults.InvalidInput("unknown export format %q (expected excel, pdf or pitch)", s)
	}
}

// Document is a rendered export.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ContentDisposition is the attachment header value for the document.
func (d *Document) ContentDisposition() string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename})
}

const (
	reportTemplate = "templates/report.tpl.txt"
	pitchTemplate  = "templates/pitch.tpl.txt"

	utf8BOM = "\ufeff"
)

// Renderer renders documents from parsed templates. It is safe for concurrent use.
type Renderer struct {
	templates map[string]*template.Template
	now       func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock overrides the time printed in report footers and pitch dates.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// NewRenderer parses the embedded templates.
func NewRenderer(opts ...Option) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	funcs := template.FuncMap{
		"inc":   func(i int) int { return i + 1 },
		"sek":   FormatAmount,
		"num":   formatNumber,
		"trunc": truncate,
		"first": func(n int, s []analysis.Suggestion) []analysis.Suggestion {
			if len(s) > n {
				return s[:n]
			}
			return s
		},
	}
	for _, name := range []string{reportTemplate, pitchTemplate} {
		content, err := templateFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

//nolint:gochecknoglobals // lazily parsed default renderer
var defaultRenderer = sync.OnceValues(func() (*Renderer, error) { return NewRenderer() })

// Render renders res with the default renderer.
func Render(res *analysis.Result, format Format) (*Document, error) {
	r, err := defaultRenderer()
	if err != nil {
		return nil, err
	}
	return r.Render(res, format)
}

// Render produces the document for format.
func (r *Renderer) Render(res *analysis.Result, format Format) (*Document, error) {
	if res == nil {
		return nil, faults.InvalidInput("analysis is required")
	}
	company := FilenameSafe(res.Company.CompanyName)

	switch format {
	case FormatExcel:
		body, err := renderCSV(res)
		if err != nil {
			return nil, err
		}
		return &Document{
			Filename:    "CSA_AI_Analys_" + company + ".csv",
			ContentType: "text/csv; charset=utf-8",
			Body:        append([]byte(utf8BOM), body...),
		}, nil
	case FormatPitch:
		body, err := r.execute(pitchTemplate, r.pitchData(res))
		if err != nil {
			return nil, err
		}
		return &Document{
			Filename:    "CSA_Pitch_Deck_" + company + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Body:        body,
		}, nil
	case FormatPDF:
		body, err := r.execute(reportTemplate, r.reportData(res))
		if err != nil {
			return nil, err
		}
		return &Document{
			Filename:    "CSA_AI_Analys_" + company + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Body:        body,
		}, nil
	default:
		return nil, faults.InvalidInput("unknown export format %q", format)
	}
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.templates[name].Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

type reportData struct {
	*analysis.Result
	Generated  string
	Now        string
	Divider    string
	SubDivider string
}

func (r *Renderer) reportData(res *analysis.Result) reportData {
	return reportData{
		Result:     res,
		Generated:  FormatDate(res.GeneratedAt),
		Now:        r.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Divider:    strings.Repeat("═", 60),
		SubDivider: strings.Repeat("─", 40),
	}
}

type pitchData struct {
	*analysis.Result
	Today      string
	ROIPercent int
}

func (r *Renderer) pitchData(res *analysis.Result) pitchData {
	return pitchData{Result: res, Today: FormatDate(r.now()), ROIPercent: PitchROIPercent(res.ROIEstimate)}
}

// PitchROIPercent is first-year returns as a rounded percentage of the investment, 0 without one.
func PitchROIPercent(roi analysis.ROIEstimate) int {
	if roi.TotalInvestment == 0 {
		return 0
	}
	return int(math.Round(roi.YearOneReturns / roi.TotalInvestment * 100))
}

// FilenameSafe returns name with characters that break file names or headers replaced,
// or "rapport" when nothing is left.
func FilenameSafe(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "rapport"
	}
	return name
}

// FormatAmount formats an amount with Swedish digit grouping and decimal comma.
func FormatAmount(v float64) string {
	return message.NewPrinter(language.Swedish).Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// FormatDate formats t the way Swedish locales print dates (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(n int, s string) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

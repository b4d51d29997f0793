// Package batch runs many company analyses concurrently from a YAML job file.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"advisor/pkg/analysis"
	"advisor/pkg/faults"
	"advisor/pkg/logx"
)

// Job is the contents of a batch file.
//
//	companies:
//	  - companyName: Acme AB
//	    companyType: sme
//	    industry: retail
type Job struct {
	Companies []analysis.CompanyInput `yaml:"companies"`
}

// Load reads and validates a batch file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a batch document. Unknown keys are rejected.
func Parse(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, faults.InvalidInput("invalid batch file: %v", err)
	}
	if len(job.Companies) == 0 {
		return nil, faults.InvalidInput("batch file lists no companies")
	}
	return &job, nil
}

// SaveFunc persists a result and returns its id.
type SaveFunc func(ctx context.Context, res *analysis.Result) (string, error)

// Item is the outcome for one company.
type Item struct {
	Index    int              `json:"index"`
	Company  string           `json:"company"`
	ID       string           `json:"id,omitempty"`
	Result   *analysis.Result `json:"-"`
	Err      error            `json:"-"`
	Error    string           `json:"error,omitempty"`
	Kind     string           `json:"kind,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// OK reports whether the item succeeded.
func (it *Item) OK() bool { return it.Err == nil }

// Report collects the items in input order.
type Report struct {
	Items     []Item `json:"items"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Runner fans analyses out over a bounded number of goroutines.
type Runner struct {
	runner      analysis.Runner
	concurrency int
	save        SaveFunc
	logger      *logx.Logger
}

// NewRunner creates a batch runner. save may be nil.
func NewRunner(r analysis.Runner, concurrency int, save SaveFunc) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{runner: r, concurrency: concurrency, save: save, logger: logx.NewLogger("batch")}
}

// Run analyzes every company. A failing company never cancels the others; ctx cancellation
// stops companies that have not started yet.
func (b *Runner) Run(ctx context.Context, companies []analysis.CompanyInput) *Report {
	items := make([]Item, len(companies))

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for i, company := range companies {
		g.Go(func() error {
			items[i] = b.runOne(ctx, i, company)
			return nil
		})
	}
	_ = g.Wait() // errors captured per item

	report := &Report{Items: items}
	for i := range items {
		if items[i].OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	b.logger.Info("📊 Batch finished: %d succeeded, %d failed", report.Succeeded, report.Failed)
	return report
}

func (b *Runner) runOne(ctx context.Context, index int, company analysis.CompanyInput) Item {
	item := Item{Index: index, Company: company.CompanyName}
	started := time.Now()

	fail := func(err error) Item {
		item.Err = err
		item.Error = err.Error()
		item.Kind = faults.KindOf(err).String()
		item.Duration = time.Since(started)
		b.logger.Warn("batch item %d (%s) failed: %v", index, company.CompanyName, err)
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	res, err := analysis.Analyze(ctx, b.runner, company)
	if err != nil {
		return fail(err)
	}
	item.Result = res
	if b.save != nil {
		id, err := b.save(ctx, res)
		if err != nil {
			return fail(fmt.Errorf("failed to save analysis for %s: %w", company.CompanyName, err))
		}
		item.ID = id
	}
	item.Duration = time.Since(started)
	return item
}

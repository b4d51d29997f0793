package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"advisor/internal/kernel"
	"advisor/pkg/analysis"
	"advisor/pkg/batch"
	"advisor/pkg/brainstorm"
	"advisor/pkg/faults"
	"advisor/pkg/httpapi"
	"advisor/pkg/mcpserver"
	"advisor/pkg/metrics"
	"advisor/pkg/version"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return a.withKernel(cmd.Context(), func(k *kernel.Kernel) error {
				if a.cfg.Server.AccessCode == "" {
					k.Logger.Warn("server.access_code is empty; the API is open")
				}
				server := httpapi.NewServer(k.Orchestrator, a.cfg.Server.AccessCode,
					httpapi.WithStore(k.Store),
					httpapi.WithArchive(k.Archive),
					httpapi.WithUsage(k.Usage),
					httpapi.WithGatherer(k.Registry),
				)
				return server.StartServer(cmd.Context(), a.cfg.Addr())
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		in   analysis.CompanyInput
		save bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the four-stage analysis for a company and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withKernel(cmd.Context(), func(k *kernel.Kernel) error {
				res, err := analysis.Analyze(cmd.Context(), k.Orchestrator, in)
				if err != nil {
					return err
				}
				if !save {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				saved, err := k.Store.SaveAnalysis(cmd.Context(), res)
				if err != nil {
					return err
				}
				if err := k.Archive.PutAnalysis(cmd.Context(), saved.ID, saved); err != nil {
					k.Logger.Warn("Failed to archive analysis %s: %v", saved.ID, err)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"id": saved.ID, "analysis": res})
			})
		},
	}
	cmd.Flags().StringVar(&in.CompanyName, "company", "", "company name (required)")
	cmd.Flags().StringVar(&in.CompanyType, "type", "", "company type, e.g. sme or enterprise")
	cmd.Flags().StringVar(&in.Industry, "industry", "", "industry")
	cmd.Flags().StringVar(&in.Challenges, "challenges", "", "current challenges")
	cmd.Flags().StringVar(&in.Goals, "goals", "", "business goals")
	cmd.Flags().StringVar(&in.CurrentProcesses, "processes", "", "current processes and systems")
	cmd.Flags().BoolVar(&save, "save", false, "persist the analysis")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newBrainstormCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "brainstorm <company name>",
		Short: "Brainstorm AI ideas for a company and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKernel(cmd.Context(), func(k *kernel.Kernel) error {
				res, err := brainstorm.Brainstorm(cmd.Context(), k.Orchestrator, brainstorm.Request{CompanyName: args[0]})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		concurrency int
		save        bool
	)
	cmd := &cobra.Command{
		Use:   "batch <companies.yaml>",
		Short: "Analyze every company in a YAML file with bounded concurrency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := batch.Load(args[0])
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = a.cfg.Batch.Concurrency
			}
			return a.withKernel(cmd.Context(), func(k *kernel.Kernel) error {
				var saveFn batch.SaveFunc
				if save {
					saveFn = func(ctx context.Context, res *analysis.Result) (string, error) {
						saved, err := k.Store.SaveAnalysis(ctx, res)
						if err != nil {
							return "", err
						}
						if err := k.Archive.PutAnalysis(ctx, saved.ID, saved); err != nil {
							k.Logger.Warn("Failed to archive analysis %s: %v", saved.ID, err)
						}
						return saved.ID, nil
					}
				}

				report := batch.NewRunner(k.Orchestrator, concurrency, saveFn).Run(cmd.Context(), job.Companies)
				printBatchReport(cmd.OutOrStdout(), report)
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d analyses failed", report.Failed, len(report.Items))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent analyses (default batch.concurrency)")
	cmd.Flags().BoolVar(&save, "save", false, "persist successful analyses")
	return cmd
}

func printBatchReport(out io.Writer, report *batch.Report) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOMPANY\tSTATUS\tID\tDURATION\tERROR")
	for i := range report.Items {
		item := &report.Items[i]
		status := "ok"
		if !item.OK() {
			status = "failed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			item.Index+1, item.Company, status, item.ID, item.Duration.Round(time.Millisecond), item.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\n%d succeeded, %d failed\n", report.Succeeded, report.Failed)
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the advisor tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withKernel(cmd.Context(), func(k *kernel.Kernel) error {
				return mcpserver.NewServer(k.Orchestrator, k.Store).Run(cmd.Context())
			})
		},
	}
}

func newUsageCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token and cost totals per pipeline and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Metrics.PrometheusURL == "" {
				return faults.MissingConfiguration("metrics.prometheus_url")
			}
			source, err := metrics.NewQueryService(a.cfg.Metrics.PrometheusURL)
			if err != nil {
				return err
			}
			report, err := source.Usage(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printUsage(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printUsage(out io.Writer, report *metrics.Report) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tMODEL\tPROMPT\tCOMPLETION\tTOTAL\tCOST (USD)\tRUNS\tFAILED")
	rows := append(append([]metrics.Usage{}, report.Usage...), report.Totals)
	for _, u := range rows {
		pipeline := u.Pipeline
		if pipeline == "" {
			pipeline = "total"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%d\t%d\n", pipeline, u.Model,
			u.PromptTokens, u.CompletionTokens, u.TotalTokens,
			strconv.FormatFloat(u.TotalCost, 'f', 4, 64), u.Runs, u.FailedRuns)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nsource: %s\n", report.Source)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

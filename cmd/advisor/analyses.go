package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"advisor/pkg/config"
	"advisor/pkg/export"
	"advisor/pkg/objectstore"
	"advisor/pkg/persistence"
)

// withStore opens the database for commands that never call a model.
func (a *app) withStore(ctx context.Context, fn func(store *persistence.Store) error) error {
	store, err := persistence.Open(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func newAnalysesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyses",
		Short: "Manage saved analyses",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store *persistence.Store) error {
				items, err := store.ListAnalyses(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCOMPANY\tINDUSTRY\tSUGGESTIONS\tROI %\tINVESTMENT\tCREATED")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", it.ID, it.CompanyName, it.Industry,
						it.SuggestionsCount, it.TotalROIPercentage, export.FormatAmount(it.TotalInvestment),
						it.CreatedAt.Local().Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", persistence.DefaultListLimit, "maximum number of analyses")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved analysis as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *persistence.Store) error {
				saved, err := store.GetAnalysis(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), saved)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *persistence.Store) error {
				if err := store.DeleteAnalysis(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	var pipelineName string
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store *persistence.Store) error {
				records, err := store.ListRuns(cmd.Context(), pipelineName, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPIPELINE\tSUBJECT\tSTATE\tSTAGE\tERROR\tSTARTED")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Pipeline, r.Subject, r.State,
						r.Stage, r.ErrorKind, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
	runs.Flags().StringVar(&pipelineName, "pipeline", "", "only runs of this pipeline (analysis, brainstorm)")
	runs.Flags().IntVar(&limit, "limit", persistence.DefaultListLimit, "maximum number of runs")

	cmd.AddCommand(list, show, del, runs)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Render a saved analysis as excel (CSV), pdf (text report) or pitch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store *persistence.Store) error {
				saved, err := store.GetAnalysis(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				doc, err := export.Render(saved.Result(), f)
				if err != nil {
					return err
				}

				archive, err := objectstore.Open(cmd.Context(), a.cfg.ObjectStore)
				if err != nil {
					return err
				}
				if err := archive.PutExport(cmd.Context(), saved.ID, doc); err != nil {
					return err
				}

				if out == "-" {
					_, err := cmd.OutOrStdout().Write(doc.Body)
					return err
				}
				path := out
				if path == "" {
					path = doc.Filename
				} else if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					path = filepath.Join(path, doc.Filename)
				}
				if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(doc.Body))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatPDF), "excel, pdf or pitch")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory, - for stdout (default: ./<filename>)")
	return cmd
}

func newSecretsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
	}

	var value string
	set := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret, e.g. LOVABLE_API_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if value == "" {
				v, err := a.readPassword(fmt.Sprintf("Value for %s: ", args[0]))
				if err != nil {
					return err
				}
				value = v
			}
			if value == "" {
				return fmt.Errorf("secret %s must not be empty", args[0])
			}
			password, err := a.password("Secrets password: ")
			if err != nil {
				return err
			}
			if err := config.SetSecret(args[0], value); err != nil {
				return err
			}
			if err := config.SaveSecretsToFile(a.cfg.Secrets.Dir, password); err != nil {
				return fmt.Errorf("failed to save secrets: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s in %s\n", args[0], config.SecretsFilePath(a.cfg.Secrets.Dir))
			return nil
		},
	}
	set.Flags().StringVar(&value, "value", "", "secret value (prompted when omitted)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := config.GetDecryptedSecretNames()
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.password("Secrets password: ")
			if err != nil {
				return err
			}
			if err := config.DeleteSecret(args[0]); err != nil {
				return err
			}
			if err := config.SaveSecretsToFile(a.cfg.Secrets.Dir, password); err != nil {
				return fmt.Errorf("failed to save secrets: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(set, list, del)
	return cmd
}

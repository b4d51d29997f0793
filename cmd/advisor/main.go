// Command advisor runs the AI business consulting pipelines as an HTTP API, an MCP server
// or one-off CLI commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"advisor/internal/kernel"
	"advisor/pkg/config"
	"advisor/pkg/logx"
)

// EnvPassword unlocks the encrypted secrets file without a prompt.
const EnvPassword = "ADVISOR_PASSWORD"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	cancel()
	logx.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// app carries global flags and the loaded configuration into subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config

	// Replaced in tests.
	newKernel    func(ctx context.Context, cfg *config.Config) (*kernel.Kernel, error)
	readPassword func(prompt string) (string, error)
}

func newApp() *app {
	return &app{
		newKernel: func(ctx context.Context, cfg *config.Config) (*kernel.Kernel, error) {
			return kernel.NewKernel(ctx, cfg)
		},
		readPassword: promptPassword,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "advisor",
		Short: "AI business consulting pipelines",
		Long: `advisor analyzes a company with a four-stage AI pipeline (research, solutions,
action plan, ROI) and brainstorms AI ideas from a company name alone.

Run "advisor serve" for the HTTP API, "advisor mcp" for an MCP stdio server, or use
the analyze, brainstorm and batch commands directly.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./advisor.yaml or $XDG_CONFIG_HOME/advisor/advisor.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format override (console, json)")

	root.AddCommand(
		newServeCmd(a),
		newAnalyzeCmd(a),
		newBrainstormCmd(a),
		newBatchCmd(a),
		newAnalysesCmd(a),
		newExportCmd(a),
		newSecretsCmd(a),
		newMCPCmd(a),
		newUsageCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration, configures logging and unlocks secrets.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFromPath(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}
	if err := logx.Configure(logx.Options{Level: a.cfg.Log.Level, Format: a.cfg.Log.Format}); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	return a.unlockSecrets()
}

// unlockSecrets decrypts the secrets file when one exists. The password comes from
// ADVISOR_PASSWORD or, on a terminal, a prompt.
func (a *app) unlockSecrets() error {
	dir := a.cfg.Secrets.Dir
	if !config.SecretsFileExists(dir) {
		return nil
	}
	password, err := a.password("Secrets password: ")
	if err != nil {
		return err
	}
	if err := config.LoadSecrets(dir, password); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	return nil
}

func (a *app) password(prompt string) (string, error) {
	if password := os.Getenv(EnvPassword); password != "" {
		return password, nil
	}
	return a.readPassword(prompt)
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", EnvPassword)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// withKernel builds the kernel for one command and closes it afterwards.
func (a *app) withKernel(ctx context.Context, fn func(k *kernel.Kernel) error) error {
	k, err := a.newKernel(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer k.Close()
	return fn(k)
}

package kernel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/analysis"
	"advisor/pkg/config"
	"advisor/pkg/faults"
	"advisor/pkg/metrics"
	"advisor/pkg/testkit"
)

// createTestConfig creates a config backed by a temporary sqlite database.
func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "advisor.db")
	return cfg
}

func TestNewKernelRunsAndRecords(t *testing.T) {
	cfg := createTestConfig(t)
	k, err := NewKernel(context.Background(), cfg, WithInvoker(testkit.NewStageInvoker(testkit.AnalysisReplies())))
	require.NoError(t, err)
	defer k.Close()

	assert.False(t, k.Archive.Enabled())
	_, internal := k.Usage.(metrics.InternalSource)
	assert.True(t, internal, "usage falls back to the in-process recorder")

	_, err = analysis.Analyze(context.Background(), k.Orchestrator, analysis.CompanyInput{CompanyName: "Acme AB"})
	require.NoError(t, err)

	k.RunWriter.Close()
	runs, err := k.Store.ListRuns(context.Background(), analysis.PipelineName, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "Acme AB", runs[0].Subject)

	report, err := k.Usage.Usage(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Totals.Runs)

	families, err := k.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pipeline_runs_total"])
	assert.True(t, names["go_goroutines"])
}

func TestNewKernelWithoutMetrics(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Metrics.Enabled = false
	k, err := NewKernel(context.Background(), cfg, WithInvoker(testkit.NewStageInvoker(testkit.AnalysisReplies())))
	require.NoError(t, err)
	defer k.Close()

	families, err := k.Registry.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestNewKernelRequiresGatewayKey(t *testing.T) {
	t.Setenv(config.EnvGatewayAPIKey, "")
	cfg := createTestConfig(t)

	_, err := NewKernel(context.Background(), cfg)
	assert.True(t, faults.Is(err, faults.KindMissingConfiguration), "got %v", err)
}

func TestNewKernelWithPrometheusUsage(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Metrics.PrometheusURL = "http://127.0.0.1:9090"
	k, err := NewKernel(context.Background(), cfg, WithInvoker(testkit.NewStageInvoker(nil)))
	require.NoError(t, err)
	defer k.Close()

	_, ok := k.Usage.(*metrics.QueryService)
	assert.True(t, ok)
}

func TestCloseTwice(t *testing.T) {
	k, err := NewKernel(context.Background(), createTestConfig(t), WithInvoker(testkit.NewStageInvoker(nil)))
	require.NoError(t, err)
	k.Close()
	k.Close()
}

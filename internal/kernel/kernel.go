// Package kernel assembles the advisor's shared infrastructure: the model invoker, the
// pipeline orchestrator, persistence, the object archive and metrics. Every entry point
// (HTTP server, MCP server, CLI commands, batch runs) builds on one Kernel.
package kernel

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"advisor/pkg/config"
	"advisor/pkg/invoker"
	llmmetrics "advisor/pkg/llm/middleware/metrics"
	"advisor/pkg/logx"
	"advisor/pkg/metrics"
	"advisor/pkg/objectstore"
	"advisor/pkg/persistence"
	"advisor/pkg/pipeline"
)

// Kernel owns the long-lived services shared by all entry points.
type Kernel struct {
	Config *config.Config
	Logger *logx.Logger

	Registry     *prometheus.Registry
	Recorder     llmmetrics.Recorder
	Internal     *llmmetrics.InternalRecorder
	Usage        metrics.Source
	Invoker      pipeline.Invoker
	Orchestrator *pipeline.Orchestrator
	Store        *persistence.Store
	RunWriter    *persistence.RunWriter
	Archive      *objectstore.Archive

	modelInvoker *invoker.Invoker
}

// Option customizes kernel construction.
type Option func(*options)

type options struct {
	invoker pipeline.Invoker
}

// WithInvoker replaces the provider-backed invoker, skipping the credential check.
func WithInvoker(inv pipeline.Invoker) Option {
	return func(o *options) { o.invoker = inv }
}

// NewKernel creates every service in dependency order. On failure, services created so far
// are closed. The context bounds invoker background goroutines and startup I/O.
func NewKernel(ctx context.Context, cfg *config.Config, opts ...Option) (*Kernel, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	k := &Kernel{
		Config:   cfg,
		Logger:   logx.NewLogger("kernel"),
		Registry: prometheus.NewRegistry(),
		Internal: llmmetrics.NewInternalRecorder(),
	}

	k.Recorder = k.Internal
	if cfg.Metrics.Enabled {
		k.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		k.Recorder = llmmetrics.Tee(llmmetrics.NewPrometheusRecorder(k.Registry), k.Internal)
	}

	if err := k.initializeServices(ctx, o); err != nil {
		k.Close()
		return nil, fmt.Errorf("failed to initialize kernel services: %w", err)
	}
	k.Logger.Info("Kernel services initialized (database %s, archive %v, metrics %v)",
		cfg.Database.Driver, k.Archive.Enabled(), cfg.Metrics.Enabled)
	return k, nil
}

func (k *Kernel) initializeServices(ctx context.Context, o options) error {
	k.Invoker = o.invoker
	if k.Invoker == nil {
		if err := k.Config.RequireProviderKeys(); err != nil {
			return err
		}
		k.modelInvoker = invoker.New(ctx, k.Config, invoker.WithRecorder(k.Recorder))
		k.Invoker = k.modelInvoker
	}

	var err error
	if k.Store, err = persistence.Open(ctx, k.Config.Database); err != nil {
		return err
	}
	k.RunWriter = persistence.NewRunWriter(k.Store)

	if k.Archive, err = objectstore.Open(ctx, k.Config.ObjectStore); err != nil {
		return err
	}

	if url := k.Config.Metrics.PrometheusURL; url != "" {
		if k.Usage, err = metrics.NewQueryService(url); err != nil {
			return err
		}
	} else {
		k.Usage = metrics.InternalSource{Recorder: k.Internal}
	}

	k.Orchestrator = pipeline.NewOrchestrator(k.Invoker, k.Config,
		pipeline.WithRecorder(k.Recorder),
		pipeline.WithObserver(k.RunWriter.Observe),
	)
	return nil
}

// Close drains pending run records, then releases the database and invoker. It is safe to
// call more than once.
func (k *Kernel) Close() {
	if k.RunWriter != nil {
		k.RunWriter.Close()
	}
	if k.Store != nil {
		if err := k.Store.Close(); err != nil {
			k.Logger.Error("Error closing database: %v", err)
		}
		k.Store = nil
	}
	if k.modelInvoker != nil {
		k.modelInvoker.Close()
		k.modelInvoker = nil
	}
	k.Logger.Info("Kernel services stopped")
}

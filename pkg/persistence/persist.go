package persistence

import (
	"context"
	"sync"
	"time"

	"advisor/pkg/logx"
	"advisor/pkg/pipeline"
)

const (
	runQueueSize    = 64
	runWriteTimeout = 5 * time.Second
)

// RunWriter persists run records on a background goroutine so that pipeline execution
// never waits on the database. Records that do not fit in the queue are dropped and logged.
type RunWriter struct {
	store  *Store
	queue  chan *RunRecord
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	logger *logx.Logger
}

// NewRunWriter starts the writer goroutine. Call Close to drain and stop it.
func NewRunWriter(store *Store) *RunWriter {
	w := &RunWriter{
		store:  store,
		queue:  make(chan *RunRecord, runQueueSize),
		done:   make(chan struct{}),
		logger: logx.NewLogger("run-writer"),
	}
	go w.loop()
	return w
}

// Observe is a pipeline.Observer. It records the run once it reaches a terminal state.
func (w *RunWriter) Observe(run *pipeline.Run, t pipeline.Transition) {
	if !t.To.IsTerminal() {
		return
	}
	w.Enqueue(NewRunRecord(run))
}

// Enqueue schedules rec for writing without blocking.
func (w *RunWriter) Enqueue(rec *RunRecord) {
	if rec == nil {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("run writer closed, dropping run %s", rec.ID)
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.logger.Warn("run queue full, dropping run %s", rec.ID)
	}
}

// Close stops accepting records and waits until queued ones are written.
func (w *RunWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *RunWriter) loop() {
	defer close(w.done)
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), runWriteTimeout)
		if err := w.store.SaveRun(ctx, rec); err != nil {
			w.logger.Error("failed to persist run %s: %v", rec.ID, err)
		}
		cancel()
	}
}

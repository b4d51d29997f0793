// Package httpapi serves the advisor's JSON API: the analysis and brainstorm pipelines,
// saved analyses, exports, usage and Prometheus metrics.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"advisor/pkg/analysis"
	"advisor/pkg/export"
	"advisor/pkg/faults"
	"advisor/pkg/logx"
	"advisor/pkg/metrics"
	"advisor/pkg/objectstore"
	"advisor/pkg/persistence"
)

const (
	// AccessCodeHeader carries the shared passphrase.
	AccessCodeHeader = "X-Access-Code"

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
	retryDetails    = "Något gick fel. Försök igen om en stund."
)

// Server handles the advisor API.
type Server struct {
	runner     analysis.Runner
	store      *persistence.Store
	archive    *objectstore.Archive
	usage      metrics.Source
	gatherer   prometheus.Gatherer
	renderer   *export.Renderer
	accessCode string
	logger     *logx.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the saved-analysis endpoints.
func WithStore(store *persistence.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithArchive copies saved analyses and their exports to object storage.
func WithArchive(archive *objectstore.Archive) Option {
	return func(s *Server) { s.archive = archive }
}

// WithUsage sets the source behind GET /api/usage.
func WithUsage(src metrics.Source) Option {
	return func(s *Server) { s.usage = src }
}

// WithGatherer sets the registry exposed on /metrics. The default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithRenderer replaces the export renderer.
func WithRenderer(r *export.Renderer) Option {
	return func(s *Server) { s.renderer = r }
}

// NewServer creates a server running pipelines through runner. An empty accessCode disables the gate.
func NewServer(runner analysis.Runner, accessCode string, opts ...Option) *Server {
	s := &Server{
		runner:     runner,
		accessCode: accessCode,
		gatherer:   prometheus.DefaultGatherer,
		logger:     logx.NewLogger("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireAccess wraps an HTTP handler with the shared passphrase check. The code is accepted
// from the X-Access-Code header or as the HTTP Basic password.
func (s *Server) requireAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.accessCode == "" || s.checkCode(accessCode(r)) {
			next(w, r)
			return
		}
		s.logger.Warn("Rejected request to %s from %s", r.URL.Path, r.RemoteAddr)
		w.Header().Set("WWW-Authenticate", `Basic realm="advisor"`)
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "access code required"})
	}
}

func accessCode(r *http.Request) string {
	if code := r.Header.Get(AccessCodeHeader); code != "" {
		return code
	}
	if _, password, ok := r.BasicAuth(); ok {
		return password
	}
	return ""
}

func (s *Server) checkCode(code string) bool {
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.accessCode)) == 1
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Unauthenticated endpoints.
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /api/access", s.handleAccess)

	// Pipelines.
	mux.HandleFunc("POST /api/analyze", s.requireAccess(s.handleAnalyze))
	mux.HandleFunc("POST /api/brainstorm", s.requireAccess(s.handleBrainstorm))

	// Saved analyses and exports.
	mux.HandleFunc("GET /api/analyses", s.requireAccess(s.handleListAnalyses))
	mux.HandleFunc("POST /api/analyses", s.requireAccess(s.handleSaveAnalysis))
	mux.HandleFunc("GET /api/analyses/{id}", s.requireAccess(s.handleGetAnalysis))
	mux.HandleFunc("DELETE /api/analyses/{id}", s.requireAccess(s.handleDeleteAnalysis))
	mux.HandleFunc("GET /api/analyses/{id}/export", s.requireAccess(s.handleExportSaved))
	mux.HandleFunc("POST /api/export", s.requireAccess(s.handleExport))

	// Operations.
	mux.HandleFunc("GET /api/usage", s.requireAccess(s.handleUsage))
	mux.HandleFunc("GET /api/logs", s.requireAccess(s.handleLogs))
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// StartServer listens on addr and serves until ctx is cancelled.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting API server on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Parent context is cancelled; shutdown needs a fresh one.
	s.logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // fresh context for shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	<-errCh
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a failure to its HTTP status.
func statusFor(err error) int {
	switch faults.KindOf(err) {
	case faults.KindInvalidInput:
		return http.StatusBadRequest
	case faults.KindNotFound:
		return http.StatusNotFound
	case faults.KindModelUnavailable, faults.KindMalformedStageOutput:
		return http.StatusBadGateway
	case faults.KindMissingConfiguration:
		return http.StatusServiceUnavailable
	case faults.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err as {error, details}. Client errors carry the fault message; server
// errors add a generic retry hint and never expose unclassified internals.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if fe, ok := faults.As(err); ok && fe.Message != "" {
		resp.Error = fe.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		resp.Details = retryDetails
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return faults.InvalidInput("invalid JSON body: %v", err)
	}
	return nil
}

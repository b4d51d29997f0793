package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"advisor/pkg/analysis"
	"advisor/pkg/brainstorm"
	"advisor/pkg/export"
	"advisor/pkg/faults"
	"advisor/pkg/logx"
	"advisor/pkg/persistence"
	"advisor/pkg/version"
)

const maxLogEntries = 1000

type analyzeRequest struct {
	CompanyInput *analysis.CompanyInput `json:"companyInput"`
}

type savedResponse struct {
	ID       string           `json:"id"`
	Analysis *analysis.Result `json:"analysis"`
}

type exportRequest struct {
	Analysis *analysis.Result `json:"analysis"`
	Format   string           `json:"format"`
}

type accessRequest struct {
	Code string `json:"code"`
}

// handleAnalyze implements POST /api/analyze. The body is {companyInput: {...}} or the bare input.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, faults.InvalidInput("failed to read body: %v", err))
		return
	}

	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, faults.InvalidInput("invalid JSON body: %v", err))
		return
	}
	in := req.CompanyInput
	if in == nil {
		in = &analysis.CompanyInput{}
		if err := json.Unmarshal(body, in); err != nil {
			s.writeError(w, r, faults.InvalidInput("invalid JSON body: %v", err))
			return
		}
	}

	save := false
	if raw := r.URL.Query().Get("save"); raw != "" {
		if save, err = strconv.ParseBool(raw); err != nil {
			s.writeError(w, r, faults.InvalidInput("invalid save parameter %q", raw))
			return
		}
	}
	if save && s.store == nil {
		s.writeError(w, r, faults.MissingConfiguration("database.dsn"))
		return
	}

	s.logger.Info("Analyzing %s", in.RunSubject())
	res, err := analysis.Analyze(r.Context(), s.runner, *in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !save {
		s.writeJSON(w, http.StatusOK, res)
		return
	}
	saved, err := s.save(r.Context(), res)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, savedResponse{ID: saved.ID, Analysis: res})
}

// handleBrainstorm implements POST /api/brainstorm.
func (s *Server) handleBrainstorm(w http.ResponseWriter, r *http.Request) {
	var req brainstorm.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("Brainstorming for %s", req.RunSubject())
	res, err := brainstorm.Brainstorm(r.Context(), s.runner, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleListAnalyses implements GET /api/analyses.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, faults.InvalidInput("invalid limit %q", raw))
			return
		}
		limit = n
	}

	list, err := store.ListAnalyses(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleSaveAnalysis implements POST /api/analyses.
func (s *Server) handleSaveAnalysis(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireStore(w, r); !ok {
		return
	}
	var res analysis.Result
	if err := decodeJSON(w, r, &res); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := res.Company.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.GeneratedAt.IsZero() {
		res.GeneratedAt = time.Now()
	}

	saved, err := s.save(r.Context(), &res)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

// handleGetAnalysis implements GET /api/analyses/{id}.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	saved, err := store.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

// handleDeleteAnalysis implements DELETE /api/analyses/{id}.
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	if err := store.DeleteAnalysis(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExport implements POST /api/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.render(req.Analysis, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeDocument(w, doc)
}

// handleExportSaved implements GET /api/analyses/{id}/export?format=.
func (s *Server) handleExportSaved(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := store.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.render(saved.Result(), format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.archive.PutExport(r.Context(), saved.ID, doc); err != nil {
		s.logger.Warn("Failed to archive export of %s: %v", saved.ID, err)
	}
	s.writeDocument(w, doc)
}

// handleAccess implements POST /api/access.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.accessCode != "" && !s.checkCode(req.Code) {
		s.logger.Warn("Failed access attempt from %s", r.RemoteAddr)
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid access code"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUsage implements GET /api/usage.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeError(w, r, faults.MissingConfiguration("metrics.prometheus_url"))
		return
	}
	report, err := s.usage.Usage(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleLogs implements GET /api/logs?component=&since=.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	component := query.Get("component")

	var since time.Time
	if raw := query.Get("since"); raw != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			s.writeError(w, r, faults.InvalidInput("invalid since parameter (use RFC3339)"))
			return
		}
	}

	logs := logx.GetRecentLogEntries(component, since)
	if len(logs) > maxLogEntries {
		logs = logs[len(logs)-maxLogEntries:]
	}
	if logs == nil {
		logs = []logx.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: version.Version}
	status := http.StatusOK
	if s.store != nil {
		resp.Database = "ok"
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("Health check database ping failed: %v", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) (*persistence.Store, bool) {
	if s.store == nil {
		s.writeError(w, r, faults.MissingConfiguration("database.dsn"))
		return nil, false
	}
	return s.store, true
}

// save persists res and archives the record. Archive failures are logged, not returned.
func (s *Server) save(ctx context.Context, res *analysis.Result) (*persistence.SavedAnalysis, error) {
	saved, err := s.store.SaveAnalysis(ctx, res)
	if err != nil {
		return nil, err
	}
	if err := s.archive.PutAnalysis(ctx, saved.ID, saved); err != nil {
		s.logger.Warn("Failed to archive analysis %s: %v", saved.ID, err)
	}
	s.logger.Info("Saved analysis %s for %s", saved.ID, saved.CompanyName)
	return saved, nil
}

func (s *Server) render(res *analysis.Result, format export.Format) (*export.Document, error) {
	if s.renderer != nil {
		return s.renderer.Render(res, format)
	}
	return export.Render(res, format)
}

func (s *Server) writeDocument(w http.ResponseWriter, doc *export.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", doc.ContentDisposition())
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	if _, err := w.Write(doc.Body); err != nil {
		s.logger.Error("Failed to write export %s: %v", doc.Filename, err)
	}
}

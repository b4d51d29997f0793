package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"advisor/pkg/analysis"
	"advisor/pkg/faults"
	"advisor/pkg/pipeline"
)

// ErrDuplicate is returned when a record with the same id already exists.
var ErrDuplicate = errors.New("record already exists")

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 50

const analysisColumns = `id, company_name, industry, company_type, challenges, goals, current_processes,
	suggestions, action_plan, roi_estimate, company_info, agent_conversation,
	total_roi_percentage, total_investment, suggestions_count, status, generated_at, created_at, updated_at`

// SaveAnalysis stores a completed analysis result and returns the new record.
func (s *Store) SaveAnalysis(ctx context.Context, res *analysis.Result) (*SavedAnalysis, error) {
	if res == nil {
		return nil, faults.InvalidInput("analysis result is required")
	}
	rec := NewSavedAnalysis(res, time.Now())
	if err := s.InsertAnalysis(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("💾 Saved analysis %s for %s", rec.ID, rec.CompanyName)
	return rec, nil
}

// InsertAnalysis stores rec as is. ErrDuplicate is returned if rec.ID is taken.
func (s *Store) InsertAnalysis(ctx context.Context, rec *SavedAnalysis) error {
	blobs, err := marshalAll(rec.Suggestions, rec.ActionPlan, rec.ROIEstimate, rec.CompanyInfo, rec.AgentConversation)
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", rec.ID, err)
	}

	_, err = s.exec(ctx, `INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CompanyName, rec.Industry, rec.CompanyType, rec.Challenges, rec.Goals, rec.CurrentProcesses,
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4],
		rec.TotalROIPercentage, rec.TotalInvestment, rec.SuggestionsCount, rec.Status,
		formatTime(rec.GeneratedAt), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("analysis %s: %w", rec.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert analysis %s: %w", rec.ID, err)
	}
	return nil
}

// GetAnalysis loads one saved analysis.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*SavedAnalysis, error) {
	row := s.queryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)

	var (
		rec                                 SavedAnalysis
		suggestions, plan, roi, info, convo string
		generatedAt, createdAt, updatedAt   string
	)
	err := row.Scan(&rec.ID, &rec.CompanyName, &rec.Industry, &rec.CompanyType, &rec.Challenges, &rec.Goals,
		&rec.CurrentProcesses, &suggestions, &plan, &roi, &info, &convo,
		&rec.TotalROIPercentage, &rec.TotalInvestment, &rec.SuggestionsCount, &rec.Status,
		&generatedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("analysis", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}

	if err := unmarshalAll(
		field{suggestions, &rec.Suggestions},
		field{plan, &rec.ActionPlan},
		field{roi, &rec.ROIEstimate},
		field{info, &rec.CompanyInfo},
		field{convo, &rec.AgentConversation},
	); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	if rec.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return nil, fmt.Errorf("analysis %s generated_at: %w", id, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("analysis %s created_at: %w", id, err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("analysis %s updated_at: %w", id, err)
	}
	return &rec, nil
}

// ListAnalyses returns summaries newest first. limit <= 0 means DefaultListLimit.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]AnalysisSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.query(ctx, `SELECT id, company_name, industry, company_type, total_roi_percentage,
		total_investment, suggestions_count, status, created_at
		FROM analyses ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []AnalysisSummary{}
	for rows.Next() {
		var (
			sum       AnalysisSummary
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.CompanyName, &sum.Industry, &sum.CompanyType, &sum.TotalROIPercentage,
			&sum.TotalInvestment, &sum.SuggestionsCount, &sum.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		if sum.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("analysis %s created_at: %w", sum.ID, err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return summaries, nil
}

// DeleteAnalysis removes one saved analysis.
func (s *Store) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	if n == 0 {
		return faults.NotFound("analysis", id)
	}
	s.logger.Info("🗑️ Deleted analysis %s", id)
	return nil
}

// NewRunRecord captures the current state of run.
func NewRunRecord(run *pipeline.Run) *RunRecord {
	rec := &RunRecord{
		ID:          run.ID,
		Pipeline:    run.Pipeline,
		Subject:     run.Subject,
		State:       run.State.String(),
		Stage:       run.Stage,
		Transitions: append([]pipeline.Transition(nil), run.Transitions...),
		StartedAt:   run.StartedAt.UTC(),
		FinishedAt:  run.FinishedAt.UTC(),
	}
	if run.Err != nil {
		rec.ErrorKind = faults.KindOf(run.Err).String()
		rec.ErrorMessage = run.Err.Error()
		if fe, ok := faults.As(run.Err); ok {
			rec.ErrorStage = fe.Stage
		}
	}
	return rec
}

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, rec *RunRecord) error {
	transitions, err := json.Marshal(rec.Transitions)
	if err != nil {
		return fmt.Errorf("failed to encode run %s transitions: %w", rec.ID, err)
	}
	_, err = s.exec(ctx, `INSERT INTO pipeline_runs
		(id, pipeline, subject, state, stage, error_kind, error_stage, error_message, transitions, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			stage = excluded.stage,
			error_kind = excluded.error_kind,
			error_stage = excluded.error_stage,
			error_message = excluded.error_message,
			transitions = excluded.transitions,
			finished_at = excluded.finished_at`,
		rec.ID, rec.Pipeline, rec.Subject, rec.State, rec.Stage, rec.ErrorKind, rec.ErrorStage, rec.ErrorMessage,
		string(transitions), formatTime(rec.StartedAt), formatTime(rec.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// ListRuns returns run records newest first, optionally filtered by pipeline name.
func (s *Store) ListRuns(ctx context.Context, pipelineName string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT id, pipeline, subject, state, stage, error_kind, error_stage, error_message,
		transitions, started_at, finished_at FROM pipeline_runs`
	args := []any{}
	if pipelineName != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipelineName)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []RunRecord{}
	for rows.Next() {
		var (
			rec                             RunRecord
			transitions, started, finished string
		)
		if err := rows.Scan(&rec.ID, &rec.Pipeline, &rec.Subject, &rec.State, &rec.Stage, &rec.ErrorKind,
			&rec.ErrorStage, &rec.ErrorMessage, &transitions, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(transitions), &rec.Transitions); err != nil {
			return nil, fmt.Errorf("run %s transitions: %w", rec.ID, err)
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", rec.ID, err)
		}
		if rec.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// modernc reports "constraint failed: UNIQUE constraint failed: ..."
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func marshalAll(values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

type field struct {
	raw  string
	dest any
}

func unmarshalAll(fields ...field) error {
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return err
		}
	}
	return nil
}

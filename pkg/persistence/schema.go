package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// migrations[i] brings the schema from version i to i+1. The statements are portable
// between SQLite and PostgreSQL.
//
//nolint:gochecknoglobals // static migration list
var migrations = [][]string{
	// 1: saved analyses
	{
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			company_name TEXT NOT NULL,
			industry TEXT NOT NULL DEFAULT '',
			company_type TEXT NOT NULL DEFAULT '',
			challenges TEXT NOT NULL DEFAULT '',
			goals TEXT NOT NULL DEFAULT '',
			current_processes TEXT NOT NULL DEFAULT '',
			suggestions TEXT NOT NULL,
			action_plan TEXT NOT NULL,
			roi_estimate TEXT NOT NULL,
			company_info TEXT NOT NULL,
			agent_conversation TEXT NOT NULL,
			total_roi_percentage INTEGER NOT NULL DEFAULT 0,
			total_investment DOUBLE PRECISION NOT NULL DEFAULT 0,
			suggestions_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'completed',
			generated_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at)`,
	},
	// 2: pipeline run history
	{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			stage INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT NOT NULL DEFAULT '',
			error_stage TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			transitions TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at)`,
	},
}

// migrate ensures the database schema is at the current version.
func (s *Store) migrate(ctx context.Context) error {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, CurrentSchemaVersion)
	}

	for version := current + 1; version <= CurrentSchemaVersion; version++ {
		if err := s.runMigration(ctx, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		s.logger.Debug("applied schema migration %d", version)
	}
	return nil
}

// runMigration applies one version inside a transaction and records it.
func (s *Store) runMigration(ctx context.Context, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations[version-1] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", stmt, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`),
		version, formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to update schema version to %d: %w", version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the current schema version, 0 for an empty database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	_, err := s.exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = s.queryRow(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}

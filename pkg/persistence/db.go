// Package persistence stores saved analyses and pipeline run records in SQLite or PostgreSQL.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"advisor/pkg/config"
	"advisor/pkg/logx"
)

// Driver names accepted in database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const pingTimeout = 5 * time.Second

// Store is a handle to the analyses database. It is safe for concurrent use.
type Store struct {
	db       *sql.DB
	postgres bool
	logger   *logx.Logger
}

// Open connects to the configured database and brings its schema up to date.
// DSNs starting with postgres:// or postgresql:// select PostgreSQL regardless of driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	postgres := cfg.Driver == DriverPostgres ||
		strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://")

	var (
		db  *sql.DB
		err error
	)
	if postgres {
		db, err = sql.Open("pgx", cfg.DSN)
	} else {
		// WAL mode and busy timeout for concurrent readers
		db, err = sql.Open("sqlite", sqliteDSN(cfg.DSN))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if postgres {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		db.SetMaxOpenConns(1) // SQLite only supports one writer
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, postgres: postgres, logger: logx.NewLogger("persistence")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	kind := DriverSQLite
	if postgres {
		kind = DriverPostgres
	}
	s.logger.Info("📦 Database initialized (%s)", kind)
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Package history keeps a local SQLite ledger of regression and oracle runs.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout has a fixed width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit is the number of runs listed when no limit is given.
const DefaultLimit = 20

// Run is one recorded regression or oracle invocation.
type Run struct {
	ID                    string
	Command               string
	RecordedAt            time.Time
	ReportPath            string
	Passed                bool
	FixtureCount          int
	FailedFixtureCount    int
	MismatchFixtureCount  int
	MismatchArtifactCount int
}

// Store is the SQLite-backed run ledger.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a store. A nil logger discards output.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{now: time.Now, logger: logger}
}

// NewWithDB wraps an already opened database.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	s := NewStore(logger)
	s.db = db
	return s
}

// Open opens the ledger at path and applies pending migrations.
// Use ":memory:" for an in-memory database.
func (s *Store) Open(ctx context.Context, path string) error {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return core.IOError("IO.HISTORY_OPEN", "failed to create history directory '%s': %v", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return core.IOError("IO.HISTORY_OPEN", "failed to open history database '%s': %v", path, err)
	}
	if path == ":memory:" {
		// Each pooled connection gets its own in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return core.IOError("IO.HISTORY_OPEN", "failed to open history database '%s': %v",
			path, errors.Join(err, db.Close()))
	}
	s.db = db
	s.path = path
	return s.Migrate(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return core.InternalError("SYS.HISTORY_STATE", "database not opened")
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return core.InternalError("SYS.HISTORY_STATE", "failed to set dialect: %v", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return core.IOError("IO.HISTORY_OPEN", "failed to migrate history database '%s': %v", s.path, err)
	}
	return nil
}

// RecordRun stores the report of a finished run together with one row per
// fixture.
func (s *Store) RecordRun(ctx context.Context, command, reportPath string, report *regression.Report) (*Run, error) {
	if s.db == nil {
		return nil, core.InternalError("SYS.HISTORY_STATE", "database not opened")
	}
	run := &Run{
		ID:                    uuid.New().String(),
		Command:               command,
		RecordedAt:            s.now().UTC(),
		ReportPath:            reportPath,
		Passed:                report.Passed,
		FixtureCount:          len(report.Fixtures),
		FailedFixtureCount:    report.FailedFixtureCount,
		MismatchFixtureCount:  report.MismatchFixtureCount,
		MismatchArtifactCount: report.MismatchArtifactCount,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, writeError(err)
	}
	if err := insertRun(ctx, tx, run, report); err != nil {
		return nil, writeError(errors.Join(err, tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return nil, writeError(err)
	}
	s.logger.Debug("recorded run", "id", run.ID, "command", command, "fixtures", run.FixtureCount)
	return run, nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run *Run, report *regression.Report) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, command, recorded_at, report_path, passed, fixture_count,
			failed_fixture_count, mismatch_fixture_count, mismatch_artifact_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.RecordedAt.Format(timeLayout), run.ReportPath, run.Passed,
		run.FixtureCount, run.FailedFixtureCount, run.MismatchFixtureCount, run.MismatchArtifactCount,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, f := range report.Fixtures {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_fixtures (id, run_id, fixture_id, passed, artifact_count, failed_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), run.ID, f.FixtureID, f.Passed, len(f.Artifacts), len(f.Failed()),
		)
		if err != nil {
			return fmt.Errorf("insert fixture %s: %w", f.FixtureID, err)
		}
	}
	return nil
}

func writeError(err error) error {
	return core.IOError("IO.HISTORY_WRITE", "failed to record run history: %v", err)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, core.InternalError("SYS.HISTORY_STATE", "database not opened")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, recorded_at, report_path, passed, fixture_count,
			failed_fixture_count, mismatch_fixture_count, mismatch_artifact_count
		FROM runs ORDER BY recorded_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, readError(err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.Command, &recordedAt, &r.ReportPath, &r.Passed, &r.FixtureCount,
			&r.FailedFixtureCount, &r.MismatchFixtureCount, &r.MismatchArtifactCount); err != nil {
			return nil, readError(err)
		}
		if r.RecordedAt, err = time.Parse(timeLayout, recordedAt); err != nil {
			return nil, readError(err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, readError(err)
	}
	return runs, nil
}

func readError(err error) error {
	return core.IOError("IO.HISTORY_READ", "failed to read run history: %v", err)
}

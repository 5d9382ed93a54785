package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/compare"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/regression"
	"github.com/leapstack-labs/feffcheck/internal/testutil"
)

func sampleReport() *regression.Report {
	reason := "exact text mismatch at byte 0 (baseline=9 bytes, actual=7 bytes)"
	return regression.BuildReport([]regression.FixtureReport{
		{FixtureID: "FX-A-001", Passed: true, Artifacts: []compare.Verdict{{ArtifactPath: "xmu.dat", Passed: true}}},
		{FixtureID: "FX-B-001", Passed: false, Artifacts: []compare.Verdict{
			{ArtifactPath: "log.dat", Reason: &reason},
			{ArtifactPath: "chi.dat", Passed: true},
		}},
	})
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s := NewStore(testutil.NewTestLogger(t))
	require.NoError(t, s.Open(context.Background(), ":memory:"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := s.RecordRun(ctx, "regression", "artifacts/regression/report.json", sampleReport())
	require.NoError(t, err)
	_, err = uuid.Parse(first.ID)
	require.NoError(t, err)

	second, err := s.RecordRun(ctx, "oracle", "artifacts/regression/oracle-report.json",
		regression.BuildReport(nil))
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, "oracle", runs[0].Command)
	assert.True(t, runs[0].Passed)

	got := runs[1]
	assert.Equal(t, first.ID, got.ID)
	assert.False(t, got.Passed)
	assert.Equal(t, 2, got.FixtureCount)
	assert.Equal(t, 1, got.FailedFixtureCount)
	assert.Equal(t, 1, got.MismatchFixtureCount)
	assert.Equal(t, 1, got.MismatchArtifactCount)
	assert.True(t, base.Add(time.Minute).Equal(got.RecordedAt))

	var fixtures int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM run_fixtures WHERE run_id = ?`, first.ID).Scan(&fixtures))
	assert.Equal(t, 2, fixtures)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpenFileMigratesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s := NewStore(nil)
	require.NoError(t, s.Open(ctx, path))
	_, err := s.RecordRun(ctx, "regression", "report.json", sampleReport())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := NewStore(nil)
	require.NoError(t, reopened.Open(ctx, path))
	defer func() { _ = reopened.Close() }()
	runs, err := reopened.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStoreNotOpened(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RecordRun(context.Background(), "regression", "report.json", sampleReport())
	assert.True(t, core.HasPlaceholder(err, "SYS.HISTORY_STATE"))
	_, err = s.ListRuns(context.Background(), 1)
	assert.True(t, core.HasPlaceholder(err, "SYS.HISTORY_STATE"))
	assert.NoError(t, s.Close())
}

func TestRecordRunErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
	}{
		{
			name: "begin fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(assert.AnError)
			},
		},
		{
			name: "run insert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO runs").WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
		},
		{
			name: "fixture insert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO run_fixtures").WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
		},
		{
			name: "commit fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO run_fixtures").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO run_fixtures").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit().WillReturnError(assert.AnError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			tt.setupMock(mock)

			s := NewWithDB(db, testutil.NewTestLogger(t))
			_, err = s.RecordRun(context.Background(), "regression", "report.json", sampleReport())
			require.Error(t, err)
			ce := core.AsError(err, "SYS.TEST")
			assert.Equal(t, "IO.HISTORY_WRITE", ce.Placeholder)
			assert.Equal(t, core.ExitIO, ce.ExitCode())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListRunsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	mock.ExpectQuery("SELECT id, command").WithArgs(DefaultLimit).WillReturnError(assert.AnError)

	_, err = NewWithDB(db, nil).ListRuns(context.Background(), 0)
	assert.True(t, core.HasPlaceholder(err, "IO.HISTORY_READ"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package etl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bincheck/binetl/internal/model"
)

func TestRunLogStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO bin_data.etl_runs").
		WithArgs(pgxmock.AnyArg(), "multi-source-etl", "abc123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := NewRunLog(mock).Start(context.Background(), "multi-source-etl", "abc123")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogComplete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	counts := RunCounts{Processed: 100, Inserted: 60, Updated: 35, Failed: 5}

	mock.ExpectExec("UPDATE bin_data.etl_runs").
		WithArgs(100, 60, 35, 5, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewRunLog(mock).Complete(context.Background(), runID, counts)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogFail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()

	mock.ExpectExec("UPDATE bin_data.etl_runs").
		WithArgs("boom", 10, 0, 0, 10, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewRunLog(mock).Fail(context.Background(), runID, RunCounts{Processed: 10, Failed: 10}, "boom")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	started := time.Now().UTC()
	completed := started.Add(time.Minute)
	hash := "deadbeef"
	errMsg := ""

	mock.ExpectQuery("SELECT id, source, version_hash").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "version_hash", "status", "processed", "inserted",
			"updated", "failed", "error_message", "started_at", "completed_at",
		}).AddRow(runID, "multi-source-etl", &hash, model.StatusCompleted, 100, 60, 35, 5, &errMsg, started, &completed))

	run, err := NewRunLog(mock).Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, "deadbeef", run.VersionHash)
	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Equal(t, 60, run.Inserted)
	require.NotNil(t, run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Now().UTC()

	mock.ExpectQuery("SELECT id, source, version_hash").
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "version_hash", "status", "processed", "inserted",
			"updated", "failed", "error_message", "started_at", "completed_at",
		}).
			AddRow(uuid.New(), "multi-source-etl", (*string)(nil), model.StatusRunning, 0, 0, 0, 0, (*string)(nil), started, (*time.Time)(nil)).
			AddRow(uuid.New(), "multi-source-etl", (*string)(nil), model.StatusFailed, 5, 0, 0, 5, (*string)(nil), started.Add(-time.Hour), (*time.Time)(nil)))

	runs, err := NewRunLog(mock).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.StatusRunning, runs[0].Status)
	assert.Equal(t, model.StatusFailed, runs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogMarkRolledBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	mock.ExpectExec("UPDATE bin_data.etl_runs SET status = 'rolled_back'").
		WithArgs(runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewRunLog(mock).MarkRolledBack(context.Background(), runID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/bincheck/binetl/internal/db"
	"github.com/bincheck/binetl/internal/model"
)

// RunCounts holds the terminal row counts for a completed run.
type RunCounts struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// RunLog provides read/write access to the bin_data.etl_runs table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run and returns its ID.
func (l *RunLog) Start(ctx context.Context, source, versionHash string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO bin_data.etl_runs (id, source, version_hash, status, started_at)
		 VALUES ($1, $2, $3, 'running', now())`,
		id, source, versionHash,
	)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "runlog: start run for %s", source)
	}
	return id, nil
}

// Complete marks a run as successfully completed with its final counts.
func (l *RunLog) Complete(ctx context.Context, runID uuid.UUID, counts RunCounts) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE bin_data.etl_runs
		 SET status = 'completed', completed_at = now(),
		     processed = $1, inserted = $2, updated = $3, failed = $4
		 WHERE id = $5`,
		counts.Processed, counts.Inserted, counts.Updated, counts.Failed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a run as failed with an error message. Counts accumulated
// before the failure are still recorded.
func (l *RunLog) Fail(ctx context.Context, runID uuid.UUID, counts RunCounts, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE bin_data.etl_runs
		 SET status = 'failed', completed_at = now(), error_message = $1,
		     processed = $2, inserted = $3, updated = $4, failed = $5
		 WHERE id = $6`,
		errMsg, counts.Processed, counts.Inserted, counts.Updated, counts.Failed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// MarkRolledBack moves a run to rolled_back after its rows were removed.
func (l *RunLog) MarkRolledBack(ctx context.Context, runID uuid.UUID) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE bin_data.etl_runs SET status = 'rolled_back', completed_at = now() WHERE id = $1`,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: mark run %s rolled back", runID)
	}
	return nil
}

// Get returns one run by ID.
func (l *RunLog) Get(ctx context.Context, runID uuid.UUID) (*model.Run, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT id, source, version_hash, status, processed, inserted, updated, failed,
		        error_message, started_at, completed_at
		 FROM bin_data.etl_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: get run %s", runID)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (l *RunLog) List(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, source, version_hash, status, processed, inserted, updated, failed,
		        error_message, started_at, completed_at
		 FROM bin_data.etl_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var versionHash, errMsg *string
	var completedAt *time.Time
	err := row.Scan(&run.ID, &run.Source, &versionHash, &run.Status,
		&run.Processed, &run.Inserted, &run.Updated, &run.Failed,
		&errMsg, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if versionHash != nil {
		run.VersionHash = *versionHash
	}
	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}
	run.CompletedAt = completedAt
	return &run, nil
}

package merge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/bincheck/binetl/internal/db"
	"github.com/bincheck/binetl/internal/model"
)

// ReviewQueue receives conflicts whose resolution was too close to call.
type ReviewQueue interface {
	Enqueue(ctx context.Context, conflict model.Conflict) error
}

// AuditTrail records every resolved conflict, reviewed or not, with the
// full candidate set for later inspection. One call covers a whole merge
// pass so the backend can write in bulk.
type AuditTrail interface {
	Record(ctx context.Context, conflicts []model.Conflict) error
}

// PostgresReview persists review items and audit entries into bin_data.
type PostgresReview struct {
	pool db.Pool
}

func NewPostgresReview(pool db.Pool) *PostgresReview {
	return &PostgresReview{pool: pool}
}

func (r *PostgresReview) Enqueue(ctx context.Context, conflict model.Conflict) error {
	candidates, err := json.Marshal(conflict.Candidates)
	if err != nil {
		return eris.Wrap(err, "merge: marshal review candidates")
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO bin_data.review_queue (id, bin, field, candidates, resolved_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bin, field) DO UPDATE SET
			candidates = EXCLUDED.candidates,
			resolved_value = EXCLUDED.resolved_value,
			status = 'pending',
			created_at = EXCLUDED.created_at
	`, uuid.New(), conflict.BIN, conflict.Field, candidates, conflict.ResolvedValue, time.Now().UTC())
	if err != nil {
		return eris.Wrap(err, "merge: enqueue review item")
	}
	return nil
}

var auditColumns = []string{"id", "bin", "field", "candidates", "resolved_value", "requires_review", "created_at"}

func (r *PostgresReview) Record(ctx context.Context, conflicts []model.Conflict) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(conflicts))
	for _, conflict := range conflicts {
		candidates, err := json.Marshal(conflict.Candidates)
		if err != nil {
			return eris.Wrap(err, "merge: marshal audit candidates")
		}
		rows = append(rows, []any{
			uuid.New(), conflict.BIN, conflict.Field, candidates,
			conflict.ResolvedValue, conflict.RequiresManualReview, now,
		})
	}

	if _, err := db.CopyInto(ctx, r.pool, "bin_data", "audit_trail", auditColumns, rows); err != nil {
		return eris.Wrap(err, "merge: record audit entries")
	}
	return nil
}

// MemoryReview keeps conflicts in process, for dry runs and tests.
type MemoryReview struct {
	mu      sync.Mutex
	Queued  []model.Conflict
	Audited []model.Conflict
}

func NewMemoryReview() *MemoryReview {
	return &MemoryReview{}
}

func (r *MemoryReview) Enqueue(_ context.Context, conflict model.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queued = append(r.Queued, conflict)
	return nil
}

func (r *MemoryReview) Record(_ context.Context, conflicts []model.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audited = append(r.Audited, conflicts...)
	return nil
}

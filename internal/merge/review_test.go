package merge

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bincheck/binetl/internal/model"
)

func sampleConflict() model.Conflict {
	return model.Conflict{
		BIN:   "411111",
		Field: "issuer",
		Candidates: []model.Candidate{
			{Source: "a", Value: "BANK A", Confidence: 70, Priority: 2},
			{Source: "b", Value: "BANK B", Confidence: 70, Priority: 2},
		},
		ResolvedValue:        "BANK A",
		RequiresManualReview: true,
	}
}

func TestPostgresReviewEnqueue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO bin_data.review_queue").
		WithArgs(pgxmock.AnyArg(), "411111", "issuer", pgxmock.AnyArg(), "BANK A", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	review := NewPostgresReview(mock)
	assert.NoError(t, review.Enqueue(context.Background(), sampleConflict()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReviewRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"bin_data", "audit_trail"},
		[]string{"id", "bin", "field", "candidates", "resolved_value", "requires_review", "created_at"}).
		WillReturnResult(2)

	second := sampleConflict()
	second.Field = "scheme"
	second.RequiresManualReview = false

	review := NewPostgresReview(mock)
	assert.NoError(t, review.Record(context.Background(), []model.Conflict{sampleConflict(), second}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReviewRecordEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// No conflicts means no COPY.
	review := NewPostgresReview(mock)
	assert.NoError(t, review.Record(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryReview(t *testing.T) {
	review := NewMemoryReview()
	conflict := sampleConflict()

	require.NoError(t, review.Enqueue(context.Background(), conflict))
	require.NoError(t, review.Record(context.Background(), []model.Conflict{conflict}))

	assert.Len(t, review.Queued, 1)
	assert.Len(t, review.Audited, 1)
	assert.Equal(t, "411111", review.Queued[0].BIN)
}

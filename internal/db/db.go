// Package db defines the narrow connection-pool interface shared by every
// component that talks to Postgres.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the subset of *pgxpool.Pool the pipeline uses. pgxmock's pool
// satisfies it too, which is what every store-level test relies on.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// NullIfEmpty maps "" to nil so empty pipeline fields land as SQL NULL,
// keeping COALESCE-based fill-only updates from erasing known data.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

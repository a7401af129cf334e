package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bincheck/binetl/internal/config"
	"github.com/bincheck/binetl/internal/enrich"
	"github.com/bincheck/binetl/internal/etl"
	"github.com/bincheck/binetl/internal/extract"
	"github.com/bincheck/binetl/internal/merge"
	"github.com/bincheck/binetl/internal/model"
)

// binPool creates a pgxpool.Pool for the bin_data schema.
func binPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		return nil, eris.New("binetl: no database_url configured (set store.database_url or BINETL_STORE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "binetl: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "binetl: ping database")
	}

	return pool, nil
}

// configuredSources translates config sources into pipeline specs, skipping
// disabled entries.
func configuredSources(etlCfg config.ETLConfig) []etl.SourceSpec {
	specs := make([]etl.SourceSpec, 0, len(etlCfg.Sources))
	for _, src := range etlCfg.Sources {
		if src.Disabled {
			continue
		}
		priority := src.Priority
		if priority <= 0 {
			priority = etlCfg.DefaultPriority
		}
		version := src.Version
		if version == "" {
			version = "latest"
		}
		specs = append(specs, etl.SourceSpec{
			Info: model.SourceInfo{
				Name:     src.Name,
				Version:  version,
				Format:   src.Format,
				Priority: priority,
			},
			Path:    src.Path,
			Mapping: extract.ColumnMapping(src.ColumnMapping),
		})
	}
	return specs
}

// newEnricher wires the lookup client and its SQLite cache from config.
// The returned cache must be closed by the caller when non-nil.
func newEnricher(enrichCfg config.EnrichConfig) (*enrich.Enricher, *enrich.SQLiteCache, error) {
	client := enrich.NewClient(
		enrichCfg.BaseURL,
		time.Duration(enrichCfg.TimeoutSecs)*time.Second,
		time.Duration(enrichCfg.DelayMs)*time.Millisecond,
	)

	cache, err := enrich.NewSQLiteCache(enrichCfg.CachePath)
	if err != nil {
		return nil, nil, err
	}
	return enrich.New(client, cache), cache, nil
}

// newMerger wires the conflict resolver and its Postgres-backed review and
// audit sinks.
func newMerger(pool *pgxpool.Pool, margin float64) *merge.Merger {
	review := merge.NewPostgresReview(pool)
	return merge.New(merge.NewResolver(margin), review, review)
}

// newDryRunMerger keeps review and audit in memory so a dry run leaves no
// rows behind.
func newDryRunMerger(margin float64) *merge.Merger {
	review := merge.NewMemoryReview()
	return merge.New(merge.NewResolver(margin), review, review)
}

package etl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bincheck/binetl/internal/enrich"
	"github.com/bincheck/binetl/internal/extract"
	"github.com/bincheck/binetl/internal/load"
	"github.com/bincheck/binetl/internal/merge"
	"github.com/bincheck/binetl/internal/model"
	"github.com/bincheck/binetl/internal/normalize"
)

// RunLabel identifies a full multi-source pipeline run in etl_runs.
const RunLabel = "multi-source-etl"

// SourceSpec is one dataset the pipeline pulls from.
type SourceSpec struct {
	Info    model.SourceInfo
	Path    string
	Mapping extract.ColumnMapping
}

// Options controls one pipeline invocation.
type Options struct {
	DryRun         bool
	SkipValidation bool
	BatchSize      int
	Enrich         bool
	EnrichOptions  enrich.Options
	// Source restricts the run to the named source; empty means all.
	Source string
}

// SourceReport summarizes extraction and normalization for one source.
type SourceReport struct {
	Name       string   `json:"name"`
	Extracted  int      `json:"extracted"`
	Normalized int      `json:"normalized"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors,omitempty"`
}

// Report is the full outcome of one pipeline run, suitable for writing out
// as JSON.
type Report struct {
	RunID         uuid.UUID      `json:"run_id,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
	Sources       []SourceReport `json:"sources"`
	Duplicates    int            `json:"duplicates_removed"`
	Merge         merge.Stats    `json:"merge"`
	InvalidMerged int            `json:"invalid_merged"`
	Enrichment    *enrich.Report `json:"enrichment,omitempty"`
	Load          load.Result    `json:"load"`
	Errors        []string       `json:"errors,omitempty"`
}

// Pipeline wires extraction through load for one configured set of sources.
type Pipeline struct {
	runlog   *RunLog
	loader   *load.Loader
	merger   *merge.Merger
	enricher *enrich.Enricher
}

// NewPipeline builds a pipeline. The enricher may be nil when enrichment is
// not requested.
func NewPipeline(runlog *RunLog, loader *load.Loader, merger *merge.Merger, enricher *enrich.Enricher) *Pipeline {
	return &Pipeline{runlog: runlog, loader: loader, merger: merger, enricher: enricher}
}

// Run executes the full pipeline: extract all sources in parallel, normalize
// and validate per source, merge across sources, validate the merged set,
// optionally enrich, and load. The run row is created before the load and
// always moved to a terminal status.
func (p *Pipeline) Run(ctx context.Context, sources []SourceSpec, opts Options) (*Report, error) {
	log := zap.L().With(zap.String("component", "etl.pipeline"))
	report := &Report{StartedAt: time.Now().UTC()}

	merged, err := p.buildMerged(ctx, sources, opts, report)
	if err != nil {
		return report, err
	}

	if opts.Enrich && p.enricher != nil {
		enrichReport := p.enricher.Enrich(ctx, merged, opts.EnrichOptions)
		report.Enrichment = &enrichReport
	}

	versionHash := load.VersionHash(merged)

	loadOpts := load.Options{
		BatchSize:      opts.BatchSize,
		DryRun:         opts.DryRun,
		SkipValidation: opts.SkipValidation,
	}

	var runID uuid.UUID
	if !opts.DryRun {
		runID, err = p.runlog.Start(ctx, runLabel(opts.Source), versionHash)
		if err != nil {
			return report, err
		}
		report.RunID = runID
	}

	result, err := p.loader.Load(ctx, merged, versionHash, loadOpts)
	report.Load = result
	report.Errors = append(report.Errors, result.Errors...)
	counts := RunCounts{
		Processed: result.Processed,
		Inserted:  result.Inserted,
		Updated:   result.Updated,
		Failed:    result.Failed,
	}

	if !opts.DryRun {
		if err != nil {
			if failErr := p.runlog.Fail(ctx, runID, counts, err.Error()); failErr != nil {
				log.Error("failed to mark run failed", zap.Error(failErr))
			}
			report.CompletedAt = time.Now().UTC()
			return report, err
		}
		if err := p.runlog.Complete(ctx, runID, counts); err != nil {
			report.CompletedAt = time.Now().UTC()
			return report, err
		}
	} else if err != nil {
		report.CompletedAt = time.Now().UTC()
		return report, err
	}

	report.CompletedAt = time.Now().UTC()
	log.Info("pipeline run complete",
		zap.String("version_hash", versionHash),
		zap.Int("processed", result.Processed),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Bool("dry_run", opts.DryRun))
	return report, nil
}

// EnrichOnly rebuilds the merged set from the sources, runs enrichment over
// it, and reports, without touching bin_data.bins.
func (p *Pipeline) EnrichOnly(ctx context.Context, sources []SourceSpec, opts Options) (*Report, error) {
	if p.enricher == nil {
		return nil, eris.New("etl: enricher not configured")
	}

	report := &Report{StartedAt: time.Now().UTC()}
	merged, err := p.buildMerged(ctx, sources, opts, report)
	if err != nil {
		return report, err
	}

	enrichReport := p.enricher.Enrich(ctx, merged, opts.EnrichOptions)
	report.Enrichment = &enrichReport
	report.CompletedAt = time.Now().UTC()
	return report, nil
}

// buildMerged runs extract, normalize, dedupe metrics, cross-source merge
// and merged validation, filling in the report as it goes.
func (p *Pipeline) buildMerged(ctx context.Context, sources []SourceSpec, opts Options, report *Report) ([]model.MergedRecord, error) {
	log := zap.L().With(zap.String("component", "etl.pipeline"))

	if opts.Source != "" {
		filtered := sources[:0:0]
		for _, src := range sources {
			if src.Info.Name == opts.Source {
				filtered = append(filtered, src)
			}
		}
		if len(filtered) == 0 {
			return nil, eris.Errorf("etl: unknown source %q", opts.Source)
		}
		sources = filtered
	}
	if len(sources) == 0 {
		return nil, eris.New("etl: no sources configured")
	}

	// Extract all sources in parallel. A failed source is reported and
	// skipped; the run proceeds with whatever extracted.
	results := make([]*extract.Result, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := extractSource(src)
			if err != nil {
				log.Warn("extraction failed",
					zap.String("source", src.Info.Name),
					zap.Error(err))
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "etl: extract sources")
	}

	// Deterministic processing order: priority, then name.
	order := make([]int, 0, len(sources))
	for i, res := range results {
		if res == nil {
			report.Sources = append(report.Sources, SourceReport{
				Name:   sources[i].Info.Name,
				Errors: []string{"extraction failed"},
			})
			continue
		}
		order = append(order, i)
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := sources[order[a]].Info, sources[order[b]].Info
		if ia.Priority != ib.Priority {
			return ia.Priority < ib.Priority
		}
		return ia.Name < ib.Name
	})

	var allNormalized []model.NormalizedRecord
	var sourceSets []merge.SourceRecords
	for _, i := range order {
		src, res := sources[i], results[i]

		batch := normalize.Batch(res.Records, src.Info.Priority)
		valid, invalid := normalize.Validate(batch.Records)

		srcReport := SourceReport{
			Name:       src.Info.Name,
			Extracted:  len(res.Records),
			Normalized: len(valid),
			Invalid:    len(invalid),
			Errors:     append(res.Errors, batch.Errors...),
		}
		report.Sources = append(report.Sources, srcReport)

		log.Info("source processed",
			zap.String("source", src.Info.Name),
			zap.Int("extracted", len(res.Records)),
			zap.Int("normalized", len(valid)),
			zap.Int("invalid", len(invalid)))

		if len(valid) == 0 {
			continue
		}
		allNormalized = append(allNormalized, valid...)
		sourceSets = append(sourceSets, merge.SourceRecords{Info: src.Info, Records: valid})
	}

	if len(allNormalized) == 0 {
		return nil, eris.New("etl: no valid records extracted from any source")
	}

	_, duplicates := merge.Dedupe(allNormalized)
	report.Duplicates = duplicates

	mergeResult := p.merger.Merge(ctx, sourceSets)
	report.Merge = mergeResult.Stats
	report.Errors = append(report.Errors, mergeResult.Errors...)

	valid, invalid := merge.Validate(mergeResult.Merged)
	report.InvalidMerged = len(invalid)
	for _, rec := range invalid {
		report.Errors = append(report.Errors, fmt.Sprintf("merged record rejected: %s", rec.BIN))
	}

	return valid, nil
}

func extractSource(src SourceSpec) (extract.Result, error) {
	switch src.Info.Format {
	case "csv":
		return extract.FromCSV(src.Path, src.Info, src.Mapping)
	case "xlsx":
		return extract.FromXLSX(src.Path, src.Info, src.Mapping)
	case "json":
		return extract.FromJSON(src.Path, src.Info)
	case "yaml", "yml":
		return extract.FromYAML(src.Path, src.Info)
	case "directory":
		return extract.FromDirectory(src.Path, src.Info, src.Mapping)
	}
	return extract.Result{}, eris.Errorf("etl: unsupported source format %q", src.Info.Format)
}

func runLabel(source string) string {
	if source != "" {
		return source
	}
	return RunLabel
}

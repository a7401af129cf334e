package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/enrich"
	"github.com/bincheck/binetl/internal/etl"
	"github.com/bincheck/binetl/internal/load"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ETL pipeline",
	Long:  "Extracts all configured sources, normalizes and merges them, validates the result, and loads it into bin_data.bins under a content-addressed version hash.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		source, _ := cmd.Flags().GetString("source")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skipValidation, _ := cmd.Flags().GetBool("skip-validation")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		doEnrich, _ := cmd.Flags().GetBool("enrich")
		enrichLimit, _ := cmd.Flags().GetInt("enrich-limit")
		enrichDelayMs, _ := cmd.Flags().GetInt("enrich-delay-ms")
		reportPath, _ := cmd.Flags().GetString("report")

		if batchSize <= 0 {
			batchSize = cfg.ETL.BatchSize
		}

		mode := "etl"
		if dryRun {
			mode = "etl-dry-run"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		var enricher *enrich.Enricher
		if doEnrich {
			enrichCfg := cfg.Enrich
			if enrichDelayMs > 0 {
				enrichCfg.DelayMs = enrichDelayMs
			}
			e, cache, err := newEnricher(enrichCfg)
			if err != nil {
				return err
			}
			defer cache.Close()
			enricher = e
		}

		pipeline, cleanup, err := buildRunPipeline(ctx, dryRun, enricher)
		if err != nil {
			return err
		}
		defer cleanup()

		opts := etl.Options{
			DryRun:         dryRun,
			SkipValidation: skipValidation,
			BatchSize:      batchSize,
			Enrich:         doEnrich,
			Source:         source,
			EnrichOptions: enrich.Options{
				Limit:         firstPositive(enrichLimit, cfg.Enrich.Limit),
				OnlyIfMissing: true,
			},
		}

		report, runErr := pipeline.Run(ctx, configuredSources(cfg.ETL), opts)
		if report != nil && reportPath != "" {
			if err := writeReport(reportPath, report); err != nil {
				zap.L().Warn("failed to write report", zap.Error(err))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "etl run")
		}

		fmt.Printf("Run complete: %d processed, %d inserted, %d updated, %d failed\n",
			report.Load.Processed, report.Load.Inserted, report.Load.Updated, report.Load.Failed)
		fmt.Printf("Version hash: %s\n", report.Load.VersionHash)
		if dryRun {
			fmt.Println("Dry run: no rows were written.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("source", "", "run only the named source")
	runCmd.Flags().Bool("dry-run", false, "validate and count without writing")
	runCmd.Flags().Bool("skip-validation", false, "load records without validation")
	runCmd.Flags().Int("batch-size", 0, "upsert batch size (default from config)")
	runCmd.Flags().Bool("enrich", false, "run binlist.net enrichment before load")
	runCmd.Flags().Int("enrich-limit", 0, "max BINs to enrich (default from config)")
	runCmd.Flags().Int("enrich-delay-ms", 0, "delay between lookups in ms (default from config)")
	runCmd.Flags().String("report", "", "write a JSON run report to this path")
	rootCmd.AddCommand(runCmd)
}

// buildRunPipeline wires the pipeline for one run. A dry run keeps review,
// audit and the run log in memory and never opens the database, so it works
// with no database_url configured.
func buildRunPipeline(ctx context.Context, dryRun bool, enricher *enrich.Enricher) (*etl.Pipeline, func(), error) {
	if dryRun {
		merger := newDryRunMerger(cfg.ETL.ResolverMargin)
		return etl.NewPipeline(nil, load.New(nil), merger, enricher), func() {}, nil
	}

	pool, err := binPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := etl.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	merger := newMerger(pool, cfg.ETL.ResolverMargin)
	return etl.NewPipeline(etl.NewRunLog(pool), load.New(pool), merger, enricher), pool.Close, nil
}

func writeReport(path string, report *etl.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal report")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create report dir %s", dir)
		}
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write report %s", path)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

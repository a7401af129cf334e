package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/enrich"
	"github.com/bincheck/binetl/internal/etl"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Batch-enrich BINs missing fields",
	Long:  "Rebuilds the merged record set from configured sources and fills missing fields from binlist.net, prioritized by how many fields each BIN lacks. Does not write to bin_data.bins.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		delayMs, _ := cmd.Flags().GetInt("delay-ms")
		reportPath, _ := cmd.Flags().GetString("report")

		enrichCfg := cfg.Enrich
		if delayMs > 0 {
			enrichCfg.DelayMs = delayMs
		}
		enricher, cache, err := newEnricher(enrichCfg)
		if err != nil {
			return err
		}
		defer cache.Close()

		pipeline := etl.NewPipeline(nil, nil, newDryRunMerger(cfg.ETL.ResolverMargin), enricher)

		opts := etl.Options{
			Enrich: true,
			EnrichOptions: enrich.Options{
				Limit:         firstPositive(limit, cfg.Enrich.Limit),
				OnlyIfMissing: true,
			},
		}

		report, err := pipeline.EnrichOnly(ctx, configuredSources(cfg.ETL), opts)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}
		if reportPath != "" {
			if err := writeReport(reportPath, report); err != nil {
				zap.L().Warn("failed to write report", zap.Error(err))
			}
		}

		e := report.Enrichment
		fmt.Printf("Enrichment complete: %d needing, %d attempted, %d enriched, %d cache hits, %d errors\n",
			e.NeedingEnrichment, e.Attempted, e.Enriched, e.CacheHits, e.Errors)
		for _, field := range []string{"issuer", "url", "phone", "city", "country", "scheme", "brand"} {
			fmt.Printf("  %-8s %3d%% -> %3d%%\n", field, e.CompletenessBefore[field], e.CompletenessAfter[field])
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().Int("limit", 0, "max BINs to enrich (default from config)")
	enrichCmd.Flags().Int("delay-ms", 0, "delay between lookups in ms (default from config)")
	enrichCmd.Flags().String("report", "", "write a JSON enrichment report to this path")
	rootCmd.AddCommand(enrichCmd)
}

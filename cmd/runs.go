package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bincheck/binetl/internal/etl"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List ETL run history",
	Long:  "Shows recent ETL runs with their status, version hash and row counts, newest first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		pool, err := binPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := etl.NewRunLog(pool).List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tVERSION\tPROCESSED\tINSERTED\tUPDATED\tFAILED\tSTARTED")
		for _, run := range runs {
			version := run.VersionHash
			if len(version) > 12 {
				version = version[:12]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				run.ID, run.Source, run.Status, version,
				run.Processed, run.Inserted, run.Updated, run.Failed,
				run.StartedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max runs to list")
	rootCmd.AddCommand(runsCmd)
}

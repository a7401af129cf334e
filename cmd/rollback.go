package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bincheck/binetl/internal/etl"
	"github.com/bincheck/binetl/internal/load"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back a loaded data version",
	Long:  "Deletes every bins row stamped with a version hash, given either the hash itself or the run that produced it, and marks the run rolled_back.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		versionHash, _ := cmd.Flags().GetString("version")
		runIDStr, _ := cmd.Flags().GetString("run-id")

		if versionHash == "" && runIDStr == "" {
			return eris.New("rollback: provide --version or --run-id")
		}

		pool, err := binPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runlog := etl.NewRunLog(pool)

		var runID uuid.UUID
		if runIDStr != "" {
			runID, err = uuid.Parse(runIDStr)
			if err != nil {
				return eris.Wrapf(err, "rollback: parse run id %q", runIDStr)
			}
			run, err := runlog.Get(ctx, runID)
			if err != nil {
				return err
			}
			if run.VersionHash == "" {
				return eris.Errorf("rollback: run %s has no version hash", runID)
			}
			if versionHash != "" && versionHash != run.VersionHash {
				return eris.Errorf("rollback: --version %s does not match run %s", versionHash, runID)
			}
			versionHash = run.VersionHash
		}

		before, after, err := load.Rollback(ctx, pool, versionHash)
		if err != nil {
			return err
		}

		if runIDStr != "" {
			if err := runlog.MarkRolledBack(ctx, runID); err != nil {
				return err
			}
		}

		fmt.Printf("Rollback complete for version %s: before=%d, after=%d\n", versionHash, before, after)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().String("version", "", "version hash to roll back")
	rollbackCmd.Flags().String("run-id", "", "run whose version should be rolled back")
	rootCmd.AddCommand(rollbackCmd)
}

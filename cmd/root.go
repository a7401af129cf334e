package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "binetl",
	Short: "BIN reference-data ETL pipeline",
	Long:  "Extracts BIN/IIN reference datasets, normalizes and merges them across sources, and loads the result into Postgres with content-addressed versioning.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

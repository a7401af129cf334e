package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/config"
	"github.com/bincheck/binetl/internal/etl"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestConfiguredSources(t *testing.T) {
	etlCfg := config.ETLConfig{
		DefaultPriority: 10,
		Sources: []config.SourceConfig{
			{Name: "iso-registry", Path: "./iso.csv", Format: "csv", Priority: 1, Version: "2026-08"},
			{Name: "community", Path: "./community", Format: "directory"},
			{Name: "stale", Path: "./stale.json", Format: "json", Disabled: true},
		},
	}

	specs := configuredSources(etlCfg)
	require.Len(t, specs, 2)

	assert.Equal(t, "iso-registry", specs[0].Info.Name)
	assert.Equal(t, 1, specs[0].Info.Priority)
	assert.Equal(t, "2026-08", specs[0].Info.Version)

	// Unset priority and version fall back to defaults.
	assert.Equal(t, 10, specs[1].Info.Priority)
	assert.Equal(t, "latest", specs[1].Info.Version)
}

func TestFirstPositive(t *testing.T) {
	assert.Equal(t, 5, firstPositive(5, 10))
	assert.Equal(t, 10, firstPositive(0, 10))
	assert.Equal(t, 10, firstPositive(-1, 10))
	assert.Equal(t, 0, firstPositive(0, 0))
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	report := &etl.Report{Errors: []string{"merged record rejected: 123"}}

	require.NoError(t, writeReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "merged record rejected")
}

func TestBuildRunPipelineDryRunNeedsNoDatabase(t *testing.T) {
	old := cfg
	defer func() { cfg = old }()
	cfg = &config.Config{}

	// No database_url configured; a dry run must not try to connect.
	pipeline, cleanup, err := buildRunPipeline(context.Background(), true, nil)
	require.NoError(t, err)
	require.NotNil(t, pipeline)
	cleanup()
}

func TestNewEnricherCreatesCache(t *testing.T) {
	enricher, cache, err := newEnricher(config.EnrichConfig{
		CachePath:   filepath.Join(t.TempDir(), "cache.db"),
		TimeoutSecs: 1,
		DelayMs:     1,
	})
	require.NoError(t, err)
	defer cache.Close()
	assert.NotNil(t, enricher)
}

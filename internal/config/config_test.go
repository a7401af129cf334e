package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 100, cfg.ETL.BatchSize)
	assert.InDelta(t, 50, cfg.ETL.ResolverMargin, 0.001)
	assert.Equal(t, 10, cfg.ETL.DefaultPriority)
	assert.Empty(t, cfg.ETL.Sources)
	assert.Equal(t, "https://lookup.binlist.net", cfg.Enrich.BaseURL)
	assert.Equal(t, "./data/cache/binlist.db", cfg.Enrich.CachePath)
	assert.Equal(t, 50, cfg.Enrich.Limit)
	assert.Equal(t, 1500, cfg.Enrich.DelayMs)
	assert.Equal(t, 5, cfg.Enrich.TimeoutSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  database_url: postgres://localhost/bins
log:
  level: debug
  format: console
etl:
  batch_size: 250
  sources:
    - name: iso-registry
      path: ./data/iso.csv
      format: csv
      priority: 1
      column_mapping:
        bin: BIN_NUMBER
        issuer: ISSUING_BANK
    - name: community
      path: ./data/community
      format: directory
      disabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/bins", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 250, cfg.ETL.BatchSize)

	require.Len(t, cfg.ETL.Sources, 2)
	first := cfg.ETL.Sources[0]
	assert.Equal(t, "iso-registry", first.Name)
	assert.Equal(t, "csv", first.Format)
	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, "BIN_NUMBER", first.ColumnMapping["bin"])
	assert.True(t, cfg.ETL.Sources[1].Disabled)

	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Enrich.Limit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
log:
  level: debug
etl:
  batch_size: 250
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BINETL_LOG_LEVEL", "warn")
	t.Setenv("BINETL_ETL_BATCH_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 500, cfg.ETL.BatchSize)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("BINETL_STORE_DATABASE_URL", "postgres://localhost/override")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/override", cfg.Store.DatabaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.ETL.BatchSize = 100
	cfg.ETL.ResolverMargin = 50
	cfg.ETL.Sources = []SourceConfig{{Name: "iso-registry", Path: "./data/iso.csv", Format: "csv"}}
	cfg.Enrich.CachePath = "./data/cache/binlist.db"
	cfg.Enrich.Limit = 50
	cfg.Enrich.DelayMs = 1500
	return cfg
}

func TestValidateETL_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/bins"

	assert.NoError(t, cfg.Validate("etl"))
}

func TestValidateETL_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.ETL.Sources = nil

	err := cfg.Validate("etl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "at least one enabled source")
}

func TestValidateETLDryRun_NoDatabaseNeeded(t *testing.T) {
	cfg := validDefaults()

	// Source checks still apply, but the store URL does not.
	assert.NoError(t, cfg.Validate("etl-dry-run"))

	cfg.ETL.Sources = nil
	err := cfg.Validate("etl-dry-run")
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "store.database_url")
	assert.Contains(t, err.Error(), "at least one enabled source")
}

func TestValidateETL_SourceFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/bins"
	cfg.ETL.Sources = []SourceConfig{{Format: "csv"}}

	err := cfg.Validate("etl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "etl.sources[0].name is required")
	assert.Contains(t, err.Error(), "etl.sources[0].path is required")
}

func TestValidateETL_DisabledSourcesSkipped(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/bins"
	cfg.ETL.Sources = append(cfg.ETL.Sources, SourceConfig{Disabled: true})

	assert.NoError(t, cfg.Validate("etl"))
}

func TestValidateETL_BatchSizeBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/bins"

	cfg.ETL.BatchSize = 0
	err := cfg.Validate("etl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size must be between 1 and 10000")

	cfg.ETL.BatchSize = 10001
	err = cfg.Validate("etl")
	assert.Error(t, err)

	cfg.ETL.BatchSize = 10000
	assert.NoError(t, cfg.Validate("etl"))
}

func TestValidateEnrich(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("enrich"))

	cfg.Enrich.CachePath = ""
	cfg.Enrich.Limit = 0
	err := cfg.Validate("enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich.cache_path is required")
	assert.Contains(t, err.Error(), "enrich.limit must be >= 1")
}

func TestValidateDB(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("db")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/bins"
	assert.NoError(t, cfg.Validate("db"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

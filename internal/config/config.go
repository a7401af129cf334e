// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	ETL    ETLConfig    `yaml:"etl" mapstructure:"etl"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig describes one reference dataset feeding the pipeline.
// Priority is an ordinal trust ranking; lower wins on conflicts.
type SourceConfig struct {
	Name          string            `yaml:"name" mapstructure:"name"`
	Path          string            `yaml:"path" mapstructure:"path"`
	Format        string            `yaml:"format" mapstructure:"format"`
	Version       string            `yaml:"version" mapstructure:"version"`
	Priority      int               `yaml:"priority" mapstructure:"priority"`
	ColumnMapping map[string]string `yaml:"column_mapping" mapstructure:"column_mapping"`
	Disabled      bool              `yaml:"disabled" mapstructure:"disabled"`
}

// ETLConfig configures the extract-through-load pipeline.
type ETLConfig struct {
	Sources         []SourceConfig `yaml:"sources" mapstructure:"sources"`
	BatchSize       int            `yaml:"batch_size" mapstructure:"batch_size"`
	ResolverMargin  float64        `yaml:"resolver_margin" mapstructure:"resolver_margin"`
	DefaultPriority int            `yaml:"default_priority" mapstructure:"default_priority"`
}

// EnrichConfig configures the binlist.net enrichment pass.
type EnrichConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	CachePath   string `yaml:"cache_path" mapstructure:"cache_path"`
	Limit       int    `yaml:"limit" mapstructure:"limit"`
	DelayMs     int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BINETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("etl.batch_size", 100)
	v.SetDefault("etl.resolver_margin", 50)
	v.SetDefault("etl.default_priority", 10)
	v.SetDefault("enrich.base_url", "https://lookup.binlist.net")
	v.SetDefault("enrich.cache_path", "./data/cache/binlist.db")
	v.SetDefault("enrich.limit", 50)
	v.SetDefault("enrich.delay_ms", 1500)
	v.SetDefault("enrich.timeout_secs", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration required for a given mode is
// present. Modes: "etl" (full pipeline), "etl-dry-run" (pipeline without a
// store), "enrich" (lookup pass only), "db" (commands that only need the
// database).
func (c *Config) Validate(mode string) error {
	var problems []string

	requireDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "etl", "etl-dry-run":
		// A dry run never touches the store, so the URL is only needed
		// for a real load.
		if mode == "etl" {
			requireDB()
		}
		enabled := 0
		for i, src := range c.ETL.Sources {
			if src.Disabled {
				continue
			}
			enabled++
			if src.Name == "" {
				problems = append(problems, fmt.Sprintf("etl.sources[%d].name is required", i))
			}
			if src.Path == "" {
				problems = append(problems, fmt.Sprintf("etl.sources[%d].path is required", i))
			}
		}
		if enabled == 0 {
			problems = append(problems, "etl.sources must list at least one enabled source")
		}
		if c.ETL.BatchSize < 1 || c.ETL.BatchSize > 10000 {
			problems = append(problems, "etl.batch_size must be between 1 and 10000")
		}
		if c.ETL.ResolverMargin < 0 {
			problems = append(problems, "etl.resolver_margin must be >= 0")
		}
	case "enrich":
		if c.Enrich.CachePath == "" {
			problems = append(problems, "enrich.cache_path is required")
		}
		if c.Enrich.Limit < 1 {
			problems = append(problems, "enrich.limit must be >= 1")
		}
		if c.Enrich.DelayMs < 0 {
			problems = append(problems, "enrich.delay_ms must be >= 0")
		}
	case "db":
		requireDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

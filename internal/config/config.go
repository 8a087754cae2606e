// Package config loads the pipeline's JSON configuration file (spec §6)
// using viper, the way the teacher loads its own YAML config: a fresh
// viper instance, an explicit config file path, typed accessors.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/magnusmanske/baglama2-go/internal/types"
)

// DBConfig configures one connection pool (tool DB or repo DB).
type DBConfig struct {
	URL            string
	MinConnections int
	MaxConnections int
	KeepSec        int
}

// IdleTimeout converts KeepSec into a time.Duration for sql.DB.SetConnMaxIdleTime.
func (c DBConfig) IdleTimeout() time.Duration {
	return time.Duration(c.KeepSec) * time.Second
}

// Config is the fully parsed configuration file.
type Config struct {
	ToolDB  DBConfig
	Commons DBConfig

	SqliteSchemaFile   string
	SqliteDataRootPath string

	// Storage selects which storage.Backend variant new jobs run against
	// (spec §9 design note: "variants are selected by configuration").
	Storage types.StorageKind

	MaxConcurrentJobs int
	HoldOnSeconds     int

	// Previously-hardcoded tunables from spec §9 REDESIGN FLAGS, now
	// configurable with the spec's own defaults.
	RetryMaxAttempts           int
	BatchSubcategory           int
	BatchPagesInCategory       int
	BatchPageDiscoveryWindow   int
	BatchPageDiscoverySubBatch int
	BatchViewResolution        int
}

// HoldOn returns the configured backoff delay as a time.Duration.
func (c Config) HoldOn() time.Duration {
	return time.Duration(c.HoldOnSeconds) * time.Second
}

// defaultSearchPaths are tried in order, first match wins, matching
// spec §6: "./config.json first, then /data/project/.../config.json".
var defaultSearchPaths = []string{
	"./config.json",
	"/data/project/glamtools/baglama2_rs/config.json",
}

// Load reads the configuration file from the first path in
// defaultSearchPaths that exists, or from explicitPath if given.
func Load(explicitPath string) (*Config, error) {
	paths := defaultSearchPaths
	if explicitPath != "" {
		paths = []string{explicitPath}
	}

	v := viper.New()
	v.SetConfigType("json")

	var lastErr error
	loaded := false
	for _, p := range paths {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			lastErr = err
			continue
		}
		loaded = true
		break
	}
	if !loaded {
		return nil, fmt.Errorf("config: no config file found in %v: %w", paths, lastErr)
	}

	setDefaults(v)

	cfg := &Config{
		ToolDB: DBConfig{
			URL:            v.GetString("tooldb.url"),
			MinConnections: v.GetInt("tooldb.min_connections"),
			MaxConnections: v.GetInt("tooldb.max_connections"),
			KeepSec:        v.GetInt("tooldb.keep_sec"),
		},
		Commons: DBConfig{
			URL:            v.GetString("commons.url"),
			MinConnections: v.GetInt("commons.min_connections"),
			MaxConnections: v.GetInt("commons.max_connections"),
			KeepSec:        v.GetInt("commons.keep_sec"),
		},
		SqliteSchemaFile:           v.GetString("sqlite_schema_file"),
		SqliteDataRootPath:         v.GetString("sqlite_data_root_path"),
		Storage:                    types.StorageKind(v.GetString("storage")),
		MaxConcurrentJobs:          v.GetInt("max_concurrent_jobs"),
		HoldOnSeconds:              v.GetInt("hold_on"),
		RetryMaxAttempts:           v.GetInt("retry.max_attempts"),
		BatchSubcategory:           v.GetInt("batch.subcategory"),
		BatchPagesInCategory:       v.GetInt("batch.pages_in_category"),
		BatchPageDiscoveryWindow:   v.GetInt("batch.page_discovery_window"),
		BatchPageDiscoverySubBatch: v.GetInt("batch.page_discovery_subbatch"),
		BatchViewResolution:        v.GetInt("batch.view_resolution"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tooldb.min_connections", 1)
	v.SetDefault("tooldb.max_connections", 10)
	v.SetDefault("tooldb.keep_sec", 60)
	v.SetDefault("commons.min_connections", 1)
	v.SetDefault("commons.max_connections", 10)
	v.SetDefault("commons.keep_sec", 60)
	v.SetDefault("storage", string(types.StorageSQLite3))
	v.SetDefault("max_concurrent_jobs", 1)
	v.SetDefault("hold_on", 5)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("batch.subcategory", 1000)
	v.SetDefault("batch.pages_in_category", 1000)
	v.SetDefault("batch.page_discovery_window", 10000)
	v.SetDefault("batch.page_discovery_subbatch", 3000)
	v.SetDefault("batch.view_resolution", 3000)
}

func (c Config) validate() error {
	if c.ToolDB.URL == "" {
		return fmt.Errorf("config: tooldb.url is required")
	}
	if c.SqliteDataRootPath == "" && c.SqliteSchemaFile != "" {
		return fmt.Errorf("config: sqlite_data_root_path is required when sqlite_schema_file is set")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("config: max_concurrent_jobs must be >= 1")
	}
	return nil
}

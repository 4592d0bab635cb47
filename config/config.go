package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config holds the batcher configuration
type Config struct {
	Batch    BatchConfig
	Database DatabaseConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// BatchConfig holds batch executor settings
type BatchConfig struct {
	Size        int  // Statements per batch (1 disables batching)
	ExactCounts bool // Reject unknown aggregate row counts
}

// DatabaseConfig selects the driver and connection
type DatabaseConfig struct {
	Driver          string // sqlite3, sqlite, mysql, postgres, sqlserver or pgx
	DSN             string
	EmulateBatching bool // Prepared-statement batching for database/sql drivers
}

// LogConfig holds logging settings
type LogConfig struct {
	Level      string
	VerboseSQL bool
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Listen string // Empty disables the endpoint
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Batch:    BatchConfig{Size: 20},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "file::memory:?cache=shared"},
		Log:      LogConfig{Level: "info"},
		Metrics:  MetricsConfig{Listen: ":9090"},
	}
}

// Load reads configuration from an INI file with environment variable overrides
func Load(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return parse(cfg), nil
}

// LoadBytes reads configuration from INI data with environment variable overrides
func LoadBytes(data []byte) (*Config, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, err
	}
	return parse(cfg), nil
}

func parse(cfg *ini.File) *Config {
	def := Default()

	batch := cfg.Section("batch")
	db := cfg.Section("database")
	log := cfg.Section("log")
	metrics := cfg.Section("metrics")

	config := &Config{
		Batch: BatchConfig{
			Size:        batch.Key("size").MustInt(def.Batch.Size),
			ExactCounts: batch.Key("exact_counts").MustBool(false),
		},
		Database: DatabaseConfig{
			Driver:          db.Key("driver").MustString(def.Database.Driver),
			DSN:             db.Key("dsn").MustString(def.Database.DSN),
			EmulateBatching: db.Key("emulate_batching").MustBool(false),
		},
		Log: LogConfig{
			Level:      log.Key("level").MustString(def.Log.Level),
			VerboseSQL: log.Key("verbose_sql").MustBool(false),
		},
		Metrics: MetricsConfig{
			Listen: metrics.Key("listen").MustString(def.Metrics.Listen),
		},
	}

	applyEnv(config)
	return config
}

// applyEnv applies TQBATCH_* environment variable overrides
func applyEnv(config *Config) {
	if v := os.Getenv("TQBATCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Batch.Size = n
		}
	}
	if v := os.Getenv("TQBATCH_DATABASE_DRIVER"); v != "" {
		config.Database.Driver = v
	}
	if v := os.Getenv("TQBATCH_DATABASE_DSN"); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv("TQBATCH_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("TQBATCH_METRICS_LISTEN"); v != "" {
		config.Metrics.Listen = v
	}
}

// Package config loads service configuration from YAML with environment
// overrides. Command-line flags are applied by each command on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/saveplus/saveplus/internal/anomaly"
	"github.com/saveplus/saveplus/internal/recurring"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverBigQuery = "bigquery"
	DriverSQLite   = "sqlite"
)

// Config holds all $ave+ backend configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Storage   StorageConfig   `yaml:"storage"`
	Detector  DetectorConfig  `yaml:"detector"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Worker    WorkerConfig    `yaml:"worker"`
	Assistant AssistantConfig `yaml:"assistant"`
	Notion    NotionConfig    `yaml:"notion"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects and addresses the persistence backend.
type StoreConfig struct {
	Driver     string `yaml:"driver"` // bigquery, sqlite
	ProjectID  string `yaml:"project_id"`
	DatasetID  string `yaml:"dataset_id"`
	SQLitePath string `yaml:"sqlite_path"`
}

// StorageConfig configures Cloud Storage for bank-sync exports.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
}

// DetectorConfig tunes recurring-charge detection.
type DetectorConfig struct {
	LookbackMonths int     `yaml:"lookback_months"`
	Tolerance      float64 `yaml:"tolerance"`
}

// AnomalyConfig tunes spending anomaly detection.
type AnomalyConfig struct {
	LookbackDays  int     `yaml:"lookback_days"`
	ZThreshold    float64 `yaml:"z_threshold"`
	MinHistory    int     `yaml:"min_history"`
	FlatDeviation float64 `yaml:"flat_deviation"`
}

// WorkerConfig configures the batch worker and the in-process job queue.
type WorkerConfig struct {
	Concurrency  int    `yaml:"concurrency"`
	MaxAttempts  int    `yaml:"max_attempts"`
	Interval     string `yaml:"interval"`
	ActiveWithin string `yaml:"active_within"`
	QueueSize    int    `yaml:"queue_size"`
	QueueWorkers int    `yaml:"queue_workers"`
}

// AssistantConfig configures model-written nudge copy.
type AssistantConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// NotionConfig configures the Notion mirror.
type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port string `yaml:"port"`
	// APIKey enables bearer-token auth on /api/ routes when set.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     DriverBigQuery,
			DatasetID:  "saveplus",
			SQLitePath: "saveplus.db",
		},
		Detector: DetectorConfig{
			LookbackMonths: recurring.DefaultLookbackMonths,
			Tolerance:      recurring.DefaultOptions().Tolerance,
		},
		Anomaly: AnomalyConfig{
			LookbackDays:  90,
			ZThreshold:    anomaly.DefaultOptions().ZThreshold,
			MinHistory:    anomaly.DefaultOptions().MinHistory,
			FlatDeviation: anomaly.DefaultOptions().FlatDeviation,
		},
		Worker: WorkerConfig{
			Concurrency:  8,
			MaxAttempts:  3,
			Interval:     "24h",
			ActiveWithin: "2160h",
			QueueSize:    100,
			QueueWorkers: 5,
		},
		Assistant: AssistantConfig{
			Model: "gemini-2.5-flash",
		},
		HTTP: HTTPConfig{
			Port: "8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("Load: parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("Load: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies SAVEPLUS_* variables, plus the GCS_BUCKET,
// GEMINI_API_KEY and NOTION_TOKEN names the deployment already uses.
func (c *Config) applyEnvOverrides() error {
	setString(&c.Store.Driver, "SAVEPLUS_STORE_DRIVER")
	setString(&c.Store.ProjectID, "SAVEPLUS_PROJECT_ID")
	setString(&c.Store.DatasetID, "SAVEPLUS_DATASET_ID")
	setString(&c.Store.SQLitePath, "SAVEPLUS_SQLITE_PATH")

	setString(&c.Storage.Bucket, "GCS_BUCKET")
	setString(&c.Storage.Bucket, "SAVEPLUS_BUCKET")

	setString(&c.Assistant.APIKey, "GEMINI_API_KEY")
	setString(&c.Assistant.Model, "SAVEPLUS_ASSISTANT_MODEL")
	if v := os.Getenv("SAVEPLUS_ASSISTANT_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SAVEPLUS_ASSISTANT_ENABLED: %w", err)
		}
		c.Assistant.Enabled = b
	}

	setString(&c.Notion.Token, "NOTION_TOKEN")
	setString(&c.Notion.Token, "SAVEPLUS_NOTION_TOKEN")
	setString(&c.Notion.DatabaseID, "SAVEPLUS_NOTION_DATABASE_ID")

	setString(&c.HTTP.Port, "PORT")
	setString(&c.HTTP.Port, "SAVEPLUS_HTTP_PORT")
	setString(&c.HTTP.APIKey, "SAVEPLUS_API_KEY")

	setString(&c.Logging.Level, "SAVEPLUS_LOG_LEVEL")
	setString(&c.Logging.Format, "SAVEPLUS_LOG_FORMAT")

	if v := os.Getenv("SAVEPLUS_WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SAVEPLUS_WORKER_CONCURRENCY: %w", err)
		}
		c.Worker.Concurrency = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverBigQuery:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id is required for the bigquery driver (set SAVEPLUS_PROJECT_ID)")
		}
		if c.Store.DatasetID == "" {
			return fmt.Errorf("store.dataset_id is required for the bigquery driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid store driver: %q (valid: %s, %s)", c.Store.Driver, DriverBigQuery, DriverSQLite)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Assistant.Enabled && c.Assistant.APIKey == "" {
		return fmt.Errorf("assistant is enabled but no API key is configured (set GEMINI_API_KEY)")
	}
	return nil
}

// GetWorkerInterval returns the batch interval as a duration.
func (c *Config) GetWorkerInterval() time.Duration {
	d, err := time.ParseDuration(c.Worker.Interval)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// GetActiveWithin returns how recent a transaction must be for a user to be
// included in the batch.
func (c *Config) GetActiveWithin() time.Duration {
	d, err := time.ParseDuration(c.Worker.ActiveWithin)
	if err != nil || d <= 0 {
		return 90 * 24 * time.Hour
	}
	return d
}

// DetectorOptions returns detector tuning with the configured tolerance.
func (c *Config) DetectorOptions() recurring.Options {
	opts := recurring.DefaultOptions()
	if c.Detector.Tolerance > 0 {
		opts.Tolerance = c.Detector.Tolerance
	}
	return opts
}

// AnomalyOptions returns anomaly tuning, falling back to defaults for
// unset values.
func (c *Config) AnomalyOptions() anomaly.Options {
	opts := anomaly.DefaultOptions()
	if c.Anomaly.ZThreshold > 0 {
		opts.ZThreshold = c.Anomaly.ZThreshold
	}
	if c.Anomaly.MinHistory > 0 {
		opts.MinHistory = c.Anomaly.MinHistory
	}
	if c.Anomaly.FlatDeviation > 0 {
		opts.FlatDeviation = c.Anomaly.FlatDeviation
	}
	return opts
}

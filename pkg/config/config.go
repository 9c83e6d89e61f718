// Package config holds Kartograph service configuration.
//
// Precedence, lowest to highest: built-in defaults, YAML config file,
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/envutil"
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir is the storage directory. Ignored when InMemory is true.
	DataDir string `yaml:"data_dir"`

	// InMemory runs the store without durable backing.
	InMemory bool `yaml:"in_memory"`

	// SyncThresholdBytes: inputs at or below this size parse inline.
	SyncThresholdBytes int `yaml:"sync_threshold_bytes"`

	// SummaryThresholdBytes: inputs above this size get a summary instead of
	// full structural linting.
	SummaryThresholdBytes int `yaml:"summary_threshold_bytes"`

	// ParseDebounce delays background parses so rapid edits coalesce.
	ParseDebounce time.Duration `yaml:"parse_debounce"`

	// MaxSummaryErrors caps the errors carried by a summary.
	MaxSummaryErrors int `yaml:"max_summary_errors"`

	// MaxBatchBytes rejects apply/lint request bodies above this size.
	MaxBatchBytes int64 `yaml:"max_batch_bytes"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:            ":8632",
		DataDir:               "./data",
		InMemory:              false,
		SyncThresholdBytes:    64 * 1024,
		SummaryThresholdBytes: 4 * 1024 * 1024,
		ParseDebounce:         150 * time.Millisecond,
		MaxSummaryErrors:      20,
		MaxBatchBytes:         64 * 1024 * 1024,
		ShutdownTimeout:       30 * time.Second,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (when non-empty), then env vars on top.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.mergeEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.ListenAddr = envutil.Get("KARTOGRAPH_LISTEN_ADDR", c.ListenAddr)
	c.DataDir = envutil.Get("KARTOGRAPH_DATA_DIR", c.DataDir)
	c.InMemory = envutil.GetBool("KARTOGRAPH_IN_MEMORY", c.InMemory)
	c.SyncThresholdBytes = envutil.GetInt("KARTOGRAPH_SYNC_THRESHOLD_BYTES", c.SyncThresholdBytes)
	c.SummaryThresholdBytes = envutil.GetInt("KARTOGRAPH_SUMMARY_THRESHOLD_BYTES", c.SummaryThresholdBytes)
	c.ParseDebounce = envutil.GetDuration("KARTOGRAPH_PARSE_DEBOUNCE", c.ParseDebounce)
	c.MaxSummaryErrors = envutil.GetInt("KARTOGRAPH_MAX_SUMMARY_ERRORS", c.MaxSummaryErrors)
	c.MaxBatchBytes = int64(envutil.GetInt("KARTOGRAPH_MAX_BATCH_BYTES", int(c.MaxBatchBytes)))
	c.ShutdownTimeout = envutil.GetDuration("KARTOGRAPH_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("data_dir must be set unless in_memory is true")
	}
	if c.SyncThresholdBytes < 0 || c.SummaryThresholdBytes < 0 {
		return fmt.Errorf("parse thresholds must not be negative")
	}
	if c.SummaryThresholdBytes < c.SyncThresholdBytes {
		return fmt.Errorf("summary_threshold_bytes (%d) must be >= sync_threshold_bytes (%d)",
			c.SummaryThresholdBytes, c.SyncThresholdBytes)
	}
	if c.MaxBatchBytes <= 0 {
		return fmt.Errorf("max_batch_bytes must be positive")
	}
	return nil
}

// Package config loads and persists vigil's TOML configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file for user preferences
const FileName = "config.toml"

// EnvDir overrides the config directory when set.
const EnvDir = "VIGIL_DIR"

// Config represents user-facing configuration in TOML format
type Config struct {
	// Monitor defines poll loop and classification settings
	Monitor MonitorSettings `toml:"monitor"`

	// Logs defines structured log management settings
	Logs LogSettings `toml:"logs"`

	// History defines the status transition journal settings
	History HistorySettings `toml:"history"`
}

// MonitorSettings defines poll loop and classification configuration
type MonitorSettings struct {
	// PollIntervalMS is the time between snapshot polls in milliseconds
	// Default: 500
	PollIntervalMS int `toml:"poll_interval_ms"`

	// DebounceMS is the publish debounce window in milliseconds
	// Default: 250
	DebounceMS int `toml:"debounce_ms"`

	// ActiveRecencyMS is the classifier's active-status recency threshold
	// in milliseconds
	// Default: 2000
	ActiveRecencyMS int `toml:"active_recency_ms"`

	// CaptureRatePerSec bounds snapshot captures per second (0 = unlimited)
	// Default: 0
	CaptureRatePerSec float64 `toml:"capture_rate_per_sec"`

	// StateFile is the JSON observation file polled by the file source
	// Default: <config dir>/state.json
	StateFile string `toml:"state_file"`
}

// PollInterval returns the poll interval with the default applied.
func (m MonitorSettings) PollInterval() time.Duration {
	if m.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// Debounce returns the publish debounce window with the default applied.
func (m MonitorSettings) Debounce() time.Duration {
	if m.DebounceMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(m.DebounceMS) * time.Millisecond
}

// ActiveRecency returns the active-status threshold with the default applied.
func (m MonitorSettings) ActiveRecency() time.Duration {
	if m.ActiveRecencyMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(m.ActiveRecencyMS) * time.Millisecond
}

// LogSettings defines log file management configuration
type LogSettings struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `toml:"level"`

	// Format sets the log format: "json" (default) or "text"
	Format string `toml:"format"`

	// MaxSizeMB is the max size in MB for vigil.log before rotation
	// Default: 10
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep
	// Default: 5
	MaxBackups int `toml:"max_backups"`

	// RetentionDays is the number of days to keep rotated logs
	// Default: 10
	RetentionDays int `toml:"retention_days"`

	// Compress enables gzip compression for rotated logs
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	Compress *bool `toml:"compress"`

	// AggregateIntervalS is the event aggregation flush interval in seconds
	// Default: 30
	AggregateIntervalS int `toml:"aggregate_interval_secs"`
}

// GetCompress returns whether rotated logs are compressed, defaulting to true
func (l LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// HistorySettings defines the transition journal configuration
type HistorySettings struct {
	// Enabled turns the journal on
	// Default: true (pointer to distinguish "not set" from "explicitly false")
	Enabled *bool `toml:"enabled"`

	// RetentionDays is how long transitions are kept before pruning
	// Default: 14
	RetentionDays int `toml:"retention_days"`
}

// GetEnabled returns whether the journal is enabled, defaulting to true
func (h HistorySettings) GetEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

// Retention returns the journal retention with the default applied.
func (h HistorySettings) Retention() time.Duration {
	days := h.RetentionDays
	if days <= 0 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}

// Dir returns the vigil home directory, honoring the VIGIL_DIR override.
func Dir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home dir: %w", err)
	}
	return filepath.Join(home, ".vigil"), nil
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// StateFilePath returns the configured observation file, defaulting to
// state.json next to the config file.
func (c *Config) StateFilePath() (string, error) {
	if c.Monitor.StateFile != "" {
		return expandTilde(c.Monitor.StateFile), nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

// HistoryPath returns the journal database path.
func HistoryPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// LogDir returns the directory for structured logs.
func LogDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// Load reads the config file. A missing file yields the zero Config,
// whose getters apply every default; a malformed file is an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config.toml parse error: %w", err)
	}
	return &cfg, nil
}

// Save writes the config using the atomic write pattern: temp file with
// 0600 permissions, fsync, then rename over the target.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes the config to an explicit path.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# Vigil Configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	// Atomic rename still provides some safety without the fsync.
	_ = syncFile(tmpPath)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: finalize save: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func expandTilde(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

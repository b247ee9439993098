// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

// Package config reads and writes the TOML configuration file driving the
// CLI and the sync daemon.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration for shelflife.
type Config struct {
	UserID    string     `toml:"user_id"`
	LocalDB   string     `toml:"local_db"`
	RemoteDSN string     `toml:"remote_dsn"`
	Sync      SyncConfig `toml:"sync"`
	Log       LogConfig  `toml:"log"`
}

// SyncConfig tunes the background sync scheduler.
type SyncConfig struct {
	IntervalSeconds int `toml:"interval_seconds"` // fixed cycle period
	DebounceMillis  int `toml:"debounce_millis"`  // quiet window after local edits
	ProbeSeconds    int `toml:"probe_seconds"`    // connectivity probe period
}

// LogConfig controls the daemon's rotating log file.
type LogConfig struct {
	File       string `toml:"file"`
	Level      string `toml:"level"` // debug, info, warn, error
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// New creates a Config with defaults rooted at baseDir.
func New(userID, baseDir string) *Config {
	return &Config{
		UserID:    userID,
		LocalDB:   filepath.Join(baseDir, "shelflife.db"),
		RemoteDSN: "postgres://localhost:5432/shelflife",
		Sync: SyncConfig{
			IntervalSeconds: 30,
			DebounceMillis:  2000,
			ProbeSeconds:    15,
		},
		Log: LogConfig{
			File:       filepath.Join(baseDir, "log", "shelflife.log"),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Interval returns the scheduler cycle period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// Debounce returns the post-mutation quiet window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Sync.DebounceMillis) * time.Millisecond
}

// ProbeInterval returns how often the daemon pings the remote store.
func (c *Config) ProbeInterval() time.Duration {
	if c.Sync.ProbeSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Sync.ProbeSeconds) * time.Second
}

// LogLevel maps the configured level name to a slog level, defaulting to
// info for unknown names.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Read decodes a Config from r.
func Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a fresh config file at path, refusing to overwrite one that
// already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// DefaultPath returns the config file location under the user's home
// directory, along with the base data directory.
func DefaultPath() (configPath, baseDir string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	baseDir = filepath.Join(home, ".shelflife")
	return filepath.Join(baseDir, "config.toml"), baseDir, nil
}

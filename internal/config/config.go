// Package config resolves the engine tuning defaults (max pending IO
// operations, progress reporting interval, minimum hole run length)
// from a config.toml file, with flag and environment overrides taking
// precedence over it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents ~/.sparsectl/config.toml.
type Config struct {
	MaxPending              int    `toml:"max_pending,omitempty" json:"max_pending"`
	ProgressIntervalSeconds int    `toml:"progress_interval_seconds,omitempty" json:"progress_interval_seconds"`
	MinRunClusters          uint64 `toml:"min_run_clusters,omitempty" json:"min_run_clusters"`
	DefaultClusterSize      uint32 `toml:"default_cluster_size,omitempty" json:"default_cluster_size"`
}

// Defaults are substituted for any field left zero after Load.
var Defaults = Config{
	MaxPending:              32,
	ProgressIntervalSeconds: 10,
	MinRunClusters:          1,
	DefaultClusterSize:      4096,
}

// configDirOverride is set from the --config-dir flag via SetConfigDir.
var configDirOverride string

// SetConfigDir allows the CLI to pass in the --config-dir value; an
// empty dir clears the override.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// SparsectlHome returns the config directory path.
// Precedence: --config-dir flag / SetConfigDir > SPARSECTL_HOME env > ~/.sparsectl
func SparsectlHome() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("SPARSECTL_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".sparsectl")
	}
	return filepath.Join(home, ".sparsectl")
}

// ConfigPath returns the full path to config.toml.
func ConfigPath() string {
	return filepath.Join(SparsectlHome(), "config.toml")
}

// EnsureDir creates the sparsectl home directory if it does not exist.
func EnsureDir() error {
	return os.MkdirAll(SparsectlHome(), 0o755)
}

// Load reads config.toml, applying Defaults for any field left at its
// zero value. If the file does not exist, Load returns Defaults.
func Load() (*Config, error) {
	cfg := Defaults
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", ConfigPath(), err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", ConfigPath(), err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxPending == 0 {
		cfg.MaxPending = Defaults.MaxPending
	}
	if cfg.ProgressIntervalSeconds == 0 {
		cfg.ProgressIntervalSeconds = Defaults.ProgressIntervalSeconds
	}
	if cfg.MinRunClusters == 0 {
		cfg.MinRunClusters = Defaults.MinRunClusters
	}
	if cfg.DefaultClusterSize == 0 {
		cfg.DefaultClusterSize = Defaults.DefaultClusterSize
	}
}

// Save writes cfg back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("config: creating %s: %w", SparsectlHome(), err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// validKeys lists the keys usable with Get/Set.
var validKeys = map[string]bool{
	"max_pending":               true,
	"progress_interval_seconds": true,
	"min_run_clusters":          true,
	"default_cluster_size":      true,
}

// Get retrieves a single config value by key.
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("config: unknown key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return getField(cfg, key), nil
}

// Set sets a single config value by key and persists it.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("config: unknown key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	if err := setField(cfg, key, value); err != nil {
		return err
	}
	return Save(cfg)
}

func getField(cfg *Config, key string) string {
	switch key {
	case "max_pending":
		return strconv.Itoa(cfg.MaxPending)
	case "progress_interval_seconds":
		return strconv.Itoa(cfg.ProgressIntervalSeconds)
	case "min_run_clusters":
		return strconv.FormatUint(cfg.MinRunClusters, 10)
	case "default_cluster_size":
		return strconv.FormatUint(uint64(cfg.DefaultClusterSize), 10)
	default:
		return ""
	}
}

func setField(cfg *Config, key, value string) error {
	switch key {
	case "max_pending":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: max_pending must be an integer: %w", err)
		}
		cfg.MaxPending = n
	case "progress_interval_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: progress_interval_seconds must be an integer: %w", err)
		}
		cfg.ProgressIntervalSeconds = n
	case "min_run_clusters":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("config: min_run_clusters must be an unsigned integer: %w", err)
		}
		cfg.MinRunClusters = n
	case "default_cluster_size":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("config: default_cluster_size must be an unsigned integer: %w", err)
		}
		cfg.DefaultClusterSize = uint32(n)
	default:
		return fmt.Errorf("config: unknown key: %s", key)
	}
	return nil
}

// Package config loads landing-lab settings from TOML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	Experiments ExperimentsConfig `toml:"experiments"`
	Patterns    PatternsConfig    `toml:"patterns"`
	Log         LogConfig         `toml:"log"`
}

type StorageConfig struct {
	DBPath         string `toml:"db_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ServerConfig struct {
	Port           int    `toml:"port"`
	TokenFile      string `toml:"token_file"`
	WatchCatalogue bool   `toml:"watch_catalogue"`
}

// ExperimentsConfig holds defaults for definitions that leave them unset.
type ExperimentsConfig struct {
	MinSampleSize   int     `toml:"min_sample_size"`
	ConfidenceLevel float64 `toml:"confidence_level"`
}

type PatternsConfig struct {
	Catalogue       string  `toml:"catalogue"`
	ProductionOnly  bool    `toml:"production_only"`
	TopPairs        int     `toml:"top_pairs"`
	TripleThreshold float64 `toml:"triple_threshold"`
	Limit           int     `toml:"limit"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			DBPath:         "./llab.db",
			TimeoutSeconds: 5,
		},
		Server: ServerConfig{
			Port:           8080,
			TokenFile:      ".llab.token",
			WatchCatalogue: true,
		},
		Experiments: ExperimentsConfig{
			MinSampleSize:   500,
			ConfidenceLevel: 0.95,
		},
		Patterns: PatternsConfig{
			Catalogue:       "./patterns.json",
			ProductionOnly:  true,
			TopPairs:        5,
			TripleThreshold: 10,
			Limit:           10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path when given, otherwise the first config found on the
// standard search path, then applies LL_* environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		for _, p := range configPaths() {
			if _, err := os.Stat(p); err == nil {
				if _, err := toml.DecodeFile(p, &cfg); err != nil {
					return cfg, fmt.Errorf("parse config %s: %w", p, err)
				}
				break
			}
		}
	}

	cfg.applyEnv()

	cfg.Storage.DBPath = expandHome(cfg.Storage.DBPath)
	cfg.Server.TokenFile = expandHome(cfg.Server.TokenFile)
	cfg.Patterns.Catalogue = expandHome(cfg.Patterns.Catalogue)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.DBPath = getEnvOrDefault("LL_DB_PATH", c.Storage.DBPath)
	c.Patterns.Catalogue = getEnvOrDefault("LL_CATALOGUE", c.Patterns.Catalogue)
	c.Log.Level = getEnvOrDefault("LL_LOG_LEVEL", c.Log.Level)
	if p, err := strconv.Atoi(os.Getenv("LL_PORT")); err == nil {
		c.Server.Port = p
	}
}

func (c Config) Validate() error {
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Experiments.MinSampleSize < 0 {
		return fmt.Errorf("experiments.min_sample_size must not be negative")
	}
	if c.Experiments.ConfidenceLevel <= 0 || c.Experiments.ConfidenceLevel >= 1 {
		return fmt.Errorf("experiments.confidence_level must be between 0 and 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// StorageTimeout bounds each storage call. Zero disables the bound.
func (c Config) StorageTimeout() time.Duration {
	return time.Duration(c.Storage.TimeoutSeconds) * time.Second
}

func configPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "landing-lab", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "landing-lab", "config.toml"))
	}

	return paths
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

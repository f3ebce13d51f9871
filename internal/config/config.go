// Package config loads monico's runtime configuration from a YAML file
// with MONICO_-prefixed environment variable overrides, following the
// layered file-then-env precedence of the teacher's internal/config
// package.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Scorpil/monico/internal/core"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration consumed by cmd/monico.
type Config struct {
	PostgresURI string `yaml:"postgres_uri"`
	SQLiteURI   string `yaml:"sqlite_uri"`
	TablePrefix string `yaml:"table_prefix"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	HealthAddr  string `yaml:"health_addr"`
}

var validate = validator.New()

// defaultSQLitePath matches the original implementation's default
// embedded-database location.
func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".monic", "monico.db")
}

// configFileLocations is searched in order when no explicit path is given.
func configFileLocations() []string {
	home, err := os.UserHomeDir()
	var homePath string
	if err == nil {
		homePath = filepath.Join(home, ".monico.yaml")
	}
	return []string{
		"/etc/monico/config.yaml",
		homePath,
		"./.monico.yaml",
	}
}

// Load reads the YAML config from path (or, if path is empty, the first
// of configFileLocations that exists), applies MONICO_-prefixed
// environment overrides, fills in backend defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:   "INFO",
		HealthAddr: ":9090",
	}

	candidate := path
	if candidate == "" {
		for _, loc := range configFileLocations() {
			if loc == "" {
				continue
			}
			if _, err := os.Stat(loc); err == nil {
				candidate = loc
				break
			}
		}
	}

	if candidate != "" {
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", candidate, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.PostgresURI != "" && cfg.SQLiteURI != "" {
		return nil, core.NewConfigurationError("at most one of POSTGRES_URI / SQLITE_URI may be set")
	}
	if cfg.PostgresURI == "" && cfg.SQLiteURI == "" {
		cfg.SQLiteURI = "sqlite://" + defaultSQLitePath()
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, core.NewConfigurationError("invalid configuration: %v", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONICO_POSTGRES_URI"); v != "" {
		cfg.PostgresURI = v
	}
	if v := os.Getenv("MONICO_SQLITE_URI"); v != "" {
		cfg.SQLiteURI = v
	}
	if v := os.Getenv("MONICO_TABLE_PREFIX"); v != "" {
		cfg.TablePrefix = v
	}
	if v := os.Getenv("MONICO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}
	if v := os.Getenv("MONICO_HEALTH_ADDR"); v != "" {
		cfg.HealthAddr = v
	}
}

// SlogLevel maps the configured level to a slog.Level. CRITICAL, which
// slog has no equivalent for, maps to Error; unknown values map to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

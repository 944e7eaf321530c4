// Package config loads server configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/pongladder/internal/logging"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config is the full server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	Type           string `yaml:"type"`
	FilePath       string `yaml:"file_path"`
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	DatabaseURL    string `yaml:"database_url"`
	SQLitePath     string `yaml:"sqlite_path"`
}

type AuthConfig struct {
	SessionDuration     time.Duration `yaml:"session_duration"`
	BcryptCost          int           `yaml:"bcrypt_cost"`
	UpgradeLegacyHashes bool          `yaml:"upgrade_legacy_hashes"`
}

type LedgerConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type:           StorageMemory,
			FilePath:       "data/ledger.json",
			RedisKeyPrefix: "pong",
			SQLitePath:     "data/pongladder.db",
		},
		Auth: AuthConfig{
			SessionDuration:     24 * time.Hour,
			BcryptCost:          10,
			UpgradeLegacyHashes: true,
		},
		Ledger: LedgerConfig{
			HistoryLimit: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration, reading the YAML file named by
// PONG_CONFIG if it is set, then applying environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("PONG_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Host, "PONG_HOST")
	if err := setInt(&c.Server.Port, "PONG_PORT"); err != nil {
		return err
	}

	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.FilePath, "PONG_DATA_FILE")
	setString(&c.Storage.RedisURL, "REDIS_URL")
	setString(&c.Storage.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	setString(&c.Storage.DatabaseURL, "DATABASE_URL")
	setString(&c.Storage.SQLitePath, "SQLITE_PATH")

	if v := strings.TrimSpace(os.Getenv("SESSION_DURATION")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_DURATION: %w", err)
		}
		c.Auth.SessionDuration = d
	}
	if err := setInt(&c.Auth.BcryptCost, "BCRYPT_COST"); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("UPGRADE_LEGACY_HASHES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UPGRADE_LEGACY_HASHES: %w", err)
		}
		c.Auth.UpgradeLegacyHashes = b
	}

	if err := setInt(&c.Ledger.HistoryLimit, "HISTORY_LIMIT"); err != nil {
		return err
	}

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	return nil
}

// Validate checks the listen and log settings and that the selected
// backend has what it needs
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Ledger.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("LOG_FORMAT: %w", err)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFile:
		if c.Storage.FilePath == "" {
			return errors.New("PONG_DATA_FILE required when STORAGE_TYPE=file")
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("REDIS_URL required when STORAGE_TYPE=redis")
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL required when STORAGE_TYPE=postgres")
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("SQLITE_PATH required when STORAGE_TYPE=sqlite")
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q", c.Storage.Type)
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/pongladder/internal/dependencies/clock"
	"github.com/mcoot/pongladder/internal/dependencies/random"
	"github.com/mcoot/pongladder/internal/services/auth"
	"github.com/mcoot/pongladder/internal/services/ledger"
	"github.com/mcoot/pongladder/internal/storage"
	filestorage "github.com/mcoot/pongladder/internal/storage/file"
	"github.com/mcoot/pongladder/internal/storage/memory"
	pgstorage "github.com/mcoot/pongladder/internal/storage/postgres"
	redisstorage "github.com/mcoot/pongladder/internal/storage/redis"
	sqlitestorage "github.com/mcoot/pongladder/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeFile     = "file"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Services
	AuthService   *auth.Service
	LedgerService *ledger.Service
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// LedgerConfig holds configuration for the ledger service (optional)
	LedgerConfig ledger.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend
	// If empty, defaults to "memory"
	StorageType string

	// Backend settings, required for the matching StorageType
	FileConfig     *filestorage.Config
	RedisConfig    *redisstorage.Config
	PostgresConfig *pgstorage.Config
	SQLiteConfig   *sqlitestorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	// Use default auth config if not provided
	authCfg := cfg.AuthConfig
	if authCfg == (auth.Config{}) {
		authCfg = auth.DefaultConfig()
	}

	app := newWithDependencies(store, clock.New(), random.New(), authCfg, cfg.LedgerConfig, logger)
	logger.Info("application wired", slog.String("storage", storageTypeOrDefault(cfg.StorageType)))
	return app, nil
}

func newStorage(cfg Config) (storage.Storage, error) {
	switch storageTypeOrDefault(cfg.StorageType) {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeFile:
		if cfg.FileConfig == nil {
			return nil, errors.New("FileConfig required when StorageType is file")
		}
		return filestorage.New(*cfg.FileConfig)
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return pgstorage.New(*cfg.PostgresConfig)
	case StorageTypeSQLite:
		if cfg.SQLiteConfig == nil {
			return nil, errors.New("SQLiteConfig required when StorageType is sqlite")
		}
		return sqlitestorage.New(*cfg.SQLiteConfig)
	}
	return nil, fmt.Errorf("invalid StorageType %q", cfg.StorageType)
}

func storageTypeOrDefault(t string) string {
	if t == "" {
		return StorageTypeMemory
	}
	return t
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, authCfg auth.Config, ledgerCfg ledger.Config, logger *slog.Logger) *App {
	return &App{
		Storage:       store,
		Clock:         clk,
		Random:        rnd,
		Logger:        logger,
		AuthService:   auth.New(store, clk, rnd, logger, authCfg),
		LedgerService: ledger.New(store, clk, logger, ledgerCfg),
	}
}

// Close releases the storage backend
func (a *App) Close() error {
	return a.Storage.Close()
}

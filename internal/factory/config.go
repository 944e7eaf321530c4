package factory

import (
	"log/slog"

	"github.com/mcoot/pongladder/internal/config"
	"github.com/mcoot/pongladder/internal/services/auth"
	"github.com/mcoot/pongladder/internal/services/ledger"
	filestorage "github.com/mcoot/pongladder/internal/storage/file"
	pgstorage "github.com/mcoot/pongladder/internal/storage/postgres"
	redisstorage "github.com/mcoot/pongladder/internal/storage/redis"
	sqlitestorage "github.com/mcoot/pongladder/internal/storage/sqlite"
)

// ConfigFrom translates loaded server configuration into a factory Config.
// Only the selected backend's settings are filled in.
func ConfigFrom(cfg *config.Config, logger *slog.Logger) Config {
	out := Config{
		AuthConfig: auth.Config{
			SessionDuration:     cfg.Auth.SessionDuration,
			BcryptCost:          cfg.Auth.BcryptCost,
			UpgradeLegacyHashes: cfg.Auth.UpgradeLegacyHashes,
		},
		LedgerConfig: ledger.Config{
			HistoryLimit: cfg.Ledger.HistoryLimit,
		},
		Logger:      logger,
		StorageType: cfg.Storage.Type,
	}

	switch cfg.Storage.Type {
	case StorageTypeFile:
		fileCfg := filestorage.DefaultConfig()
		fileCfg.Path = cfg.Storage.FilePath
		out.FileConfig = &fileCfg
	case StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Storage.RedisURL
		if cfg.Storage.RedisKeyPrefix != "" {
			redisCfg.KeyPrefix = cfg.Storage.RedisKeyPrefix
		}
		out.RedisConfig = &redisCfg
	case StorageTypePostgres:
		pgCfg := pgstorage.DefaultConfig()
		pgCfg.URL = cfg.Storage.DatabaseURL
		out.PostgresConfig = &pgCfg
	case StorageTypeSQLite:
		sqliteCfg := sqlitestorage.DefaultConfig()
		sqliteCfg.Path = cfg.Storage.SQLitePath
		out.SQLiteConfig = &sqliteCfg
	}

	return out
}

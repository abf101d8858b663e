// Package application opens the database, optional Redis and object storage
// backends, and the core service on top of them. The server and the
// operator CLI start the same way.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/core"
	"github.com/cocaresync/cocaresync/internal/storage"
)

// App holds the opened backends. Close releases them.
type App struct {
	Config  *config.Config
	Pool    *pgxpool.Pool
	Store   *core.PGStore
	Service *core.Service

	redis *redis.Client
}

// Open connects to PostgreSQL, applies the schema, and builds the service
// with the ID strategy and upload archiver the configuration selects.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Pool: pool, Store: core.NewPGStore(pool)}

	if err := app.Store.Migrate(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	ids, err := app.idAllocator(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Service = core.NewService(app.Store, core.Options{
		IDs:                  ids,
		Archiver:             openArchiver(ctx, cfg.Storage),
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		MaxImportWait:        cfg.Import.MaxWaitTime,
	})
	return app, nil
}

// Close releases every backend connection.
func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.Pool.Close()
}

// NewPool opens and pings a pgx pool sized from cfg.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to database", "name", databaseName(cfg.URL))
	return pool, nil
}

func databaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (a *App) idAllocator(ctx context.Context) (core.IDAllocator, error) {
	if a.Config.Import.IDStrategy != "redis" {
		return core.NewCountAllocator(a.Store, nil), nil
	}

	rdb, err := storage.NewRedisClient(ctx, a.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.redis = rdb
	slog.Info("patient ids allocated from redis", "key_prefix", a.Config.Redis.KeyPrefix)
	return storage.NewRedisAllocator(rdb, a.Config.Redis.KeyPrefix, a.Store, nil), nil
}

// openArchiver returns nil when archiving is disabled or the bucket cannot
// be reached; imports still run without it.
func openArchiver(ctx context.Context, cfg config.StorageConfig) core.UploadArchiver {
	if !cfg.Enabled {
		return nil
	}
	archiver, err := storage.NewMinioArchiver(cfg)
	if err == nil {
		err = archiver.EnsureBucket(ctx)
	}
	if err != nil {
		slog.Warn("upload archive disabled", "endpoint", cfg.Endpoint, "error", err)
		return nil
	}
	slog.Info("archiving uploads", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return archiver
}

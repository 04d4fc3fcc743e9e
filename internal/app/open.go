package app

import (
	"context"
	"fmt"

	"github.com/brandloom/storefront/internal/app/storage/postgres"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/database"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/platform/migrations"
)

// OpenStores connects to PostgreSQL when DATABASE_URL is set and applies
// migrations when enabled. Without a URL it returns zero Stores, which New
// fills with the in-memory implementation.
func OpenStores(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrateOnly bool) (Stores, func(), error) {
	noop := func() {}
	if cfg.Database.URL == "" {
		if migrateOnly {
			return Stores{}, noop, fmt.Errorf("DATABASE_URL is required to migrate")
		}
		logger.Warn("DATABASE_URL not set; data is kept in memory and lost on restart")
		return Stores{}, noop, nil
	}

	db, err := database.Open(ctx, database.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return Stores{}, noop, fmt.Errorf("open database: %w", err)
	}
	closeDB := func() { _ = db.Close() }

	if cfg.Database.AutoMigrate || migrateOnly {
		if err := migrations.Up(db.DB); err != nil {
			closeDB()
			return Stores{}, noop, fmt.Errorf("migrate: %w", err)
		}
		if version, dirty, err := migrations.Version(db.DB); err == nil {
			logger.WithField("version", version).WithField("dirty", dirty).Info("database schema ready")
		}
	}

	store := postgres.New(db)
	return Stores{
		Users:     store,
		Brands:    store,
		Catalog:   store,
		Orders:    store,
		Content:   store,
		Support:   store,
		Marketing: store,
	}, closeDB, nil
}

// OpenKV returns Redis when REDIS_URL is set and an in-process cache
// otherwise.
func OpenKV(ctx context.Context, cfg *config.Config, logger *logging.Logger) (cache.KV, error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set; caching in process")
		return cache.NewLocalKV(cfg.Redis.LocalCapacity), nil
	}
	kv, err := cache.NewRedisKV(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return kv, nil
}

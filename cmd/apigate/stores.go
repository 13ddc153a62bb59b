package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"

	"github.com/platinummonkey/apigate/pkg/config"
	"github.com/platinummonkey/apigate/pkg/observability"
	"github.com/platinummonkey/apigate/pkg/throttle"
)

// backends holds the throttle counter store and its connections. Only the
// connection of the configured store is set.
type backends struct {
	store   throttle.Store
	db      *sql.DB
	redis   *redis.Client
	sweeper *throttle.Sweeper
}

func openBackends(ctx context.Context, cfg config.RateLimitConfig, logger *observability.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.Store {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		b.redis = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := b.redis.Ping(pingCtx).Err(); err != nil {
			_ = b.redis.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.store = throttle.NewRedisStore(b.redis, cfg.RedisPrefix)
		logger.Infof("Using redis rate limit store at %s", opts.Addr)

	case "postgres":
		db, err := connectDatabase(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		b.db = db

		store := throttle.NewSQLStore(db, cfg.PostgresTable)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate counter table: %w", err)
		}
		b.store = store
		if b.sweeper, err = throttle.NewSweeper(cfg.SweepSchedule, store, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("Using postgres rate limit store")

	default:
		store := throttle.NewMemoryStore()
		b.store = store
		var err error
		if b.sweeper, err = throttle.NewSweeper(cfg.SweepSchedule, store, logger); err != nil {
			return nil, err
		}
		logger.Info("Using in-memory rate limit store")
	}

	if b.sweeper != nil {
		b.sweeper.Start()
	}
	return b, nil
}

func connectDatabase(ctx context.Context, connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Close stops the sweeper and closes the store connection
func (b *backends) Close(ctx context.Context) error {
	var result *multierror.Error

	if b.sweeper != nil {
		select {
		case <-b.sweeper.Stop().Done():
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("counter sweep still running: %w", ctx.Err()))
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("redis: %w", err))
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("postgres: %w", err))
		}
	}
	return result.ErrorOrNil()
}

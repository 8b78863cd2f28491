package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/internal/config"
)

// Open builds the backend selected by cfg and wraps it in a Store.
func Open(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (*Store, error) {
	switch config.MemoryBackend(strings.ToLower(string(cfg.Backend))) {
	case config.BackendInMemory, "":
		return New(NewMemoryBackend(), logger), nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		backend, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := backend.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return New(backend, logger), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		backend, err := NewRedis(ctx, client, cfg.Redis.KeyPrefix, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return New(backend, logger), nil

	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

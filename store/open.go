package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/db"
)

// Open builds the backend selected by cfg and wraps it in a Store.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	var b Backend
	switch cfg.Backend {
	case "", "file":
		fb, err := NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		b = fb
	case "postgres":
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return nil, err
		}
		pb, err := NewPostgresBackend(ctx, database)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		b = pb
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b = NewRedisBackend(client, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	slog.Info("document store opened", slog.String("backend", cfg.Backend))
	return New(b), nil
}

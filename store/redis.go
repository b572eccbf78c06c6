package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each document as a hash {body, version} under
// prefix+name and swaps it inside a WATCH transaction.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps client. Keys are namespaced with prefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(name string) string { return r.prefix + name }

func (r *RedisBackend) Load(ctx context.Context, name string) ([]byte, int64, error) {
	vals, err := r.client.HMGet(ctx, r.key(name), "body", "version").Result()
	if err != nil {
		return nil, 0, err
	}
	body, ok := vals[0].(string)
	if !ok {
		return nil, 0, nil
	}
	var version int64
	if v, ok := vals[1].(string); ok {
		version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, 0, err
		}
	}
	return []byte(body), version, nil
}

func (r *RedisBackend) Swap(ctx context.Context, name string, data []byte, expect int64) (int64, error) {
	key := r.key(name)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expect {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "body", data, "version", expect+1)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	return expect + 1, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisBackend) Close() error { return r.client.Close() }

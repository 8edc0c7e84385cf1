package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient implements Client on a shared redis instance.
type redisClient struct {
	prefix string
	rdb    *redis.Client
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(cfg Config) (Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &redisClient{prefix: cfg.Prefix, rdb: rdb}, nil
}

func (r *redisClient) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisClient) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

func (r *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisClient) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *redisClient) Close() error { return r.rdb.Close() }

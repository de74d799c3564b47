package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hla-metadata-dictionary/internal/domain"
)

const defaultKeyPrefix = "hla-metadata"

// RedisTier stores encoded metadata in Redis. Entries have no TTL: values are
// immutable for their nomenclature version and the version is part of the key.
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier wraps an existing client.
func NewRedisTier(client *redis.Client, prefix string) *RedisTier {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisTier{client: client, prefix: prefix}
}

// DialRedis parses the URL, applies pool settings and checks the connection.
func DialRedis(ctx context.Context, config domain.CacheConfig) (*RedisTier, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTier(client, config.KeyPrefix), nil
}

// Get returns the stored bytes; found is false on a miss.
func (r *RedisTier) Get(ctx context.Context, key Key) (data []byte, found bool, err error) {
	data, err = r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores the bytes without expiry.
func (r *RedisTier) Set(ctx context.Context, key Key, data []byte) error {
	if err := r.client.Set(ctx, r.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Ping checks if the Redis connection is alive.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisTier) Close() error {
	return r.client.Close()
}

func (r *RedisTier) redisKey(key Key) string {
	return r.prefix + ":" + key.String()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores generated quizzes and protocols in Redis
type RedisCache struct {
	BaseProvider
	client *redis.Client
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("connected to redis", "address", cfg.Address, "db", cfg.DB)

	return NewRedisCacheFromClient(client), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		BaseProvider: BaseProvider{serviceType: "redis"},
		client:       client,
	}
}

// Get returns the cached value for key; a missing key is not an error
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key with the given TTL (0 means no expiry)
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Purge removes all keys matching pattern and returns how many were deleted
func (c *RedisCache) Purge(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	var keysDeleted int

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return keysDeleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("failed to delete some keys", "error", err)
			} else {
				keysDeleted += len(keys)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("generation cache purged", "pattern", pattern, "keys_deleted", keysDeleted)
	return keysDeleted, nil
}

// HealthCheck verifies Redis connectivity
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

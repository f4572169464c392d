// Package cache stores finished prediction records in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/models"
)

const keyPrefix = "scorepulse:prediction:"

// Client is the subset of the Redis API the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis is a prediction cache with a fixed TTL per entry.
type Redis struct {
	client Client
	ttl    time.Duration
	close  func() error
}

// Open connects to the configured Redis server and verifies it with a ping.
func Open(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	c := New(rdb, cfg.TTL)
	c.close = rdb.Close
	return c, nil
}

// New wraps an existing client.
func New(client Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Get returns the cached record for key. A miss is (nil, false, nil).
func (r *Redis) Get(ctx context.Context, key string) (*models.Prediction, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}
	var p models.Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached prediction: %w", err)
	}
	return &p, true, nil
}

// Set stores a record under key for the cache TTL.
func (r *Redis) Set(ctx context.Context, key string, p *models.Prediction) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Close releases the connection opened by Open.
func (r *Redis) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

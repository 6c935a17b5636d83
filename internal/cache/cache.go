// Package cache stores per-user derived views and invalidates them when the
// underlying activities change.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Invalidator drops cached views for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// Redis caches JSON encoded values per user with a TTL.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis constructs a Redis cache. Keys are stored as prefix+userID.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Get decodes the cached value for userID into dest. It reports false on a miss.
func (c *Redis) Get(ctx context.Context, userID string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value for userID.
func (c *Redis) Set(ctx context.Context, userID string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.SetEx(ctx, c.prefix+userID, raw, c.ttl).Err()
}

// Invalidate implements Invalidator.
func (c *Redis) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, c.prefix+userID).Err()
}

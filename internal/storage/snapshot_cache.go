package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultOpTimeout bounds every cache call so a hung Redis cannot stall a refresh
const defaultOpTimeout = 500 * time.Millisecond

// SnapshotCache is the distributed cache for serialized snapshots.
// A missing key is reported as a miss, never as an error.
type SnapshotCache struct {
	redis     *RedisCache
	opTimeout time.Duration
}

// NewSnapshotCache creates a snapshot cache on top of Redis
func NewSnapshotCache(redis *RedisCache) *SnapshotCache {
	return &SnapshotCache{
		redis:     redis,
		opTimeout: defaultOpTimeout,
	}
}

// Get returns the cached bytes and whether the key was present
func (c *SnapshotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := c.redis.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key for ttl
func (c *SnapshotCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.redis.Set(ctx, key, value, ttl)
}

// Delete removes key. Deleting a missing key is not an error.
func (c *SnapshotCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.redis.Del(ctx, key)
}

// IsAvailable reports whether Redis answers a ping
func (c *SnapshotCache) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.redis.Ping(ctx) == nil
}

// Package cache provides the Redis-backed snapshot cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/domain/valuation"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// CompressThreshold is the payload size above which values are zstd-compressed.
	CompressThreshold int
	Prefix            string
}

// SnapshotCache stores snapshots in Redis. Keys embed ledger revisions, so
// entries are never invalidated explicitly; the TTL only bounds memory.
type SnapshotCache struct {
	client *redis.Client
	codec  *Codec
	ttl    time.Duration
	prefix string
}

var _ valuation.SnapshotCache = (*SnapshotCache)(nil)

// NewSnapshotCache connects to Redis.
func NewSnapshotCache(cfg Config) (*SnapshotCache, error) {
	codec, err := NewCodec(cfg.CompressThreshold)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "stockledger"
	}
	return &SnapshotCache{client: client, codec: codec, ttl: cfg.TTL, prefix: cfg.Prefix}, nil
}

func (c *SnapshotCache) key(k valuation.CacheKey) string {
	return c.prefix + ":" + k.String()
}

// Get implements valuation.SnapshotCache.
func (c *SnapshotCache) Get(ctx context.Context, k valuation.CacheKey) (valuation.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return valuation.Snapshot{}, false, nil
	}
	if err != nil {
		return valuation.Snapshot{}, false, fmt.Errorf("redis get: %w", err)
	}

	var snap valuation.Snapshot
	if err := c.codec.Unmarshal(data, &snap); err != nil {
		return valuation.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Set implements valuation.SnapshotCache.
func (c *SnapshotCache) Set(ctx context.Context, k valuation.CacheKey, snap valuation.Snapshot) error {
	data, err := c.codec.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(k), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity; used by the readiness probe.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *SnapshotCache) Close() error {
	c.codec.Close()
	return c.client.Close()
}

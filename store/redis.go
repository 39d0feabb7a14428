package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedStore is the L2 tier: a TTL-capable remote KV backed by
// Redis, grounded on the gateway's redisclient wiring and on the
// TieredCache L2 contract from the pack (Get/Set/Delete returning absent
// on miss or expiry, no scan API).
type DistributedStore struct {
	c *redis.Client
}

// NewDistributedStore wraps a *redis.Client as the L2 store.
func NewDistributedStore(c *redis.Client) *DistributedStore {
	return &DistributedStore{c: c}
}

func (d *DistributedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := d.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set honors ttl as an absolute expiry. Sliding expiration is an L1-only
// concept and is ignored here.
func (d *DistributedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, _ bool) error {
	return d.c.Set(ctx, key, value, ttl).Err()
}

func (d *DistributedStore) Remove(ctx context.Context, key string) error {
	return d.c.Del(ctx, key).Err()
}

// Package store defines the byte-addressed KV contract the composite
// orchestrator is polymorphic over and provides the two concrete
// collaborators: an in-process L1 MemoryStore and a Redis-backed L2
// DistributedStore.
//
// A single interface suffices for both tiers — L1 vs L2 is a matter of
// which implementation is wired at composition time, not a distinct type.
package store

import (
	"context"
	"time"
)

// Store is the capability set {Get, Set, Remove} the orchestrator needs
// from any cache tier. Implementations apply TTL independently and are
// not expected to offer atomicity across keys.
type Store interface {
	// Get returns the stored bytes, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. A zero ttl means "no expiration" for
	// stores that support it; callers in this module always pass a
	// positive ttl (storage TTL = ttl + fail_safe_max_duration).
	// sliding, when true, refreshes the TTL on every successful Get.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, sliding bool) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alfreddev/cachify/clock"
)

func TestMemoryStoreSetGetRoundTrip(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	s := NewMemoryStore(0, mc)
	ctx := context.Background()

	if err := s.Set(ctx, "a", []byte("v"), time.Minute, false); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(v) != "v" {
		t.Fatalf("expected v, got %q", v)
	}
}

func TestMemoryStoreExpiresAfterTTL(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	s := NewMemoryStore(0, mc)
	ctx := context.Background()

	if err := s.Set(ctx, "a", []byte("v"), time.Second, false); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mc.Advance(2 * time.Second)
	_, ok, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected miss after expiration")
	}
}

func TestMemoryStoreSlidingExpirationRefreshesOnGet(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	s := NewMemoryStore(0, mc)
	ctx := context.Background()

	if err := s.Set(ctx, "a", []byte("v"), 2*time.Second, true); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mc.Advance(time.Second)
	if _, ok, _ := s.Get(ctx, "a"); !ok {
		t.Fatalf("expected hit before ttl elapses")
	}

	// Sliding should have pushed the deadline out by another 2s from t=1.
	mc.Advance(1500 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "a"); !ok {
		t.Fatalf("expected sliding expiration to keep entry alive at t=2.5")
	}
}

func TestMemoryStoreLRUEvictsLeastRecentlyUsed(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	s := NewMemoryStore(2, mc)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Minute, false)
	_ = s.Set(ctx, "b", []byte("2"), time.Minute, false)
	// touch "a" so "b" becomes least recently used
	_, _, _ = s.Get(ctx, "a")
	_ = s.Set(ctx, "c", []byte("3"), time.Minute, false)

	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Fatalf("expected b to be evicted as least recently used")
	}
	if _, ok, _ := s.Get(ctx, "a"); !ok {
		t.Fatalf("expected a to survive eviction")
	}
	if _, ok, _ := s.Get(ctx, "c"); !ok {
		t.Fatalf("expected c to survive eviction")
	}
}

func TestMemoryStoreRemove(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	s := NewMemoryStore(0, mc)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("v"), time.Minute, false)
	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("expected miss after remove")
	}
	// Removing an absent key is not an error.
	if err := s.Remove(ctx, "missing"); err != nil {
		t.Fatalf("expected no error removing absent key, got %v", err)
	}
}

func TestMemoryStoreFlush(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	s := NewMemoryStore(0, mc)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Minute, false)
	_ = s.Set(ctx, "b", []byte("2"), time.Minute, false)

	n, err := s.Flush(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries flushed, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store after flush, got len=%d", s.Len())
	}
}

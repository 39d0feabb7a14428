package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfreddev/cachify/clock"
	"github.com/alfreddev/cachify/store"
	"github.com/rs/zerolog"
)

func newTestFacade(t *testing.T, mc *clock.Manual, opts FacadeOptions) *Facade {
	t.Helper()
	l1 := store.NewMemoryStore(0, mc)
	l2 := store.NewMemoryStore(0, mc)
	return New(l1, l2, opts, zerolog.Nop(), WithClock(mc))
}

func TestFacadeGetMissOnEmptyStore(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())

	res, err := f.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected miss, got %+v", res)
	}
}

func TestFacadeSetThenGetFresh(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())
	ctx := context.Background()

	if err := f.Set(ctx, "k1", []byte("v1"), nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	res, err := f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || string(res.Value) != "v1" {
		t.Fatalf("expected fresh hit v1, got %+v", res)
	}
	if res.Stale {
		t.Fatalf("expected fresh result, got stale")
	}
}

func TestFacadeGetGoesStaleThenMissAfterFailSafeWindow(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	opts := DefaultFacadeOptions()
	opts.DefaultTTL = 10 * time.Second
	opts.Resilience.FailSafeMaxDuration = 5 * time.Second
	f := newTestFacade(t, mc, opts)
	ctx := context.Background()

	if err := f.Set(ctx, "k1", []byte("v1"), nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mc.Advance(11 * time.Second)
	res, err := f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || !res.Stale {
		t.Fatalf("expected stale result at t=11, got %+v", res)
	}

	mc.Advance(10 * time.Second)
	res, err = f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected miss once past fail-safe window, got %+v", res)
	}
}

func TestFacadeSetTTLZeroIsImmediateExpiration(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())
	ctx := context.Background()

	zero := time.Duration(0)
	if err := f.Set(ctx, "k1", []byte("v1"), &EntryOptions{TTL: &zero}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mc.Advance(time.Millisecond)
	res, err := f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected immediate miss for ttl=0, got %+v", res)
	}
}

func TestFacadeRemoveClearsBothTiers(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())
	ctx := context.Background()

	if err := f.Set(ctx, "k1", []byte("v1"), nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := f.Remove(ctx, "k1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	res, err := f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected miss after remove, got %+v", res)
	}
}

func TestFacadeGetOrSetCallsFactoryOnMiss(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	res, err := f.GetOrSet(ctx, "k1", factory, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || string(res.Value) != "computed" {
		t.Fatalf("expected computed value, got %+v", res)
	}
	if calls != 1 {
		t.Fatalf("expected factory called once, got %d", calls)
	}

	// Second call should hit the now-populated cache, not the factory.
	res, err = f.GetOrSet(ctx, "k1", factory, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || string(res.Value) != "computed" {
		t.Fatalf("expected cached value on second call, got %+v", res)
	}
	if calls != 1 {
		t.Fatalf("expected factory not called again, got %d calls", calls)
	}
}

func TestFacadeGetOrSetNotFoundSetsNegativeTombstone(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) ([]byte, error) {
		calls++
		return nil, ErrNotFound
	}

	_, err := f.GetOrSet(ctx, "missing", factory, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Second call within the negative TTL window must not re-invoke factory.
	_, err = f.GetOrSet(ctx, "missing", factory, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second call, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected factory invoked once (tombstoned), got %d calls", calls)
	}
}

func TestFacadeGetOrSetHardTimeoutWithNoStaleFallbackPropagatesError(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	opts := DefaultFacadeOptions()
	opts.Resilience.HardTimeout = 2 * time.Second
	f := newTestFacade(t, mc, opts)
	ctx := context.Background()

	entered := make(chan struct{})
	block := make(chan struct{})
	factory := func(ctx context.Context) ([]byte, error) {
		close(entered)
		<-ctx.Done()
		close(block)
		return nil, ctx.Err()
	}

	// Advance the manual clock past the hard timeout once the factory is
	// running, mirroring the spec's scenario 3 ("advance 3s" fires the
	// deadline via the injected clock rather than the wall clock).
	go func() {
		<-entered
		mc.Advance(3 * time.Second)
	}()

	_, err := f.GetOrSet(ctx, "k1", factory, nil)
	if err == nil {
		t.Fatalf("expected hard-timeout error, got nil")
	}
	<-block
}

func TestFacadeFlushAllClearsL1Only(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	f := newTestFacade(t, mc, DefaultFacadeOptions())
	ctx := context.Background()

	if err := f.Set(ctx, "k1", []byte("v1"), nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	n, err := f.FlushAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected at least one entry flushed (payload+metadata), got %d", n)
	}

	// L2 still holds the entry, so a Get after flushing L1 still hits (on L2).
	res, getErr := f.Get(ctx, "k1")
	if getErr != nil {
		t.Fatalf("unexpected error: %v", getErr)
	}
	if res == nil || string(res.Value) != "v1" {
		t.Fatalf("expected L2 to still serve the value after L1 flush, got %+v", res)
	}
}

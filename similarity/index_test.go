package similarity

import (
	"testing"
	"time"

	"github.com/alfreddev/cachify/clock"
)

func TestIndexAddOrUpdateThenGetCandidatesFindsMatch(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	idx := NewIndex(0, 0, mc)

	sig := Sign("please summarize this report", 0)
	idx.AddOrUpdate(Entry{Key: "k1", Signature: sig.Value, TokenCount: sig.TokenCount, CachedAt: mc.Now()})

	candidates := idx.GetCandidates(sig.Value, 0)
	if len(candidates) != 1 || candidates[0].Key != "k1" {
		t.Fatalf("expected to find k1 as a candidate, got %+v", candidates)
	}
}

func TestIndexGetCandidatesEvictsEntriesOlderThanMaxAge(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	idx := NewIndex(0, 5*time.Second, mc)

	sig := Sign("aging entry", 0)
	idx.AddOrUpdate(Entry{Key: "k1", Signature: sig.Value, CachedAt: mc.Now()})

	mc.Advance(10 * time.Second)
	candidates := idx.GetCandidates(sig.Value, 0)
	if len(candidates) != 0 {
		t.Fatalf("expected stale entry excluded from candidates, got %+v", candidates)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected stale entry evicted from index, got len=%d", idx.Len())
	}
}

func TestIndexCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	idx := NewIndex(2, 0, mc)

	idx.AddOrUpdate(Entry{Key: "a", Signature: 1, CachedAt: mc.Now()})
	// b and c share no 16-bit band with a's signature, so probing with 1
	// below can only ever find 'a'.
	idx.AddOrUpdate(Entry{Key: "b", Signature: 0x0002000200020002, CachedAt: mc.Now()})
	idx.AddOrUpdate(Entry{Key: "c", Signature: 0x0003000300030003, CachedAt: mc.Now()})

	if idx.Len() != 2 {
		t.Fatalf("expected capacity-bounded index to hold 2 entries, got %d", idx.Len())
	}
	candidates := idx.GetCandidates(1, 0)
	if len(candidates) != 0 {
		t.Fatalf("expected oldest entry 'a' evicted, but it was still found")
	}
}

func TestIndexRemove(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	idx := NewIndex(0, 0, mc)

	idx.AddOrUpdate(Entry{Key: "a", Signature: 42, CachedAt: mc.Now()})
	idx.Remove("a")

	if idx.Len() != 0 {
		t.Fatalf("expected index empty after remove, got len=%d", idx.Len())
	}
	if candidates := idx.GetCandidates(42, 0); len(candidates) != 0 {
		t.Fatalf("expected no candidates after remove, got %+v", candidates)
	}
}

package similarity

import (
	"container/list"
	"sync"
	"time"

	"github.com/alfreddev/cachify/clock"
)

// Entry is one similarity-index record.
type Entry struct {
	Key        string
	Signature  uint64
	TokenCount int
	HashPrefix uint64
	CachedAt   time.Time
	Embedding  []float32
}

// Index is the in-memory, fixed-capacity, LSH-banded LRU candidate index.
// A single coarse lock is adequate since operations touch O(4) buckets
// and one LRU node.
type Index struct {
	mu          sync.Mutex
	capacity    int
	maxEntryAge time.Duration
	clock       clock.Clock

	nodes   map[string]*indexNode
	buckets [4]map[uint16]map[string]struct{}
	order   *list.List // front = most recently used; element.Value = key
}

type indexNode struct {
	entry Entry
	el    *list.Element
}

// NewIndex constructs an empty index. capacity <= 0 means unbounded.
func NewIndex(capacity int, maxEntryAge time.Duration, c clock.Clock) *Index {
	if c == nil {
		c = clock.Real{}
	}
	idx := &Index{
		capacity:    capacity,
		maxEntryAge: maxEntryAge,
		clock:       c,
		nodes:       make(map[string]*indexNode),
		order:       list.New(),
	}
	for i := range idx.buckets {
		idx.buckets[i] = make(map[uint16]map[string]struct{})
	}
	return idx
}

// bands splits a 64-bit signature into four 16-bit LSH bands.
func bands(sig uint64) [4]uint16 {
	return [4]uint16{
		uint16(sig),
		uint16(sig >> 16),
		uint16(sig >> 32),
		uint16(sig >> 48),
	}
}

// AddOrUpdate inserts or replaces e, moving it to the front of the LRU and
// evicting the tail if over capacity.
func (idx *Index) AddOrUpdate(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.nodes[e.Key]; ok {
		idx.unbucketLocked(e.Key, existing.entry.Signature)
		idx.order.Remove(existing.el)
	}

	idx.bucketLocked(e.Key, e.Signature)
	el := idx.order.PushFront(e.Key)
	idx.nodes[e.Key] = &indexNode{entry: e, el: el}

	if idx.capacity > 0 {
		for len(idx.nodes) > idx.capacity {
			tail := idx.order.Back()
			if tail == nil {
				break
			}
			idx.removeLocked(tail.Value.(string))
		}
	}
}

// GetCandidates unions the entries in the buckets matching signature's
// four bands, dropping (and evicting) any candidate older than
// max_entry_age, and stops at max.
func (idx *Index) GetCandidates(signature uint64, max int) []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := idx.clock.Now()
	seen := make(map[string]struct{})
	var stale []string
	var out []Entry

	for i, band := range bands(signature) {
		for key := range idx.buckets[i][band] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			n, ok := idx.nodes[key]
			if !ok {
				continue
			}
			if idx.maxEntryAge > 0 && now.Sub(n.entry.CachedAt) > idx.maxEntryAge {
				stale = append(stale, key)
				continue
			}
			out = append(out, n.entry)
			if max > 0 && len(out) >= max {
				idx.evictAll(stale)
				return out
			}
		}
	}
	idx.evictAll(stale)
	return out
}

func (idx *Index) evictAll(keys []string) {
	for _, k := range keys {
		idx.removeLocked(k)
	}
}

// Remove evicts key from every bucket and the LRU.
func (idx *Index) Remove(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(key)
}

func (idx *Index) removeLocked(key string) {
	n, ok := idx.nodes[key]
	if !ok {
		return
	}
	idx.unbucketLocked(key, n.entry.Signature)
	idx.order.Remove(n.el)
	delete(idx.nodes, key)
}

func (idx *Index) bucketLocked(key string, sig uint64) {
	for i, band := range bands(sig) {
		if idx.buckets[i][band] == nil {
			idx.buckets[i][band] = make(map[string]struct{})
		}
		idx.buckets[i][band][key] = struct{}{}
	}
}

func (idx *Index) unbucketLocked(key string, sig uint64) {
	for i, band := range bands(sig) {
		if set, ok := idx.buckets[i][band]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(idx.buckets[i], band)
			}
		}
	}
}

// Len reports the resident entry count.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.nodes)
}

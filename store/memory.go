package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/alfreddev/cachify/clock"
)

// MemoryStore is the L1 tier: an in-process, LRU-bounded, TTL-aware byte
// map. Grounded on the shard design in the shardcache example (map +
// intrusive recency list under one lock) but simplified to a single shard,
// since L1 in this module is sized for "hot keys for one process", not a
// high-throughput standalone cache.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	maxItems int        // 0 = unbounded
}

type memoryEntry struct {
	key      string
	value    []byte
	deadline time.Time // zero = no expiration
	ttl      time.Duration
	sliding  bool
}

// NewMemoryStore creates an L1 store. maxItems bounds the resident entry
// count with LRU eviction; 0 means unbounded.
func NewMemoryStore(maxItems int, c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryStore{
		clock:    c,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxItems: maxItems,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*memoryEntry)
	now := m.clock.Now()
	if !entry.deadline.IsZero() && now.After(entry.deadline) {
		m.removeElementLocked(el)
		return nil, false, nil
	}
	if entry.sliding && entry.ttl > 0 {
		entry.deadline = now.Add(entry.ttl)
	}
	m.order.MoveToFront(el)

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration, sliding bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	var deadline time.Time
	if ttl > 0 {
		deadline = m.clock.Now().Add(ttl)
	}

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = stored
		entry.deadline = deadline
		entry.ttl = ttl
		entry.sliding = sliding
		m.order.MoveToFront(el)
		return nil
	}

	entry := &memoryEntry{key: key, value: stored, deadline: deadline, ttl: ttl, sliding: sliding}
	el := m.order.PushFront(entry)
	m.items[key] = el

	if m.maxItems > 0 {
		for len(m.items) > m.maxItems {
			tail := m.order.Back()
			if tail == nil {
				break
			}
			m.removeElementLocked(tail)
		}
	}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeElementLocked(el)
	}
	return nil
}

// Len reports the resident entry count, mainly for tests and admin stats.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Flush evicts every entry and reports how many were removed. L1 is
// process-local, so flushing it is safe in a way flushing the shared L2
// store never could be.
func (m *MemoryStore) Flush(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = make(map[string]*list.Element)
	m.order.Init()
	return n, nil
}

func (m *MemoryStore) removeElementLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.items, entry.key)
	m.order.Remove(el)
}

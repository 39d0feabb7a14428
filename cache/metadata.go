package cache

import (
	"encoding/json"
	"time"
)

// metaSuffix is appended to a user key to derive its metadata's storage
// key. Callers must not use
// this suffix for their own keys.
const metaSuffix = ":meta"

// EntryState is the state of a cache entry derived from its metadata and
// the current instant.
type EntryState int

const (
	StateMiss EntryState = iota
	StateFresh
	StateStale
)

// Metadata is the sibling record stored under key+":meta". Invariant: CreatedAt <= LogicalExpiration <= FailSafeUntil.
type Metadata struct {
	CreatedAt         time.Time `json:"created_at"`
	LogicalExpiration time.Time `json:"logical_expiration"`
	FailSafeUntil     time.Time `json:"fail_safe_until"`

	// Negative marks a negative-cache tombstone. A negative entry is never served stale: once past
	// LogicalExpiration it is Miss, not Stale, regardless of FailSafeUntil.
	Negative bool `json:"negative,omitempty"`
}

// State classifies this metadata against now.
func (m Metadata) State(now time.Time) EntryState {
	switch {
	case !now.After(m.LogicalExpiration):
		return StateFresh
	case !now.After(m.FailSafeUntil):
		return StateStale
	default:
		return StateMiss
	}
}

// StorageTTL returns how long, from now, the payload should stay in the
// underlying stores: the time left until FailSafeUntil. At write time this
// is ttl + fail_safe_max_duration, so the payload outlives its logical
// expiration.
func (m Metadata) StorageTTL(now time.Time) time.Duration {
	return m.FailSafeUntil.Sub(now)
}

func encodeMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	err := json.Unmarshal(raw, &m)
	return m, err
}

func metadataKey(key string) string {
	return key + metaSuffix
}

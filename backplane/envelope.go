// Package backplane implements the cross-instance invalidation channel:
// a versioned wire envelope, a batching-aware publisher, and a
// subscriber that evicts L1 entries on peer writes.
//
// Grounded on the versioned-event design in the O-tero-Distributed-Caching-System
// example's pkg/pubsub (explicit schema version, source/service tagging,
// JSON envelope) adapted from its Encore-specific pubsub.Topic plumbing
// onto the go-redis Pub/Sub transport this module already depends on.
package backplane

import "encoding/json"

// wireVersion is the only envelope version this package emits or accepts.
const wireVersion = 1

// item is one invalidation inside a batched envelope.
type item struct {
	Key string `json:"key,omitempty"`
	Tag string `json:"tag,omitempty"`
}

// envelope is the wire format:
// {v, src, key?, tag?, items?:[{key?,tag?}]}.
type envelope struct {
	V     int    `json:"v"`
	Src   string `json:"src"`
	Key   string `json:"key,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Items []item `json:"items,omitempty"`
}

// Invalidation is one key-or-tag eviction instruction handed to a
// registered handler.
type Invalidation struct {
	Key string
	Tag string
}

// valid reports whether env is a well-formed message: it must carry a
// non-empty src and either a single key/tag or a non-empty items array.
func (e envelope) valid() bool {
	if e.Src == "" {
		return false
	}
	if e.Key != "" || e.Tag != "" {
		return true
	}
	return len(e.Items) > 0
}

func (e envelope) expand() []Invalidation {
	if len(e.Items) > 0 {
		out := make([]Invalidation, 0, len(e.Items))
		for _, it := range e.Items {
			if it.Key == "" && it.Tag == "" {
				continue
			}
			out = append(out, Invalidation{Key: it.Key, Tag: it.Tag})
		}
		return out
	}
	if e.Key == "" && e.Tag == "" {
		return nil
	}
	return []Invalidation{{Key: e.Key, Tag: e.Tag}}
}

func encodeEnvelope(e envelope) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var e envelope
	err := json.Unmarshal(raw, &e)
	return e, err
}

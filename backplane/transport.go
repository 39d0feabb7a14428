package backplane

import "context"

// Transport is the pub/sub capability the publisher and subscriber need.
// RedisTransport is the concrete collaborator this module wires; the
// interface exists so tests can substitute an in-memory transport.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe attaches to channel and returns a receive-only stream of
	// raw payloads plus an unsubscribe function. The stream closes, and
	// unsubscribe is safe to call, once ctx is canceled.
	Subscribe(ctx context.Context, channel string) (msgs <-chan []byte, unsubscribe func() error, err error)
}

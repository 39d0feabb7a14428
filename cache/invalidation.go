package cache

import "context"

// Invalidator publishes a key invalidation to the backplane.
// Facade depends only on this narrow interface — not on the backplane
// package itself — so the two can be wired together from cmd/server
// without either package importing the other.
type Invalidator interface {
	PublishKey(ctx context.Context, key string) error
}

// HandleInvalidation evicts key from L1 in response to a backplane
// message. key is expected to already be in
// this instance's namespaced form, as published by Set/Remove.
func (f *Facade) HandleInvalidation(ctx context.Context, key string) {
	_ = f.l1.Remove(ctx, key)
	_ = f.l1.Remove(ctx, metadataKey(key))
}

func (f *Facade) publishInvalidation(ctx context.Context, fullKey string) {
	if f.invalidator == nil {
		return
	}
	if err := f.invalidator.PublishKey(ctx, fullKey); err != nil {
		f.logger.Warn().Err(err).Str("key", fullKey).Msg("backplane publish failed")
	}
}

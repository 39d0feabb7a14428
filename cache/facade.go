// Package cache implements the composite L1/L2 orchestrator: fail-safe
// staleness, soft/hard factory timeouts, stampede coalescing, background
// refresh, and TTL jitter. Facade is the only exported entry
// point; everything else in this package supports it.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/alfreddev/cachify/clock"
	"github.com/alfreddev/cachify/observability"
	"github.com/alfreddev/cachify/store"
	"github.com/rs/zerolog"
)

// defaultNegativeCacheTTL is used when neither EntryOptions.NegativeCacheTTL
// nor a facade-level override is set.
const defaultNegativeCacheTTL = 30 * time.Second

// Facade is the composite orchestrator. It is safe for concurrent use.
type Facade struct {
	l1 store.Store
	l2 store.Store

	clock       clock.Clock
	guard       *StampedeGuard
	invalidator Invalidator
	metrics     *observability.Metrics
	logger      zerolog.Logger

	opts FacadeOptions
}

// Option configures a Facade at construction time.
type Option func(*Facade)

// WithClock overrides the default real clock. Tests use this to inject a
// *clock.Manual and drive time-travel tests deterministically.
func WithClock(c clock.Clock) Option {
	return func(f *Facade) { f.clock = c }
}

// WithMetrics attaches a Prometheus-backed metrics registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Facade) { f.metrics = m }
}

// WithInvalidator wires a backplane publisher. Without one, Set/Remove
// skip invalidation publishing entirely (single-instance operation).
func WithInvalidator(inv Invalidator) Option {
	return func(f *Facade) { f.invalidator = inv }
}

// New constructs a Facade over an L1 (in-process) and L2 (distributed)
// store pair.
func New(l1, l2 store.Store, opts FacadeOptions, logger zerolog.Logger, options ...Option) *Facade {
	f := &Facade{
		l1:     l1,
		l2:     l2,
		clock:  clock.Real{},
		guard:  NewStampedeGuard(),
		logger: logger.With().Str("component", "cache").Logger(),
		opts:   opts,
	}
	for _, o := range options {
		o(f)
	}
	return f
}

// Get consults L1 then L2. A nil *Result with a nil
// error is a Miss.
func (f *Facade) Get(ctx context.Context, key string) (*Result, error) {
	start := f.clock.Now()
	defer f.observeDuration(start)

	res, err := f.getInternal(ctx, f.namespacedKey(key))
	if err != nil {
		return nil, err
	}
	if res != nil && res.NotFound {
		// Get never surfaces the negative-cache marker: to a plain
		// reader a not-found tombstone is indistinguishable from Miss.
		return nil, nil
	}
	return res, nil
}

// getInternal implements the L1/L2 consult-and-fallback rule: an L1-stale
// candidate is recorded *before* L2 is consulted, so
// an L2 read error falls back to it rather than propagating.
func (f *Facade) getInternal(ctx context.Context, fullKey string) (*Result, error) {
	now := f.clock.Now()

	l1Value, l1Meta, l1Found := f.readL1(ctx, fullKey, now)
	if l1Found {
		if state := f.effectiveState(l1Meta, now); state == StateFresh {
			f.recordHit("L1")
			return freshResult(l1Value, l1Meta), nil
		}
	}

	var staleValue []byte
	var staleMeta Metadata
	haveStale := false
	if l1Found && f.effectiveState(l1Meta, now) == StateStale {
		staleValue, staleMeta, haveStale = l1Value, l1Meta, true
	}

	l2Value, l2Meta, l2Found, l2Err := f.readL2(ctx, fullKey, now)
	if l2Err != nil {
		if haveStale {
			f.recordHit("stale")
			if f.metrics != nil {
				f.metrics.FailsafeUsed.Inc()
			}
			return staleResult(staleValue, staleMeta, StaleL2Failure), nil
		}
		if f.opts.FailFastOnL2Errors {
			return nil, l2Err
		}
		f.recordMiss()
		return nil, nil
	}

	if l2Found {
		state := f.effectiveState(l2Meta, now)
		if state == StateFresh {
			f.recordHit("L2")
			f.refillL1(ctx, fullKey, l2Value, l2Meta, now)
			return freshResult(l2Value, l2Meta), nil
		}
		if state == StateStale && !haveStale {
			staleValue, staleMeta, haveStale = l2Value, l2Meta, true
		}
	}

	if haveStale {
		f.recordHit("stale")
		if f.metrics != nil {
			f.metrics.FailsafeUsed.Inc()
		}
		return staleResult(staleValue, staleMeta, StaleExpired), nil
	}

	f.recordMiss()
	return nil, nil
}

func freshResult(value []byte, meta Metadata) *Result {
	if meta.Negative {
		return &Result{NotFound: true}
	}
	return &Result{Value: value}
}

func staleResult(value []byte, meta Metadata, reason StaleReason) *Result {
	return &Result{Value: value, Stale: true, StaleReason: reason}
}

// effectiveState folds a negative entry's would-be Stale state into Miss:
// a not-found verdict is never served stale.
func (f *Facade) effectiveState(meta Metadata, now time.Time) EntryState {
	state := meta.State(now)
	if meta.Negative && state == StateStale {
		return StateMiss
	}
	return state
}

func (f *Facade) readL1(ctx context.Context, key string, now time.Time) ([]byte, Metadata, bool) {
	value, meta, found, err := f.readEntry(ctx, f.l1, key, now)
	if err != nil {
		f.logger.Debug().Err(err).Str("key", key).Msg("l1 read error treated as miss")
		return nil, Metadata{}, false
	}
	return value, meta, found
}

func (f *Facade) readL2(ctx context.Context, key string, now time.Time) ([]byte, Metadata, bool, error) {
	return f.readEntry(ctx, f.l2, key, now)
}

// readEntry fetches a payload and its sidecar metadata. A payload with no
// metadata record is treated as Fresh indefinitely, for compatibility with
// entries written before metadata existed (or by another tool entirely).
func (f *Facade) readEntry(ctx context.Context, s store.Store, key string, now time.Time) ([]byte, Metadata, bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, Metadata{}, false, err
	}
	if !ok {
		return nil, Metadata{}, false, nil
	}
	metaRaw, metaOk, metaErr := s.Get(ctx, metadataKey(key))
	if metaErr != nil || !metaOk {
		return value, openEndedMetadata(now), true, nil
	}
	meta, decErr := decodeMetadata(metaRaw)
	if decErr != nil {
		return value, openEndedMetadata(now), true, nil
	}
	return value, meta, true, nil
}

const openEndedWindow = 100 * 365 * 24 * time.Hour

func openEndedMetadata(now time.Time) Metadata {
	return Metadata{CreatedAt: now, LogicalExpiration: now.Add(openEndedWindow), FailSafeUntil: now.Add(openEndedWindow)}
}

// refillL1 recomputes the remaining fail-safe window as TTL and writes it
// to L1, skipping the refill if that window is already spent.
func (f *Facade) refillL1(ctx context.Context, fullKey string, value []byte, meta Metadata, now time.Time) {
	ttl := meta.StorageTTL(now)
	if ttl <= 0 {
		return
	}
	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		return
	}
	if err := f.l1.Set(ctx, fullKey, value, ttl, false); err != nil {
		f.logger.Debug().Err(err).Str("key", fullKey).Msg("l1 refill failed")
		return
	}
	_ = f.l1.Set(ctx, metadataKey(fullKey), metaBytes, ttl, false)
}

// Set computes metadata, writes payload and metadata to L2 then L1, and
// publishes an invalidation.
func (f *Facade) Set(ctx context.Context, key string, value []byte, opts *EntryOptions) error {
	fullKey := f.namespacedKey(key)
	meta := f.buildMetadata(f.clock.Now(), opts)
	return f.writeEntry(ctx, fullKey, value, meta, opts)
}

func (f *Facade) buildMetadata(now time.Time, opts *EntryOptions) Metadata {
	if opts != nil && opts.TTL != nil && *opts.TTL == 0 {
		// ttl=0 is immediate expiration,
		// not "use the default" — logical expiration is now itself.
		return Metadata{CreatedAt: now, LogicalExpiration: now, FailSafeUntil: now}
	}
	ttl := f.opts.ttlFor(opts)
	resilience := f.opts.resilienceFor(opts)
	jittered := applyJitter(ttl, f.opts.jitterFor(opts))
	logicalExp := now.Add(jittered)
	return Metadata{CreatedAt: now, LogicalExpiration: logicalExp, FailSafeUntil: logicalExp.Add(resilience.FailSafeMaxDuration)}
}

func (f *Facade) buildNegativeMetadata(now time.Time, opts *EntryOptions) Metadata {
	ttl := f.negativeTTLFor(opts)
	return Metadata{CreatedAt: now, LogicalExpiration: now.Add(ttl), FailSafeUntil: now.Add(ttl), Negative: true}
}

func (f *Facade) negativeTTLFor(opts *EntryOptions) time.Duration {
	if opts != nil && opts.NegativeCacheTTL > 0 {
		return opts.NegativeCacheTTL
	}
	return defaultNegativeCacheTTL
}

func (f *Facade) writeEntry(ctx context.Context, fullKey string, value []byte, meta Metadata, opts *EntryOptions) error {
	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		return &Error{Kind: KindSerializationFailure, Key: fullKey, Cause: err}
	}

	storageTTL := meta.StorageTTL(f.clock.Now())
	if storageTTL <= 0 {
		// A spent fail-safe window (e.g. explicit ttl=0 with no
		// fail-safe extension) still needs *some* positive TTL so the
		// underlying stores actually expire the write rather than
		// treating a zero TTL as "keep forever".
		storageTTL = time.Millisecond
	}
	sliding := opts != nil && opts.SlidingExpiration

	if l2Err := f.l2.Set(ctx, fullKey, value, storageTTL, false); l2Err != nil {
		f.logger.Warn().Err(l2Err).Str("key", fullKey).Msg("l2 set failed")
		if f.opts.FailFastOnL2Errors {
			return l2Err
		}
	} else if err := f.l2.Set(ctx, metadataKey(fullKey), metaBytes, storageTTL, false); err != nil {
		f.logger.Warn().Err(err).Str("key", fullKey).Msg("l2 metadata set failed")
	}

	if err := f.l1.Set(ctx, fullKey, value, storageTTL, sliding); err != nil {
		f.logger.Debug().Err(err).Str("key", fullKey).Msg("l1 set failed")
	} else if err := f.l1.Set(ctx, metadataKey(fullKey), metaBytes, storageTTL, sliding); err != nil {
		f.logger.Debug().Err(err).Str("key", fullKey).Msg("l1 metadata set failed")
	}

	if f.metrics != nil {
		f.metrics.CacheSetTotal.Inc()
	}
	f.publishInvalidation(ctx, fullKey)
	return nil
}

func (f *Facade) setNegative(ctx context.Context, fullKey string, opts *EntryOptions) {
	meta := f.buildNegativeMetadata(f.clock.Now(), opts)
	if err := f.writeEntry(ctx, fullKey, nil, meta, opts); err != nil {
		f.logger.Debug().Err(err).Str("key", fullKey).Msg("negative cache set failed")
	}
}

// Remove deletes payload and metadata from both tiers and publishes an
// invalidation.
func (f *Facade) Remove(ctx context.Context, key string) error {
	fullKey := f.namespacedKey(key)

	if err := f.l2.Remove(ctx, fullKey); err != nil {
		f.logger.Warn().Err(err).Str("key", fullKey).Msg("l2 remove failed")
	}
	_ = f.l2.Remove(ctx, metadataKey(fullKey))

	if err := f.l1.Remove(ctx, fullKey); err != nil {
		f.logger.Debug().Err(err).Str("key", fullKey).Msg("l1 remove failed")
	}
	_ = f.l1.Remove(ctx, metadataKey(fullKey))

	if f.metrics != nil {
		f.metrics.CacheRemoveTotal.Inc()
	}
	f.publishInvalidation(ctx, fullKey)
	return nil
}

// flusher is the optional capability a store tier may offer for a bulk
// clear. Only L1 is
// expected to implement it: L2 is shared infrastructure a flush could
// damage for unrelated keyspaces.
type flusher interface {
	Flush(ctx context.Context) (int, error)
}

// FlushAll clears every L1 entry this process holds and publishes no
// invalidation (L1 is process-local; other instances are unaffected).
// Reports 0 if the configured L1 store doesn't support flushing.
func (f *Facade) FlushAll(ctx context.Context) (int, error) {
	fl, ok := f.l1.(flusher)
	if !ok {
		return 0, nil
	}
	n, err := fl.Flush(ctx)
	if err == nil && f.metrics != nil {
		f.metrics.CacheRemoveTotal.Add(float64(n))
	}
	return n, err
}

// GetOrSet reads the cache, and on anything short of Fresh, coalesces
// concurrent callers through the stampede guard and runs factory under a
// hard-timeout scope.
func (f *Facade) GetOrSet(ctx context.Context, key string, factory func(context.Context) ([]byte, error), opts *EntryOptions) (*Result, error) {
	start := f.clock.Now()
	defer f.observeDuration(start)

	fullKey := f.namespacedKey(key)

	res, err := f.getInternal(ctx, fullKey)
	if err != nil {
		return nil, err
	}
	if res != nil && res.NotFound && !res.Stale {
		return nil, ErrNotFound
	}
	if res != nil && !res.Stale {
		return res, nil
	}

	resilience := f.opts.resilienceFor(opts)

	var staleValue []byte
	var staleReason StaleReason
	haveStale := res != nil && res.Stale
	if haveStale {
		staleValue, staleReason = res.Value, res.StaleReason
	}

	call, isLeader := f.guard.Join(fullKey, func() ([]byte, error) {
		result := runWithHardTimeout(detachCancel(ctx), f.clock, resilience.HardTimeout, factory)
		if result.timedOut {
			return nil, newHardTimeoutError(fullKey)
		}
		return result.value, result.err
	})

	if haveStale && resilience.SoftTimeout > 0 {
		if refreshWon := f.waitSoft(resilience.SoftTimeout, call.done); !refreshWon {
			if f.metrics != nil {
				f.metrics.SoftTimeoutTotal.Inc()
				f.metrics.StaleServed.Inc()
				f.metrics.FailsafeUsed.Inc()
			}
			if isLeader && resilience.EnableBackgroundRefresh {
				f.scheduleBackgroundPersist(call, key, opts)
			}
			return staleResult(staleValue, Metadata{}, StaleSoftTimeout), nil
		}
	} else {
		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result := call.result

	if result.err != nil {
		if errors.Is(result.err, ErrNotFound) {
			if isLeader {
				f.setNegative(ctx, fullKey, opts)
			}
			return nil, ErrNotFound
		}

		var kindErr *Error
		isHardTimeout := errors.As(result.err, &kindErr) && kindErr.Kind == KindHardTimeout

		if haveStale {
			reason := StaleFactoryFailure
			if isHardTimeout {
				reason = StaleHardTimeout
			}
			if f.metrics != nil {
				f.metrics.StaleServed.Inc()
				f.metrics.FailsafeUsed.Inc()
				if isHardTimeout {
					f.metrics.HardTimeoutTotal.Inc()
				}
			}
			if isLeader && resilience.EnableBackgroundRefresh {
				f.scheduleBackgroundRetry(fullKey, key, factory, resilience, opts)
			}
			return staleResult(staleValue, Metadata{}, reason), nil
		}

		if isHardTimeout {
			if f.metrics != nil {
				f.metrics.HardTimeoutTotal.Inc()
			}
			return nil, result.err
		}
		return nil, newFactoryFailureError(fullKey, result.err)
	}

	if isLeader {
		if err := f.Set(ctx, key, result.value, opts); err != nil {
			f.logger.Warn().Err(err).Str("key", fullKey).Msg("post-refresh set failed")
		}
	}
	return &Result{Value: result.value}, nil
}

func (f *Facade) waitSoft(soft time.Duration, done <-chan struct{}) bool {
	return waitWithSoftTimeout(f.clock, soft, done)
}

// scheduleBackgroundPersist waits for an already in-flight refresh task to
// finish and persists its value, so a caller that bailed out on a soft
// timeout still observes the refreshed value on a later Get.
func (f *Facade) scheduleBackgroundPersist(call *refreshCall, key string, opts *EntryOptions) {
	go func() {
		<-call.done
		if call.result.err != nil {
			return
		}
		if err := f.Set(context.Background(), key, call.result.value, opts); err != nil {
			f.logger.Warn().Err(err).Str("key", key).Msg("background refresh set failed")
		}
	}()
}

// scheduleBackgroundRetry starts a fresh factory attempt outside the
// stampede guard once the task that just failed has already completed.
func (f *Facade) scheduleBackgroundRetry(fullKey, key string, factory func(context.Context) ([]byte, error), resilience ResilienceOptions, opts *EntryOptions) {
	go func() {
		ctx := detachCancel(context.Background())
		result := runWithHardTimeout(ctx, f.clock, resilience.HardTimeout, factory)
		if result.timedOut || result.err != nil {
			return
		}
		if err := f.Set(ctx, key, result.value, opts); err != nil {
			f.logger.Warn().Err(err).Str("key", fullKey).Msg("background retry set failed")
		}
	}()
}

func (f *Facade) namespacedKey(key string) string {
	return BuildKey(f.opts.KeyPrefix, "", key)
}

func (f *Facade) recordHit(layer string) {
	if f.metrics != nil {
		f.metrics.CacheHitTotal.WithLabelValues(layer).Inc()
	}
}

func (f *Facade) recordMiss() {
	if f.metrics != nil {
		f.metrics.CacheMissTotal.Inc()
	}
}

func (f *Facade) observeDuration(start time.Time) {
	if f.metrics != nil {
		f.metrics.GetDuration.Observe(float64(f.clock.Now().Sub(start).Milliseconds()))
	}
}

package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// refreshResult is what a shared refresh task publishes to its waiters.
type refreshResult struct {
	value []byte
	err   error
}

// refreshCall is one in-flight factory execution for a single key, bridged
// from a singleflight.Group channel into the done-channel shape the rest of
// this package expects (so a caller can select on it alongside a
// soft-timeout timer or ctx.Done()).
type refreshCall struct {
	done   chan struct{} // closed once result is published
	result refreshResult
}

// StampedeGuard is the process-wide per-key mutual exclusion primitive spec
// §4.1 "Stampede guard" describes: at most one refresh task exists per key
// at any time, and followers observe the leader's result rather than
// starting their own.
//
// Coalescing itself is golang.org/x/sync/singleflight.Group.DoChan — it
// already gives every caller for a key its own completion channel without
// blocking the call that registers it, which is exactly the non-blocking
// race-against-soft-timeout shape GetOrSet needs. The guard layers leader
// detection on top (DoChan alone doesn't say which caller started the call)
// and republishes the result through a closed channel so callers can select
// on it the same way as ctx.Done() and a soft-timeout timer.
type StampedeGuard struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewStampedeGuard constructs an empty guard.
func NewStampedeGuard() *StampedeGuard {
	return &StampedeGuard{inflight: make(map[string]struct{})}
}

// Join attaches the caller to the in-flight refresh task for key, starting
// one via fn if none exists. It returns immediately with the shared call
// and whether this caller is the task's leader (the one that started it) —
// only the leader should schedule follow-up work once the call completes,
// so concurrent followers don't each schedule a redundant retry.
//
// fn runs detached from any particular caller's context; the leader's own
// cancellation does not abort it.
func (g *StampedeGuard) Join(key string, fn func() ([]byte, error)) (call *refreshCall, isLeader bool) {
	g.mu.Lock()
	_, already := g.inflight[key]
	if !already {
		g.inflight[key] = struct{}{}
	}
	g.mu.Unlock()
	isLeader = !already

	resultCh := g.group.DoChan(key, func() (interface{}, error) {
		value, err := fn()
		return refreshResult{value: value, err: err}, err
	})

	call = &refreshCall{done: make(chan struct{})}
	go func() {
		sfResult := <-resultCh
		if v, ok := sfResult.Val.(refreshResult); ok {
			call.result = v
		} else {
			call.result = refreshResult{err: sfResult.Err}
		}
		close(call.done)

		if isLeader {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		}
	}()

	return call, isLeader
}

// InFlight reports whether a refresh task is currently running for key.
func (g *StampedeGuard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[key]
	return ok
}

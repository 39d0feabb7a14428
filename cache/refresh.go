package cache

import (
	"context"
	"time"

	"github.com/alfreddev/cachify/clock"
)

// hardTimeoutResult is the outcome of runWithHardTimeout.
type hardTimeoutResult struct {
	value    []byte
	err      error
	timedOut bool
}

// runWithHardTimeout executes factory under a cancellation derived from
// parent linked with a timer sourced from c, so the deadline honors an
// injected manual clock the same way the soft-timeout path already does.
//
// Uses the same goroutine+context+select pattern as an HTTP timeout
// middleware, lifted from the request layer down to a single factory call:
// a worker goroutine runs factory against the derived context while the
// caller races c's timer; if the timer wins, ctx is canceled (so a
// well-behaved factory returns promptly) and we wait for it to exit
// before reporting HardTimeout.
func runWithHardTimeout(parent context.Context, c clock.Clock, hardTimeout time.Duration, factory func(context.Context) ([]byte, error)) hardTimeoutResult {
	if hardTimeout <= 0 {
		v, err := factory(parent)
		return hardTimeoutResult{value: v, err: err}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	timer := c.NewTimer(hardTimeout)
	defer timer.Stop()

	type outcome struct {
		value []byte
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := factory(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return hardTimeoutResult{value: o.value, err: o.err}
	case <-timer.C():
		cancel()
		<-done // well-behaved factories return promptly once ctx is canceled
		return hardTimeoutResult{timedOut: true, err: context.DeadlineExceeded}
	case <-parent.Done():
		<-done
		return hardTimeoutResult{value: nil, err: parent.Err()}
	}
}

// uncancelableContext strips cancellation from ctx while preserving its
// values, so a scheduled background refresh is not aborted merely because
// the caller that triggered it gave up waiting.
type uncancelableContext struct {
	context.Context
}

func (uncancelableContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (uncancelableContext) Done() <-chan struct{}       { return nil }
func (uncancelableContext) Err() error                  { return nil }

func detachCancel(ctx context.Context) context.Context {
	return uncancelableContext{Context: ctx}
}

// waitWithSoftTimeout races a soft-timeout timer against done. It returns
// true if done fired first, false if the soft timer fired first. Uses the
// injected clock so tests can fire it deterministically.
func waitWithSoftTimeout(c clock.Clock, soft time.Duration, done <-chan struct{}) bool {
	timer := c.NewTimer(soft)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C():
		return false
	}
}

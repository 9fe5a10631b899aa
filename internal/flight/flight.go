// Package flight tracks the outstanding load for each key.
//
// A Group holds at most one Call per key. Every caller that asks for the same
// key while the Call is outstanding attaches to it and receives the same
// Result once the owner resolves it. A Call can be aborted with a cause, which
// cancels the context handed to the loader and detaches the Call from its key
// so that a late result is recognisably superseded.
//
// Group and the bookkeeping fields of Call are not synchronised; the owner
// guards them with its own lock. Wait and Done may be used from any goroutine.
package flight

import (
	"context"
	"time"
)

// Result is what every waiter of a Call receives.
type Result[V any] struct {
	Value V
	// Found is false when the load completed without a value, or failed
	// without a stale value to fall back on.
	Found bool
	// Stale is set when Value is the previously cached value served in
	// place of a failed or aborted load.
	Stale bool
	Err   error

	Updated  bool
	Rejected bool
	Aborted  bool
}

// Call is one outstanding load.
type Call[V any] struct {
	// Slot and Gen identify the cache slot the load revalidates, or
	// slots.Nil when the key was absent at dispatch time.
	Slot int32
	Gen  uint64

	// StaleValue is the value present at dispatch time, if any.
	StaleValue V
	HasStale   bool

	waiters int

	ctx     context.Context
	cancel  context.CancelCauseFunc
	release context.CancelFunc

	done   chan struct{}
	result Result[V]
}

// Context returns the context handed to the loader.
func (c *Call[V]) Context() context.Context { return c.ctx }

// Done is closed once the Call is resolved.
func (c *Call[V]) Done() <-chan struct{} { return c.done }

// Join registers a caller that will Wait for the result.
func (c *Call[V]) Join() { c.waiters++ }

// Leave unregisters a caller that stopped waiting.
func (c *Call[V]) Leave() { c.waiters-- }

// Waiters returns the number of callers currently waiting.
func (c *Call[V]) Waiters() int { return c.waiters }

// Abort cancels the loader context with cause. It does not resolve the Call.
func (c *Call[V]) Abort(cause error) { c.cancel(cause) }

// Resolve publishes r to every waiter and releases the loader context.
// It must be called exactly once.
func (c *Call[V]) Resolve(r Result[V]) {
	c.result = r
	close(c.done)
	c.release()
	c.cancel(context.Canceled)
}

// Wait blocks until the Call is resolved or ctx is done.
func (c *Call[V]) Wait(ctx context.Context) (Result[V], error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return Result[V]{}, context.Cause(ctx)
	}
}

// Group maps keys to their outstanding Call.
type Group[K comparable, V any] struct {
	calls map[K]*Call[V]
}

// Lookup returns the outstanding Call for key.
func (g *Group[K, V]) Lookup(key K) (*Call[V], bool) {
	c, ok := g.calls[key]
	return c, ok
}

// Current reports whether c is still the outstanding Call for key.
func (g *Group[K, V]) Current(key K, c *Call[V]) bool {
	cur, ok := g.calls[key]
	return ok && cur == c
}

// Start registers a new Call for key. The loader context derives from parent
// and, when timeout is positive, expires with timeoutCause.
// Any previous Call for key must have been aborted or forgotten.
func (g *Group[K, V]) Start(parent context.Context, key K, timeout time.Duration, timeoutCause error) *Call[V] {
	ctx, cancel := context.WithCancelCause(parent)
	release := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, release = context.WithTimeoutCause(ctx, timeout, timeoutCause)
	}

	c := &Call[V]{
		ctx:     ctx,
		cancel:  cancel,
		release: release,
		done:    make(chan struct{}),
	}
	if g.calls == nil {
		g.calls = make(map[K]*Call[V])
	}
	g.calls[key] = c
	return c
}

// Forget detaches c from key if it is still current.
func (g *Group[K, V]) Forget(key K, c *Call[V]) {
	if g.Current(key, c) {
		delete(g.calls, key)
	}
}

// Abort detaches the outstanding Call for key and cancels it with cause.
// It reports whether there was one.
func (g *Group[K, V]) Abort(key K, cause error) bool {
	c, ok := g.calls[key]
	if !ok {
		return false
	}
	delete(g.calls, key)
	c.Abort(cause)
	return true
}

// AbortAll aborts every outstanding Call.
func (g *Group[K, V]) AbortAll(cause error) {
	for key, c := range g.calls {
		delete(g.calls, key)
		c.Abort(cause)
	}
}

// Len returns the number of outstanding Calls.
func (g *Group[K, V]) Len() int { return len(g.calls) }

package lrucache

import (
	"context"
	"errors"
	"fmt"

	"github.com/karupanerura/lrucache/internal/flight"
	"github.com/karupanerura/lrucache/internal/safecall"
	"github.com/karupanerura/lrucache/internal/slots"
	"golang.org/x/sync/errgroup"
)

// Fetch returns the value for key, loading it with the configured Loader
// when it is absent, stale, or when WithForceRefresh is given.
//
// At most one load per key is outstanding: concurrent callers share it.
// With stale reads allowed, a stale value is returned at once and reloaded in
// the background. ctx only bounds how long this caller waits; the load itself
// runs under the BackgroundContext and is cancelled when its key is deleted,
// overwritten or evicted, or when FetchTimeout elapses.
//
// A load that reports no value yields (zero, false, nil). Without a Loader,
// Fetch behaves as Get.
func (c *Cache[K, V]) Fetch(ctx context.Context, key K, opts ...Option) (V, bool, error) {
	var zero V
	co := c.resolve(opts)
	st := statusOf[V](&co)

	c.mu.Lock()
	if c.closed {
		c.unlock()
		return zero, false, ErrClosed
	}

	if c.loader == nil {
		if st != nil {
			st.Fetch = FetchGet
		}
		v, ok := c.get(key, &co, st)
		c.unlock()
		if !ok {
			return zero, false, nil
		}
		return c.cloneValue(v), true, nil
	}

	if call, ok := c.flights.Lookup(key); ok {
		if st != nil {
			st.Fetch = FetchInflight
		}
		if co.allowStale && call.HasStale {
			v := call.StaleValue
			c.unlock()
			if st != nil {
				st.ReturnedStale = true
			}
			return c.cloneValue(v), true, nil
		}
		call.Join()
		c.unlock()
		return c.await(ctx, call, st)
	}

	i, ok := c.index[key]
	if !ok {
		if st != nil {
			st.Fetch = FetchMiss
		}
		call := c.dispatch(key, slots.Nil, &co, st)
		call.Join()
		c.unlock()
		return c.await(ctx, call, st)
	}

	now := c.now()
	c.recordTTL(st, i, now)
	stale := c.isStale(i, now)
	if !stale && !co.forceRefresh {
		if st != nil {
			st.Fetch = FetchHit
		}
		c.arena.MoveToHead(i)
		if co.updateAgeOnGet {
			c.arena.Touch(i, now)
		}
		v := c.arena.Value(i)
		c.unlock()
		return c.cloneValue(v), true, nil
	}

	if st != nil {
		st.Fetch = FetchRefresh
		if stale {
			st.Fetch = FetchStale
		}
	}
	v := c.arena.Value(i)
	call := c.dispatch(key, i, &co, st)
	if co.allowStale {
		c.unlock()
		if st != nil {
			st.ReturnedStale = stale
		}
		return c.cloneValue(v), true, nil
	}
	call.Join()
	c.unlock()
	return c.await(ctx, call, st)
}

// FetchMulti fetches keys concurrently and returns their values in key order.
// The first error cancels the wait for the remaining keys. WithStatus is
// ignored.
func (c *Cache[K, V]) FetchMulti(ctx context.Context, keys []K, opts ...Option) ([]V, []bool, error) {
	return fetchMulti(ctx, c.Fetch, keys, opts)
}

func fetchMulti[K comparable, V any](ctx context.Context, fetch func(context.Context, K, ...Option) (V, bool, error), keys []K, opts []Option) ([]V, []bool, error) {
	opts = withoutStatus(opts)
	values := make([]V, len(keys))
	found := make([]bool, len(keys))

	eg, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		eg.Go(func() error {
			v, ok, err := fetch(ctx, key, opts...)
			if err != nil {
				return err
			}
			values[i], found[i] = v, ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return values, found, nil
}

// dispatch starts a load for key. i is the slot being revalidated, or
// slots.Nil when the key is absent. It must be called with the lock held.
func (c *Cache[K, V]) dispatch(key K, i int32, co *callOptions, st *Status[V]) *flight.Call[V] {
	call := c.flights.Start(c.background(), key, c.fetchTimeout, ErrLoadTimeout)
	call.Slot = i
	if i != slots.Nil {
		call.Gen = c.arena.Generation(i)
		call.StaleValue = c.arena.Value(i)
		call.HasStale = true
		c.arena.SetFetching(i, true)
	}
	if st != nil {
		st.FetchDispatched = true
	}

	req := &LoadRequest[K, V]{
		Key:      key,
		HasStale: call.HasStale,
		Context:  co.fetchContext,
	}
	if call.HasStale {
		req.Stale = c.cloneValue(call.StaleValue)
	}
	lo := *co
	lo.status = nil
	go c.load(key, call, req, &lo)

	c.debug("fetch dispatched", "key", key, "revalidate", call.HasStale)
	return call
}

type loadOutcome[V any] struct {
	res *LoadResult[V]
	err error
}

// load runs the Loader and settles the call. It gives up waiting for the
// Loader as soon as the call's context is done, so an abort or a timeout
// resolves waiters even if the Loader ignores its context.
func (c *Cache[K, V]) load(key K, call *flight.Call[V], req *LoadRequest[K, V], co *callOptions) {
	done := make(chan loadOutcome[V], 1)
	go func() {
		var res *LoadResult[V]
		g := safecall.Guard{OnGoexit: func() {
			done <- loadOutcome[V]{err: safecall.ErrGoexit}
		}}
		err := g.Run(func() (err error) {
			res, err = c.loader.Load(call.Context(), req)
			return err
		})
		done <- loadOutcome[V]{res: res, err: err}
	}()

	var o loadOutcome[V]
	select {
	case o = <-done:
		// a loader failing after its context ended reports the cause
		if o.err != nil && call.Context().Err() != nil {
			o.err = context.Cause(call.Context())
		}
	case <-call.Context().Done():
		o.err = context.Cause(call.Context())
	}

	c.mu.Lock()
	r := c.commit(key, call, o.res, o.err, co)
	c.unlock()
	call.Resolve(r)
}

// commit installs the outcome of a load, unless the load was aborted or its
// slot was reused since dispatch. It must be called with the lock held.
func (c *Cache[K, V]) commit(key K, call *flight.Call[V], res *LoadResult[V], err error, co *callOptions) flight.Result[V] {
	if !c.flights.Current(key, call) {
		if _, pending := c.flights.Lookup(key); !pending {
			if cur, ok := c.index[key]; ok && cur == call.Slot && c.arena.Generation(cur) == call.Gen {
				c.arena.SetFetching(cur, false)
			}
		}
		return c.aborted(key, call, context.Cause(call.Context()), co)
	}
	c.flights.Forget(key, call)

	i := slots.Nil
	if cur, ok := c.index[key]; ok {
		if cur != call.Slot || c.arena.Generation(cur) != call.Gen {
			return c.aborted(key, call, errAbortSuperseded, co)
		}
		i = cur
		c.arena.SetFetching(i, false)
	} else if call.Slot != slots.Nil {
		return c.aborted(key, call, errAbortSuperseded, co)
	}

	if err != nil {
		return c.reject(key, call, i, err, co)
	}
	if res == nil {
		c.debug("fetch found nothing", "key", key)
		return flight.Result[V]{}
	}

	so := *co
	if res.TTL > 0 {
		so.ttl, so.hasTTL = res.TTL, true
	}
	if err := c.set(key, c.cloneValue(res.Value), &so, nil); err != nil {
		return c.reject(key, call, i, err, co)
	}
	return flight.Result[V]{Value: res.Value, Found: true, Updated: true}
}

func (c *Cache[K, V]) aborted(key K, call *flight.Call[V], cause error, co *callOptions) flight.Result[V] {
	if !errors.Is(cause, ErrFetchAborted) {
		cause = fmt.Errorf("%w: %w", ErrFetchAborted, cause)
	}
	c.debug("fetch aborted", "key", key, "cause", cause)
	if co.allowStaleOnFetchAbort && call.HasStale {
		return flight.Result[V]{Value: call.StaleValue, Found: true, Stale: true, Aborted: true}
	}
	return flight.Result[V]{Err: cause, Aborted: true}
}

// reject handles a failed load. The stale entry in slot i, if any, is removed
// unless NoDeleteOnFetchRejection applies. When nobody waits for the result
// the error goes to OnError.
func (c *Cache[K, V]) reject(key K, call *flight.Call[V], i int32, err error, co *callOptions) flight.Result[V] {
	if !errors.Is(err, ErrLoad) {
		err = fmt.Errorf("%w: %w", ErrLoad, err)
	}
	c.debug("fetch rejected", "key", key, "err", err)

	if i != slots.Nil && !co.noDeleteOnFetchRejection {
		c.remove(i, ReasonFetch)
	}
	if call.Waiters() == 0 {
		c.report(err)
	}
	if co.allowStaleOnFetchRejection && call.HasStale {
		return flight.Result[V]{Value: call.StaleValue, Found: true, Stale: true, Rejected: true}
	}
	return flight.Result[V]{Err: err, Rejected: true}
}

// await waits for call on behalf of one caller.
func (c *Cache[K, V]) await(ctx context.Context, call *flight.Call[V], st *Status[V]) (V, bool, error) {
	var zero V
	r, err := call.Wait(ctx)
	if err != nil {
		c.mu.Lock()
		call.Leave()
		c.unlock()
		return zero, false, err
	}

	if st != nil {
		st.FetchResolved = !r.Rejected && !r.Aborted
		st.FetchUpdated = r.Updated
		st.FetchRejected = r.Rejected
		st.FetchAborted = r.Aborted
		st.FetchError = r.Err
		st.ReturnedStale = r.Stale
	}
	if r.Err != nil {
		return zero, false, r.Err
	}
	if !r.Found {
		return zero, false, nil
	}
	return c.cloneValue(r.Value), true, nil
}

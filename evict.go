package lrucache

import (
	"time"

	"github.com/karupanerura/lrucache/internal/slots"
)

// reconcile evicts from the tail until the count and size bounds hold.
func (c *Cache[K, V]) reconcile(now time.Time, st *Status[V]) {
	for c.max > 0 && c.arena.Len() > c.max && c.arena.Tail() != slots.Nil {
		c.evict(c.arena.Tail(), now, st, false)
	}
	for c.maxSize > 0 && c.total > c.maxSize && c.arena.Tail() != slots.Nil {
		c.evict(c.arena.Tail(), now, st, true)
	}
}

// evict removes slot i under capacity pressure.
func (c *Cache[K, V]) evict(i int32, now time.Time, st *Status[V], bySize bool) {
	if st != nil {
		switch {
		case c.isStale(i, now):
			st.Evicted.TTL++
		case bySize:
			st.Evicted.Size++
		default:
			st.Evicted.Capacity++
		}
	}
	c.remove(i, ReasonEvict)
}

// remove takes slot i out of the index and the recency list, notifies the
// disposal callbacks and returns the slot to the free chain. The value is
// released before the slot can be handed out again.
func (c *Cache[K, V]) remove(i int32, reason DisposeReason) {
	key, value := c.arena.Key(i), c.arena.Value(i)
	if c.flights.Len() > 0 {
		c.flights.Abort(key, abortCause(reason))
	}
	c.total -= c.arena.Size(i)
	c.arena.Unlink(i)
	delete(c.index, key)
	c.notify(key, value, reason)
	c.arena.Release(i)
}

func abortCause(reason DisposeReason) error {
	if reason == ReasonDelete {
		return errAbortDeleted
	}
	return errAbortEvicted
}

// PurgeStale removes every stale entry that is not being reloaded.
// It reports whether anything was removed.
func (c *Cache[K, V]) PurgeStale() bool {
	c.mu.Lock()
	defer c.unlock()

	if !c.ttlSeen {
		return false
	}
	now := c.clock.Now()
	purged := 0
	for i := c.arena.Tail(); i != slots.Nil; {
		prev := c.arena.Prev(i)
		if !c.arena.Fetching(i) && c.isStale(i, now) {
			c.remove(i, ReasonExpire)
			purged++
		}
		i = prev
	}
	if purged > 0 {
		c.debug("purged stale entries", "count", purged, "remaining", c.arena.Len())
	}
	return purged > 0
}

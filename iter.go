package lrucache

import (
	"iter"

	"github.com/karupanerura/lrucache/internal/iterutil"
	"github.com/karupanerura/lrucache/internal/slots"
)

// Entries yields entries from most to least recently used. Each range takes
// a snapshot under the lock and yields from it, so the loop body may use the
// cache. Stale entries are skipped unless AllowStale is set.
func (c *Cache[K, V]) Entries() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		c.walk(false, yield)
	}
}

// Backward yields entries from least to most recently used.
func (c *Cache[K, V]) Backward() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		c.walk(true, yield)
	}
}

// Keys yields keys from most to least recently used.
func (c *Cache[K, V]) Keys() iter.Seq[K] {
	return iterutil.Keys(c.Entries())
}

// Values yields values from most to least recently used.
func (c *Cache[K, V]) Values() iter.Seq[V] {
	return iterutil.Values(c.Entries())
}

func (c *Cache[K, V]) walk(backward bool, yield func(K, V) bool) {
	keys, values := c.snapshot(backward)
	for k, v := range iterutil.FromPairs(keys, values) {
		if !yield(k, c.cloneValue(v)) {
			return
		}
	}
}

func (c *Cache[K, V]) snapshot(backward bool) ([]K, []V) {
	c.mu.Lock()
	defer c.unlock()

	n := c.arena.Len()
	keys := make([]K, 0, n)
	values := make([]V, 0, n)

	i, step := c.arena.Head(), c.arena.Next
	if backward {
		i, step = c.arena.Tail(), c.arena.Prev
	}
	now := c.now()
	for ; i != slots.Nil; i = step(i) {
		if !c.defaults.allowStale && c.isStale(i, now) {
			continue
		}
		keys = append(keys, c.arena.Key(i))
		values = append(values, c.arena.Value(i))
	}
	return keys, values
}

// Package slots implements the storage arena behind the cache.
//
// An Arena keeps every per-entry field in parallel slices indexed by a slot id.
// Vacated slots are threaded onto a singly linked free chain that reuses the
// next slice, so once the arena has reached its working size no operation
// allocates. The same next/prev slices also form the recency list.
package slots

import (
	"errors"
	"fmt"
	"time"
)

// Nil is the slot id used for "no slot" at list boundaries and for misses.
const Nil int32 = -1

// Arena is a fixed-capacity (or geometrically growing) slot allocator.
// It is not safe for concurrent use.
type Arena[K comparable, V any] struct {
	keys     []K
	values   []V
	sizes    []int64
	starts   []time.Time
	ttls     []time.Duration
	gens     []uint64
	fetching []bool
	next     []int32
	prev     []int32

	limit    int
	occupied int

	head int32
	tail int32

	freeHead int32
	freeLen  int
}

// New creates an arena. When limit is positive all slot storage is allocated
// up front and Acquire never hands out more than limit slots. When limit is
// zero the storage grows by append as new slots are needed and never shrinks.
func New[K comparable, V any](limit int) *Arena[K, V] {
	if limit < 0 {
		panic("slots: limit must not be negative")
	}
	return &Arena[K, V]{
		keys:     make([]K, 0, limit),
		values:   make([]V, 0, limit),
		sizes:    make([]int64, 0, limit),
		starts:   make([]time.Time, 0, limit),
		ttls:     make([]time.Duration, 0, limit),
		gens:     make([]uint64, 0, limit),
		fetching: make([]bool, 0, limit),
		next:     make([]int32, 0, limit),
		prev:     make([]int32, 0, limit),
		limit:    limit,
		head:     Nil,
		tail:     Nil,
		freeHead: Nil,
	}
}

// Acquire returns a vacant slot id. Slots from the free chain are preferred;
// otherwise a never-used slot is taken. It returns false when the arena is
// full, in which case the caller must evict before trying again.
func (a *Arena[K, V]) Acquire() (int32, bool) {
	if a.freeHead != Nil {
		i := a.freeHead
		a.freeHead = a.next[i]
		a.freeLen--
		a.next[i] = Nil
		a.occupied++
		return i, true
	}
	if a.limit > 0 && len(a.keys) >= a.limit {
		return Nil, false
	}

	var (
		zeroK K
		zeroV V
	)
	i := int32(len(a.keys))
	if int(i) == len(a.gens) {
		a.gens = append(a.gens, 0)
	}
	a.keys = append(a.keys, zeroK)
	a.values = append(a.values, zeroV)
	a.sizes = append(a.sizes, 0)
	a.starts = append(a.starts, time.Time{})
	a.ttls = append(a.ttls, 0)
	a.fetching = append(a.fetching, false)
	a.next = append(a.next, Nil)
	a.prev = append(a.prev, Nil)
	a.occupied++
	return i, true
}

// Release clears the slot and pushes it onto the free chain.
// The slot must already be unlinked from the recency list.
func (a *Arena[K, V]) Release(i int32) {
	var (
		zeroK K
		zeroV V
	)
	a.keys[i] = zeroK
	a.values[i] = zeroV
	a.sizes[i] = 0
	a.starts[i] = time.Time{}
	a.ttls[i] = 0
	a.fetching[i] = false
	a.gens[i]++

	a.prev[i] = Nil
	a.next[i] = a.freeHead
	a.freeHead = i
	a.freeLen++
	a.occupied--
}

// Store writes an entry into slot i and advances its generation.
func (a *Arena[K, V]) Store(i int32, key K, value V, size int64, start time.Time, ttl time.Duration) {
	a.keys[i] = key
	a.values[i] = value
	a.sizes[i] = size
	a.starts[i] = start
	a.ttls[i] = ttl
	a.gens[i]++
}

// Replace swaps the value and size of slot i, keeping its TTL metadata,
// and advances its generation.
func (a *Arena[K, V]) Replace(i int32, value V, size int64) {
	a.values[i] = value
	a.sizes[i] = size
	a.gens[i]++
}

// Touch resets the creation time of slot i.
func (a *Arena[K, V]) Touch(i int32, start time.Time) {
	a.starts[i] = start
}

// SetTTL replaces both the creation time and the TTL of slot i.
func (a *Arena[K, V]) SetTTL(i int32, start time.Time, ttl time.Duration) {
	a.starts[i] = start
	a.ttls[i] = ttl
}

// SetFetching marks whether a background load is outstanding for slot i.
func (a *Arena[K, V]) SetFetching(i int32, fetching bool) {
	a.fetching[i] = fetching
}

// Key returns the key stored in slot i.
func (a *Arena[K, V]) Key(i int32) K { return a.keys[i] }

// Value returns the value stored in slot i.
func (a *Arena[K, V]) Value(i int32) V { return a.values[i] }

// Size returns the calculated size of slot i.
func (a *Arena[K, V]) Size(i int32) int64 { return a.sizes[i] }

// Start returns the time slot i's TTL counts from.
func (a *Arena[K, V]) Start(i int32) time.Time { return a.starts[i] }

// TTL returns the TTL of slot i, zero for none.
func (a *Arena[K, V]) TTL(i int32) time.Duration { return a.ttls[i] }

// Generation returns the write generation of slot i.
func (a *Arena[K, V]) Generation(i int32) uint64 { return a.gens[i] }

// Fetching reports whether a load is outstanding for slot i.
func (a *Arena[K, V]) Fetching(i int32) bool { return a.fetching[i] }

// Len returns the number of occupied slots.
func (a *Arena[K, V]) Len() int { return a.occupied }

// Allocated returns the number of slots ever handed out.
// It never decreases except through Reset.
func (a *Arena[K, V]) Allocated() int { return len(a.keys) }

// FreeLen returns the length of the free chain.
func (a *Arena[K, V]) FreeLen() int { return a.freeLen }

// Full reports whether Acquire would fail.
func (a *Arena[K, V]) Full() bool {
	return a.freeHead == Nil && a.limit > 0 && len(a.keys) >= a.limit
}

// Reset drops every entry while keeping the allocated capacity.
func (a *Arena[K, V]) Reset() {
	n := len(a.keys)
	clear(a.keys[:n])
	clear(a.values[:n])
	// gens is never truncated: a slot handed out again after Reset must not
	// reuse a generation observed before it.
	for i := range n {
		a.gens[i]++
	}
	a.keys = a.keys[:0]
	a.values = a.values[:0]
	a.sizes = a.sizes[:0]
	a.starts = a.starts[:0]
	a.ttls = a.ttls[:0]
	a.fetching = a.fetching[:0]
	a.next = a.next[:0]
	a.prev = a.prev[:0]

	a.occupied = 0
	a.head, a.tail = Nil, Nil
	a.freeHead, a.freeLen = Nil, 0
}

var errCorrupt = errors.New("slots: arena invariant violated")

// Validate walks the recency list and the free chain and checks that they
// partition the allocated slots. It is O(n) and intended for tests and
// diagnostics.
func (a *Arena[K, V]) Validate() error {
	seen := make([]bool, len(a.keys))

	listed := 0
	prev := Nil
	for i := a.head; i != Nil; i = a.next[i] {
		if seen[i] {
			return fmt.Errorf("%w: slot %d appears twice in the recency list", errCorrupt, i)
		}
		if a.prev[i] != prev {
			return fmt.Errorf("%w: slot %d has prev %d, want %d", errCorrupt, i, a.prev[i], prev)
		}
		seen[i] = true
		listed++
		prev = i
	}
	if prev != a.tail {
		return fmt.Errorf("%w: list ends at %d but tail is %d", errCorrupt, prev, a.tail)
	}
	if listed != a.occupied {
		return fmt.Errorf("%w: %d slots listed, %d occupied", errCorrupt, listed, a.occupied)
	}

	freed := 0
	for i := a.freeHead; i != Nil; i = a.next[i] {
		if seen[i] {
			return fmt.Errorf("%w: slot %d is both free and in use", errCorrupt, i)
		}
		seen[i] = true
		freed++
	}
	if freed != a.freeLen {
		return fmt.Errorf("%w: free chain has %d slots, counter says %d", errCorrupt, freed, a.freeLen)
	}
	if listed+freed != len(a.keys) {
		return fmt.Errorf("%w: %d listed + %d free != %d allocated", errCorrupt, listed, freed, len(a.keys))
	}
	return nil
}

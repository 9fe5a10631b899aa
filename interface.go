package lrucache

import (
	"context"
	"iter"
	"math"
	"time"
)

// Forever is reported by RemainingTTL for an entry stored without a TTL.
const Forever time.Duration = math.MaxInt64

// Store is the operation set shared by Cache and Sharded.
// Implementations must be thread-safe.
type Store[K comparable, V any] interface {
	// Set stores value under key, replacing any previous value.
	Set(key K, value V, opts ...Option) error

	// Get returns the fresh value for key and marks it most recently used.
	Get(key K, opts ...Option) (V, bool)

	// Peek returns the fresh value for key without touching its recency.
	Peek(key K, opts ...Option) (V, bool)

	// Has reports whether key holds a fresh value.
	Has(key K, opts ...Option) bool

	// Delete removes key. It reports whether anything was removed.
	Delete(key K) bool

	// Clear removes every entry.
	Clear()

	// Len returns the number of entries, stale ones included.
	Len() int

	// CalculatedSize returns the sum of the sizes of all entries.
	CalculatedSize() int64

	// RemainingTTL returns how long key stays fresh: Forever when it has no
	// TTL and 0 when it is absent or stale.
	RemainingTTL(key K) time.Duration

	// Entries yields key/value pairs from most to least recently used.
	Entries() iter.Seq2[K, V]

	// Keys yields keys from most to least recently used.
	Keys() iter.Seq[K]

	// Values yields values from most to least recently used.
	Values() iter.Seq[V]

	// PurgeStale removes every stale entry. It reports whether any was removed.
	PurgeStale() bool

	// Fetch returns the value for key, loading it with the configured Loader
	// when it is absent or stale.
	Fetch(ctx context.Context, key K, opts ...Option) (V, bool, error)

	// FetchMulti fetches several keys concurrently. Results are in key order.
	FetchMulti(ctx context.Context, keys []K, opts ...Option) ([]V, []bool, error)

	// Close stops background work and aborts outstanding loads.
	Close() error
}

var (
	_ Store[string, int] = (*Cache[string, int])(nil)
	_ Store[string, int] = (*Sharded[string, int])(nil)
)

// LoadRequest describes one load.
type LoadRequest[K comparable, V any] struct {
	// Key is the key being loaded.
	Key K

	// Stale is the value cached when the load was dispatched. It is only
	// meaningful when HasStale is true.
	Stale    V
	HasStale bool

	// Context is the value passed with WithFetchContext, if any.
	Context any
}

// LoadResult is a successfully loaded value.
type LoadResult[V any] struct {
	Value V

	// TTL overrides the TTL the value is stored with. Zero keeps the TTL
	// that applies to the Fetch call.
	TTL time.Duration
}

// Loader fills the cache on Fetch.
//
// Load runs on its own goroutine. Its context is cancelled with a cause when
// the key is deleted, overwritten or evicted, when the cache is cleared or
// closed, and when FetchTimeout elapses. A result delivered after that is
// discarded. Returning a nil *LoadResult with a nil error means the key does
// not exist: nothing is stored and a cached stale value is left in place.
type Loader[K comparable, V any] interface {
	Load(ctx context.Context, req *LoadRequest[K, V]) (*LoadResult[V], error)
}

// LoaderFunc is a function type that implements the Loader interface.
type LoaderFunc[K comparable, V any] func(ctx context.Context, req *LoadRequest[K, V]) (*LoadResult[V], error)

// Load calls the function.
func (f LoaderFunc[K, V]) Load(ctx context.Context, req *LoadRequest[K, V]) (*LoadResult[V], error) {
	return f(ctx, req)
}

// DisposeReason tells a DisposeFunc why a value left the cache.
type DisposeReason string

const (
	// ReasonEvict is used for entries removed by count or size pressure and by Pop.
	ReasonEvict DisposeReason = "evict"
	// ReasonSet is used for a value replaced by Set or by a completed load.
	ReasonSet DisposeReason = "set"
	// ReasonDelete is used for Delete and Clear.
	ReasonDelete DisposeReason = "delete"
	// ReasonExpire is used for stale entries removed on read or by PurgeStale.
	ReasonExpire DisposeReason = "expire"
	// ReasonFetch is used for a stale entry removed because its reload failed.
	ReasonFetch DisposeReason = "fetch"
)

// DisposeFunc is notified of every value leaving the cache.
type DisposeFunc[K comparable, V any] func(key K, value V, reason DisposeReason)

// SlotStats describes the slot arena of a cache.
type SlotStats struct {
	// Allocated is the number of slots ever handed out. It does not shrink.
	Allocated int
	// Free is the length of the free chain.
	Free int
	// Occupied is the number of slots holding an entry.
	Occupied int
}

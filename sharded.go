package lrucache

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/karupanerura/lrucache/internal/iterutil"
	"github.com/karupanerura/lrucache/internal/keyhash"
)

// DefaultShards is the number of shards NewSharded creates by default.
var DefaultShards = 16

// Sharded spreads keys over independent Caches selected by key hash, so
// operations on different shards do not contend for one lock.
//
// Bounds are split over the shards so that their sum equals Max and MaxSize.
// The shard count is lowered when Max or MaxSize is smaller than it, so every
// shard keeps a nonzero bound. MaxEntrySize is capped by the shard's MaxSize,
// so an entry close to MaxSize that New would accept can be rejected here.
// Recency is tracked per shard, so the entry evicted is the least recently
// used one of its shard, and Entries yields shard after shard.
type Sharded[K comparable, V any] struct {
	shards []*Cache[K, V]
	hash   func(K) uint64
}

// ShardOption configures NewSharded.
type ShardOption[K comparable, V any] interface {
	apply(*shardOptions[K, V])
}

type shardOptions[K comparable, V any] struct {
	shards int
	hash   func(K) uint64
}

type shardOptionFunc[K comparable, V any] func(*shardOptions[K, V])

func (f shardOptionFunc[K, V]) apply(o *shardOptions[K, V]) {
	f(o)
}

// WithShards sets the number of shards.
// The number of shards must be a natural number.
func WithShards[K comparable, V any](n int) ShardOption[K, V] {
	if n <= 0 {
		panic("lrucache: number of shards must be a natural number")
	}
	return shardOptionFunc[K, V](func(o *shardOptions[K, V]) {
		o.shards = n
	})
}

// WithKeyHash replaces the hash used to pick a key's shard.
func WithKeyHash[K comparable, V any](f func(K) uint64) ShardOption[K, V] {
	return shardOptionFunc[K, V](func(o *shardOptions[K, V]) {
		o.hash = f
	})
}

// NewSharded creates a Sharded cache whose shards share o, with the bounds
// split between them.
func NewSharded[K comparable, V any](o Options[K, V], opts ...ShardOption[K, V]) (*Sharded[K, V], error) {
	so := shardOptions[K, V]{shards: DefaultShards}
	for _, opt := range opts {
		opt.apply(&so)
	}
	if so.hash == nil {
		so.hash = keyhash.For[K]()
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	n := so.shards
	if o.Max > 0 && o.Max < n {
		n = o.Max
	}
	if o.MaxSize > 0 && o.MaxSize < int64(n) {
		n = int(o.MaxSize)
	}

	s := &Sharded[K, V]{
		shards: make([]*Cache[K, V], n),
		hash:   so.hash,
	}
	for i := range s.shards {
		shard := o
		shard.Max = splitBound(o.Max, n, i)
		shard.MaxSize = splitBound(o.MaxSize, int64(n), int64(i))
		if shard.MaxSize > 0 && shard.MaxEntrySize > shard.MaxSize {
			shard.MaxEntrySize = shard.MaxSize
		}
		if o.Logger != nil {
			shard.Logger = o.Logger.With("shard", i)
		}
		c, err := New(shard)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.shards[i] = c
	}
	return s, nil
}

// splitBound returns shard i's part of bound split over n shards. The parts
// sum to bound and the first bound%n shards take one more each.
func splitBound[T int | int64](bound, n, i T) T {
	part := bound / n
	if i < bound%n {
		part++
	}
	return part
}

func (s *Sharded[K, V]) shard(key K) *Cache[K, V] {
	return s.shards[s.hash(key)%uint64(len(s.shards))]
}

// Set stores value under key in the key's shard.
func (s *Sharded[K, V]) Set(key K, value V, opts ...Option) error {
	return s.shard(key).Set(key, value, opts...)
}

// Get returns the value for key from the key's shard.
func (s *Sharded[K, V]) Get(key K, opts ...Option) (V, bool) {
	return s.shard(key).Get(key, opts...)
}

// Peek returns the value for key without updating its recency.
func (s *Sharded[K, V]) Peek(key K, opts ...Option) (V, bool) {
	return s.shard(key).Peek(key, opts...)
}

// Has reports whether key is present in its shard.
func (s *Sharded[K, V]) Has(key K, opts ...Option) bool {
	return s.shard(key).Has(key, opts...)
}

// Delete removes key from its shard.
func (s *Sharded[K, V]) Delete(key K) bool {
	return s.shard(key).Delete(key)
}

// RemainingTTL returns the time left before key becomes stale.
func (s *Sharded[K, V]) RemainingTTL(key K) time.Duration {
	return s.shard(key).RemainingTTL(key)
}

// Fetch fetches key through the key's shard.
func (s *Sharded[K, V]) Fetch(ctx context.Context, key K, opts ...Option) (V, bool, error) {
	return s.shard(key).Fetch(ctx, key, opts...)
}

// FetchMulti fetches keys concurrently and returns their values in key order.
func (s *Sharded[K, V]) FetchMulti(ctx context.Context, keys []K, opts ...Option) ([]V, []bool, error) {
	return fetchMulti(ctx, s.Fetch, keys, opts)
}

// Clear empties every shard.
func (s *Sharded[K, V]) Clear() {
	for _, c := range s.shards {
		c.Clear()
	}
}

// Len sums the shard lengths. Shards are read one after another, so the sum
// is not a snapshot under concurrent writes.
func (s *Sharded[K, V]) Len() int {
	n := 0
	for _, c := range s.shards {
		n += c.Len()
	}
	return n
}

// CalculatedSize sums the calculated sizes of all shards.
func (s *Sharded[K, V]) CalculatedSize() int64 {
	var total int64
	for _, c := range s.shards {
		total += c.CalculatedSize()
	}
	return total
}

// PurgeStale removes stale entries from every shard and reports whether any was removed.
func (s *Sharded[K, V]) PurgeStale() bool {
	purged := false
	for _, c := range s.shards {
		if c.PurgeStale() {
			purged = true
		}
	}
	return purged
}

// Entries yields the entries of each shard, most recently used first within a shard.
func (s *Sharded[K, V]) Entries() iter.Seq2[K, V] {
	seqs := make([]iter.Seq2[K, V], len(s.shards))
	for i, c := range s.shards {
		seqs[i] = c.Entries()
	}
	return iterutil.Concat2(seqs...)
}

// Keys yields the keys in Entries order.
func (s *Sharded[K, V]) Keys() iter.Seq[K] {
	return iterutil.Keys(s.Entries())
}

// Values yields the values in Entries order.
func (s *Sharded[K, V]) Values() iter.Seq[V] {
	return iterutil.Values(s.Entries())
}

// SlotStats sums the slot statistics of all shards.
func (s *Sharded[K, V]) SlotStats() SlotStats {
	var total SlotStats
	for _, c := range s.shards {
		st := c.SlotStats()
		total.Allocated += st.Allocated
		total.Free += st.Free
		total.Occupied += st.Occupied
	}
	return total
}

// Close closes every shard.
func (s *Sharded[K, V]) Close() error {
	var errs []error
	for _, c := range s.shards {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package lrucache

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/karupanerura/lrucache/expiration"
	"github.com/karupanerura/lrucache/internal/flight"
	"github.com/karupanerura/lrucache/internal/safecall"
	"github.com/karupanerura/lrucache/internal/slots"
	"github.com/karupanerura/lrucache/internal/sweeper"
)

// Cache is a bounded LRU cache. It is safe for concurrent use.
//
// Every operation holds one mutex for its whole synchronous part, so
// operations on the same cache are atomic with respect to each other. Only
// Fetch waits, and it waits without holding the lock.
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	arena   *slots.Arena[K, V]
	index   map[K]int32
	total   int64
	flights flight.Group[K, V]

	max          int
	maxSize      int64
	maxEntrySize int64
	ttl          time.Duration
	// ttlSeen is set once any entry carries a TTL; until then the clock is
	// never read.
	ttlSeen bool

	sizer        Sizer[K, V]
	policy       expiration.ExpirationPolicy
	clock        Clock
	cloner       ValueCloner[V]
	dispose      DisposeFunc[K, V]
	disposeAfter DisposeFunc[K, V]
	loader       Loader[K, V]
	fetchTimeout time.Duration
	background   func() context.Context
	onError      func(error)
	logger       *log.Logger

	defaults callOptions

	// drained by unlock
	afterQueue []disposal[K, V]
	errQueue   []error

	closed      bool
	stopSweeper context.CancelFunc
	sweeper     *sweeper.Sweeper
}

type disposal[K comparable, V any] struct {
	key    K
	value  V
	reason DisposeReason
}

// New creates a Cache. It returns ErrInvalidConfiguration when o is
// contradictory.
func New[K comparable, V any](o Options[K, V]) (*Cache[K, V], error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		arena:        slots.New[K, V](o.Max),
		index:        make(map[K]int32, o.Max),
		max:          o.Max,
		maxSize:      o.MaxSize,
		maxEntrySize: cmp.Or(o.MaxEntrySize, o.MaxSize),
		ttl:          o.TTL,
		ttlSeen:      o.TTL > 0,
		sizer:        o.SizeCalculation,
		policy:       o.ExpirationPolicy,
		clock:        o.Clock,
		cloner:       o.Cloner,
		dispose:      o.Dispose,
		disposeAfter: o.DisposeAfter,
		loader:       o.Loader,
		fetchTimeout: o.FetchTimeout,
		background:   o.BackgroundContext,
		onError:      o.OnError,
		logger:       o.Logger,
		defaults: callOptions{
			allowStale:                 o.AllowStale,
			updateAgeOnGet:             o.UpdateAgeOnGet,
			updateAgeOnHas:             o.UpdateAgeOnHas,
			noDeleteOnStaleGet:         o.NoDeleteOnStaleGet,
			noUpdateTTL:                o.NoUpdateTTL,
			noDisposeOnSet:             o.NoDisposeOnSet,
			allowStaleOnFetchRejection: o.AllowStaleOnFetchRejection,
			allowStaleOnFetchAbort:     o.AllowStaleOnFetchAbort,
			noDeleteOnFetchRejection:   o.NoDeleteOnFetchRejection,
		},
	}
	if c.policy == nil {
		c.policy = expiration.GeneralExpirationPolicy{}
	}
	if c.clock == nil {
		c.clock = SystemClock
	}
	if c.background == nil {
		c.background = context.Background
	}

	if o.Max == 0 && o.MaxSize == 0 && !o.TTLAutopurge {
		c.warn("cache has no count or size bound and no autopurge; stale entries are only dropped when read", "ttl", o.TTL)
	}
	if o.TTLAutopurge {
		interval := cmp.Or(o.AutopurgeInterval, o.TTL)
		ctx, cancel := context.WithCancel(context.Background())
		c.sweeper = sweeper.New(c.sweep, interval, o.OnError)
		c.stopSweeper = cancel
		c.sweeper.Launch(ctx)
	}
	return c, nil
}

// Set stores value under key and marks it most recently used. It fails with
// ErrSizeCalculation or ErrEntryTooLarge without changing the cache.
func (c *Cache[K, V]) Set(key K, value V, opts ...Option) error {
	co := c.resolve(opts)
	st := statusOf[V](&co)
	value = c.cloneValue(value)

	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	return c.set(key, value, &co, st)
}

func (c *Cache[K, V]) set(key K, value V, co *callOptions, st *Status[V]) error {
	size, err := c.sizeOf(key, value, co)
	if err != nil {
		if st != nil {
			st.Set = SetMiss
		}
		return err
	}
	if st != nil {
		st.EntrySize = size
		st.SizeBefore = c.total
	}
	if c.maxEntrySize > 0 && size > c.maxEntrySize {
		if st != nil {
			st.Set = SetMiss
			st.MaxEntrySizeExceeded = true
			st.TotalCalculatedSize = c.total
		}
		return fmt.Errorf("%w: %d > %d", ErrEntryTooLarge, size, c.maxEntrySize)
	}

	ttl := c.ttl
	if co.hasTTL {
		ttl = co.ttl
	}
	if ttl > 0 {
		c.ttlSeen = true
	}
	now := c.now()

	if i, ok := c.index[key]; ok {
		c.replace(i, key, value, size, now, ttl, co, st)
	} else {
		c.add(key, value, size, now, ttl, st)
	}
	c.reconcile(now, st)
	if st != nil {
		st.TotalCalculatedSize = c.total
	}
	return nil
}

func (c *Cache[K, V]) add(key K, value V, size int64, now time.Time, ttl time.Duration, st *Status[V]) {
	if c.flights.Len() > 0 {
		c.flights.Abort(key, errAbortReplaced)
	}
	if c.arena.Full() {
		c.evict(c.arena.Tail(), now, st, false)
	}
	i, _ := c.arena.Acquire()
	c.arena.Store(i, key, value, size, now, ttl)
	c.arena.PushHead(i)
	c.index[key] = i
	c.total += size

	if st != nil {
		st.Set = SetAdd
		c.recordTTL(st, i, now)
	}
}

func (c *Cache[K, V]) replace(i int32, key K, value V, size int64, now time.Time, ttl time.Duration, co *callOptions, st *Status[V]) {
	if c.flights.Len() > 0 {
		c.flights.Abort(key, errAbortReplaced)
	}
	c.arena.SetFetching(i, false)

	old := c.arena.Value(i)
	if st != nil {
		st.Set = SetReplace
		st.OldValue = old
		st.HasOldValue = true
	}
	if !co.noDisposeOnSet {
		c.notify(key, old, ReasonSet)
	}
	c.total += size - c.arena.Size(i)
	c.arena.Replace(i, value, size)
	if !co.noUpdateTTL {
		c.arena.SetTTL(i, now, ttl)
	}
	c.arena.MoveToHead(i)
	c.recordTTL(st, i, now)
}

// Get returns the value for key and marks it most recently used. A stale
// entry is a miss unless stale reads are allowed; either way it is removed
// unless NoDeleteOnStaleGet applies or a reload is in flight.
func (c *Cache[K, V]) Get(key K, opts ...Option) (V, bool) {
	co := c.resolve(opts)
	st := statusOf[V](&co)

	c.mu.Lock()
	v, ok := c.get(key, &co, st)
	c.unlock()
	if !ok {
		return v, false
	}
	return c.cloneValue(v), true
}

func (c *Cache[K, V]) get(key K, co *callOptions, st *Status[V]) (V, bool) {
	var zero V
	i, ok := c.index[key]
	if !ok {
		if st != nil {
			st.Get = GetMiss
		}
		return zero, false
	}

	now := c.now()
	c.recordTTL(st, i, now)
	value := c.arena.Value(i)
	if c.isStale(i, now) {
		if st != nil {
			st.Get = GetStale
		}
		if !co.noDeleteOnStaleGet && !c.arena.Fetching(i) {
			c.remove(i, ReasonExpire)
		}
		if co.allowStale {
			if st != nil {
				st.ReturnedStale = true
			}
			return value, true
		}
		return zero, false
	}

	if st != nil {
		st.Get = GetHit
	}
	c.arena.MoveToHead(i)
	if co.updateAgeOnGet {
		c.arena.Touch(i, now)
	}
	return value, true
}

// Peek returns the value for key without changing its recency or age.
// Stale entries are never removed by Peek.
func (c *Cache[K, V]) Peek(key K, opts ...Option) (V, bool) {
	var zero V
	co := c.resolve(opts)
	st := statusOf[V](&co)

	c.mu.Lock()
	defer c.unlock()
	i, ok := c.index[key]
	if !ok {
		if st != nil {
			st.Get = GetMiss
		}
		return zero, false
	}
	now := c.now()
	c.recordTTL(st, i, now)
	if c.isStale(i, now) {
		if st != nil {
			st.Get = GetStale
		}
		if !co.allowStale {
			return zero, false
		}
		if st != nil {
			st.ReturnedStale = true
		}
	} else if st != nil {
		st.Get = GetHit
	}
	return c.cloneValue(c.arena.Value(i)), true
}

// Has reports whether key holds a fresh value. It does not change recency.
func (c *Cache[K, V]) Has(key K, opts ...Option) bool {
	co := c.resolve(opts)
	st := statusOf[V](&co)

	c.mu.Lock()
	defer c.unlock()
	i, ok := c.index[key]
	if !ok {
		if st != nil {
			st.Has = GetMiss
		}
		return false
	}
	now := c.now()
	c.recordTTL(st, i, now)
	if c.isStale(i, now) {
		if st != nil {
			st.Has = GetStale
		}
		return false
	}
	if co.updateAgeOnHas {
		c.arena.Touch(i, now)
	}
	if st != nil {
		st.Has = GetHit
	}
	return true
}

// Delete removes key and aborts any load outstanding for it.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.unlock()

	deleted := c.flights.Len() > 0 && c.flights.Abort(key, errAbortDeleted)
	if i, ok := c.index[key]; ok {
		c.remove(i, ReasonDelete)
		deleted = true
	}
	return deleted
}

// Clear removes every entry and aborts every outstanding load. The slot
// storage is kept for reuse.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.unlock()

	c.flights.AbortAll(errAbortCleared)
	for i := c.arena.Tail(); i != slots.Nil; i = c.arena.Prev(i) {
		c.notify(c.arena.Key(i), c.arena.Value(i), ReasonDelete)
	}
	c.arena.Reset()
	clear(c.index)
	c.total = 0
}

// Pop removes and returns the least recently used entry, stale or not.
func (c *Cache[K, V]) Pop() (K, V, bool) {
	c.mu.Lock()
	defer c.unlock()

	i := c.arena.Tail()
	if i == slots.Nil {
		var (
			zeroK K
			zeroV V
		)
		return zeroK, zeroV, false
	}
	key, value := c.arena.Key(i), c.arena.Value(i)
	c.remove(i, ReasonEvict)
	return key, c.cloneValue(value), true
}

// Len returns the number of entries, stale ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena.Len()
}

// CalculatedSize returns the sum of entry sizes.
func (c *Cache[K, V]) CalculatedSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Max returns the entry-count bound, 0 when unbounded.
func (c *Cache[K, V]) Max() int { return c.max }

// MaxSize returns the aggregate size bound, 0 when unbounded.
func (c *Cache[K, V]) MaxSize() int64 { return c.maxSize }

// RemainingTTL returns how long key stays fresh: Forever for an entry without
// a TTL, 0 for an absent or stale one.
func (c *Cache[K, V]) RemainingTTL(key K) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		return 0
	}
	ttl := c.arena.TTL(i)
	if ttl <= 0 {
		return Forever
	}
	now := c.now()
	if c.isStale(i, now) {
		return 0
	}
	return max(c.arena.Start(i).Add(ttl).Sub(now), 0)
}

// SlotStats reports the state of the slot arena.
func (c *Cache[K, V]) SlotStats() SlotStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SlotStats{
		Allocated: c.arena.Allocated(),
		Free:      c.arena.FreeLen(),
		Occupied:  c.arena.Len(),
	}
}

// Close stops the autopurge loop and aborts outstanding loads. Entries stay
// readable; Set and Fetch fail with ErrClosed afterwards. Close is idempotent.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return nil
	}
	c.closed = true
	c.flights.AbortAll(errAbortClosed)
	c.unlock()

	if c.stopSweeper != nil {
		c.stopSweeper()
		<-c.sweeper.Done()
	}
	c.debug("cache closed")
	return nil
}

func (c *Cache[K, V]) resolve(opts []Option) callOptions {
	if len(opts) == 0 {
		return c.defaults
	}
	o := c.defaults
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

// unlock releases the lock, then runs the DisposeAfter callbacks and error
// reports queued while it was held.
func (c *Cache[K, V]) unlock() {
	after, errs := c.afterQueue, c.errQueue
	c.afterQueue, c.errQueue = nil, nil
	c.mu.Unlock()

	for _, d := range after {
		if err := callDispose(c.disposeAfter, d.key, d.value, d.reason); err != nil {
			c.warn("dispose-after callback panicked", "reason", d.reason, "err", err)
			if c.onError != nil {
				c.onError(err)
			}
		}
	}
	for _, err := range errs {
		c.onError(err)
	}
}

// notify fires the disposal callbacks for a value leaving the cache.
func (c *Cache[K, V]) notify(key K, value V, reason DisposeReason) {
	if c.dispose != nil {
		if err := callDispose(c.dispose, key, value, reason); err != nil {
			c.warn("dispose callback panicked", "reason", reason, "err", err)
			c.report(err)
		}
	}
	if c.disposeAfter != nil {
		c.afterQueue = append(c.afterQueue, disposal[K, V]{key: key, value: value, reason: reason})
	}
}

func callDispose[K comparable, V any](f DisposeFunc[K, V], key K, value V, reason DisposeReason) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w (%s): %w", ErrDispose, reason, err)
		}
	}()
	defer safecall.Recover(&err)
	f(key, value, reason)
	return nil
}

// report queues err for OnError. It must be called with the lock held.
func (c *Cache[K, V]) report(err error) {
	if c.onError != nil {
		c.errQueue = append(c.errQueue, err)
	}
}

func (c *Cache[K, V]) now() time.Time {
	if !c.ttlSeen {
		return time.Time{}
	}
	return c.clock.Now()
}

func (c *Cache[K, V]) isStale(i int32, now time.Time) bool {
	ttl := c.arena.TTL(i)
	if ttl <= 0 {
		return false
	}
	return c.policy.IsExpired(now, expiration.ExpiresAt(c.arena.Start(i), ttl))
}

func (c *Cache[K, V]) sweep(context.Context) error {
	if c.PurgeStale() {
		c.debug("autopurge removed stale entries")
	}
	return nil
}

func (c *Cache[K, V]) debug(msg string, keyvals ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keyvals...)
	}
}

func (c *Cache[K, V]) warn(msg string, keyvals ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keyvals...)
	}
}

package lrucache

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/karupanerura/lrucache/expiration"
)

// Options configures a Cache. At least one of Max, MaxSize and TTL must be
// set. The zero value of every other field is a usable default.
type Options[K comparable, V any] struct {
	// Max caps the number of entries. Slot storage for Max entries is
	// allocated up front.
	Max int

	// MaxSize caps the sum of entry sizes. Entry sizes come from WithSize
	// or SizeCalculation; Set fails with ErrSizeCalculation when neither
	// applies.
	MaxSize int64

	// MaxEntrySize caps the size of a single entry. It defaults to MaxSize
	// and may not exceed it.
	MaxEntrySize int64

	// SizeCalculation measures entries that are stored without WithSize.
	SizeCalculation Sizer[K, V]

	// TTL is the default time-to-live of new entries. Zero means entries
	// never go stale unless a per-call TTL is given.
	TTL time.Duration

	// TTLAutopurge removes stale entries in the background every
	// AutopurgeInterval (TTL when unset). It requires TTL.
	TTLAutopurge      bool
	AutopurgeInterval time.Duration

	// AllowStale makes reads return stale values (once) instead of misses.
	AllowStale bool

	// UpdateAgeOnGet restarts an entry's TTL on every Get hit.
	UpdateAgeOnGet bool

	// UpdateAgeOnHas restarts an entry's TTL on every Has hit.
	UpdateAgeOnHas bool

	// NoDeleteOnStaleGet leaves stale entries in place when Get finds them.
	NoDeleteOnStaleGet bool

	// NoUpdateTTL keeps the TTL of an existing entry when Set replaces it.
	NoUpdateTTL bool

	// NoDisposeOnSet skips disposal notifications for values replaced by Set.
	NoDisposeOnSet bool

	// Dispose is called for every value leaving the cache, with the cache
	// lock held and before its slot is reused. It must not call the cache.
	Dispose DisposeFunc[K, V]

	// DisposeAfter is called like Dispose, but after the operation that
	// removed the value has released the cache lock.
	DisposeAfter DisposeFunc[K, V]

	// Loader populates the cache on Fetch. Without one, Fetch behaves as Get.
	Loader Loader[K, V]

	// FetchTimeout bounds each load. Zero means no limit.
	FetchTimeout time.Duration

	// AllowStaleOnFetchRejection serves the stale value to waiters of a
	// failed load instead of the error.
	AllowStaleOnFetchRejection bool

	// AllowStaleOnFetchAbort serves the stale value to waiters of an aborted
	// load instead of the abort error.
	AllowStaleOnFetchAbort bool

	// NoDeleteOnFetchRejection keeps the stale entry when its reload fails.
	NoDeleteOnFetchRejection bool

	// BackgroundContext supplies the parent context of every load.
	// It defaults to context.Background.
	BackgroundContext func() context.Context

	// Clock defaults to SystemClock.
	Clock Clock

	// ExpirationPolicy decides staleness. It defaults to
	// expiration.GeneralExpirationPolicy.
	ExpirationPolicy expiration.ExpirationPolicy

	// Cloner, when set, copies values stored into and read out of the cache.
	Cloner ValueCloner[V]

	// OnError receives failures no caller can be told about: panicking
	// dispose callbacks and background loads nobody waits for.
	OnError func(error)

	// Logger receives debug events and configuration warnings. Nil disables
	// logging.
	Logger *log.Logger
}

// callOptions is the resolved per-call configuration.
type callOptions struct {
	ttl    time.Duration
	hasTTL bool

	size    int64
	hasSize bool

	// status holds a *Status[V]; Option is not generic over V.
	status any

	allowStale         bool
	updateAgeOnGet     bool
	updateAgeOnHas     bool
	noDeleteOnStaleGet bool
	noUpdateTTL        bool
	noDisposeOnSet     bool

	forceRefresh               bool
	fetchContext               any
	allowStaleOnFetchRejection bool
	allowStaleOnFetchAbort     bool
	noDeleteOnFetchRejection   bool
}

// Option overrides cache-wide Options for a single call.
type Option interface {
	apply(*callOptions)
}

type optionFunc func(*callOptions)

func (f optionFunc) apply(o *callOptions) {
	f(o)
}

// WithTTL stores the entry with ttl instead of the cache default.
// Zero stores it without a TTL.
func WithTTL(ttl time.Duration) Option {
	return optionFunc(func(o *callOptions) {
		o.ttl = ttl
		o.hasTTL = true
	})
}

// WithSize stores the entry with an explicit size, bypassing SizeCalculation.
func WithSize(size int64) Option {
	return optionFunc(func(o *callOptions) {
		o.size = size
		o.hasSize = true
	})
}

type statusOption struct {
	status any
}

func (s statusOption) apply(o *callOptions) {
	o.status = s.status
}

// WithStatus makes the call describe what it did in s.
// s must be a *Status of the cache's value type.
func WithStatus[V any](s *Status[V]) Option {
	return statusOption{status: s}
}

// WithAllowStale overrides Options.AllowStale.
func WithAllowStale(allow bool) Option {
	return optionFunc(func(o *callOptions) { o.allowStale = allow })
}

// WithUpdateAgeOnGet overrides Options.UpdateAgeOnGet.
func WithUpdateAgeOnGet(update bool) Option {
	return optionFunc(func(o *callOptions) { o.updateAgeOnGet = update })
}

// WithUpdateAgeOnHas overrides Options.UpdateAgeOnHas.
func WithUpdateAgeOnHas(update bool) Option {
	return optionFunc(func(o *callOptions) { o.updateAgeOnHas = update })
}

// WithNoDeleteOnStaleGet overrides Options.NoDeleteOnStaleGet.
func WithNoDeleteOnStaleGet(noDelete bool) Option {
	return optionFunc(func(o *callOptions) { o.noDeleteOnStaleGet = noDelete })
}

// WithNoUpdateTTL overrides Options.NoUpdateTTL.
func WithNoUpdateTTL(noUpdate bool) Option {
	return optionFunc(func(o *callOptions) { o.noUpdateTTL = noUpdate })
}

// WithNoDisposeOnSet overrides Options.NoDisposeOnSet.
func WithNoDisposeOnSet(noDispose bool) Option {
	return optionFunc(func(o *callOptions) { o.noDisposeOnSet = noDispose })
}

// WithForceRefresh makes Fetch reload the key even when its value is fresh.
func WithForceRefresh() Option {
	return optionFunc(func(o *callOptions) { o.forceRefresh = true })
}

// WithFetchContext passes v to the Loader as LoadRequest.Context.
func WithFetchContext(v any) Option {
	return optionFunc(func(o *callOptions) { o.fetchContext = v })
}

// WithAllowStaleOnFetchRejection overrides Options.AllowStaleOnFetchRejection.
func WithAllowStaleOnFetchRejection(allow bool) Option {
	return optionFunc(func(o *callOptions) { o.allowStaleOnFetchRejection = allow })
}

// WithAllowStaleOnFetchAbort overrides Options.AllowStaleOnFetchAbort.
func WithAllowStaleOnFetchAbort(allow bool) Option {
	return optionFunc(func(o *callOptions) { o.allowStaleOnFetchAbort = allow })
}

// WithNoDeleteOnFetchRejection overrides Options.NoDeleteOnFetchRejection.
func WithNoDeleteOnFetchRejection(noDelete bool) Option {
	return optionFunc(func(o *callOptions) { o.noDeleteOnFetchRejection = noDelete })
}

// withoutStatus drops WithStatus options, which cannot be shared between
// concurrent calls.
func withoutStatus(opts []Option) []Option {
	out := make([]Option, 0, len(opts))
	for _, o := range opts {
		if _, ok := o.(statusOption); !ok {
			out = append(out, o)
		}
	}
	return out
}

func (o *Options[K, V]) validate() error {
	switch {
	case o.Max < 0:
		return fmt.Errorf("%w: Max must not be negative", ErrInvalidConfiguration)
	case o.MaxSize < 0:
		return fmt.Errorf("%w: MaxSize must not be negative", ErrInvalidConfiguration)
	case o.MaxEntrySize < 0:
		return fmt.Errorf("%w: MaxEntrySize must not be negative", ErrInvalidConfiguration)
	case o.TTL < 0:
		return fmt.Errorf("%w: TTL must not be negative", ErrInvalidConfiguration)
	case o.AutopurgeInterval < 0:
		return fmt.Errorf("%w: AutopurgeInterval must not be negative", ErrInvalidConfiguration)
	case o.FetchTimeout < 0:
		return fmt.Errorf("%w: FetchTimeout must not be negative", ErrInvalidConfiguration)
	case o.Max == 0 && o.MaxSize == 0 && o.TTL == 0:
		return fmt.Errorf("%w: at least one of Max, MaxSize and TTL must be set", ErrInvalidConfiguration)
	case o.TTLAutopurge && o.TTL == 0:
		return fmt.Errorf("%w: TTLAutopurge requires TTL", ErrInvalidConfiguration)
	case o.MaxSize > 0 && o.MaxEntrySize > o.MaxSize:
		return fmt.Errorf("%w: MaxEntrySize %d exceeds MaxSize %d", ErrInvalidConfiguration, o.MaxEntrySize, o.MaxSize)
	case o.Max > math.MaxInt32:
		return fmt.Errorf("%w: Max %d exceeds the slot id range", ErrInvalidConfiguration, o.Max)
	}
	return nil
}

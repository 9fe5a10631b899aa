package lrucache

import (
	"time"
)

// SetResult describes what Set did.
type SetResult string

const (
	SetAdd     SetResult = "add"
	SetReplace SetResult = "replace"
	SetMiss    SetResult = "miss"
)

// GetResult describes what Get, Peek or Has found.
type GetResult string

const (
	GetHit   GetResult = "hit"
	GetStale GetResult = "stale"
	GetMiss  GetResult = "miss"
)

// FetchResult describes how Fetch obtained its value.
type FetchResult string

const (
	// FetchGet means no Loader is configured and Fetch acted as Get.
	FetchGet FetchResult = "get"
	// FetchInflight means the call attached to an outstanding load.
	FetchInflight FetchResult = "inflight"
	// FetchMiss means the key was absent and a load was dispatched.
	FetchMiss FetchResult = "miss"
	// FetchHit means a fresh cached value was returned.
	FetchHit FetchResult = "hit"
	// FetchStale means the value was stale and a load was dispatched.
	FetchStale FetchResult = "stale"
	// FetchRefresh means a fresh value was reloaded on request.
	FetchRefresh FetchResult = "refresh"
)

// Evictions counts entries removed to make room, by the constraint that
// forced them out. An entry that was already stale counts under TTL.
type Evictions struct {
	Capacity int
	Size     int
	TTL      int
}

// Status is filled by an operation called with WithStatus. Only the fields
// relevant to the operation are touched.
type Status[V any] struct {
	Set   SetResult
	Has   GetResult
	Get   GetResult
	Fetch FetchResult

	// TTL bookkeeping of the entry the operation looked at.
	TTL          time.Duration
	Start        time.Time
	Now          time.Time
	RemainingTTL time.Duration

	// Sizes, for Set.
	EntrySize            int64
	SizeBefore           int64
	TotalCalculatedSize  int64
	MaxEntrySizeExceeded bool

	// OldValue is the value replaced by Set.
	OldValue    V
	HasOldValue bool

	// ReturnedStale is set when a stale value was handed back.
	ReturnedStale bool

	Evicted Evictions

	FetchDispatched bool
	FetchUpdated    bool
	FetchResolved   bool
	FetchRejected   bool
	FetchAborted    bool
	FetchError      error
}

func statusOf[V any](co *callOptions) *Status[V] {
	if co.status == nil {
		return nil
	}
	st, _ := co.status.(*Status[V])
	return st
}

// recordTTL copies the TTL bookkeeping of slot i into st.
func (c *Cache[K, V]) recordTTL(st *Status[V], i int32, now time.Time) {
	if st == nil {
		return
	}
	ttl := c.arena.TTL(i)
	st.TTL = ttl
	st.Start = c.arena.Start(i)
	st.Now = now
	if ttl <= 0 {
		st.RemainingTTL = Forever
		return
	}
	st.RemainingTTL = max(st.Start.Add(ttl).Sub(now), 0)
}

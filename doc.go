// Package lrucache provides an in-process least-recently-used cache bounded by
// entry count, aggregate entry size and per-entry TTL.
//
// Entries live in a slot arena: parallel slices indexed by slot id, with a
// doubly linked recency list and a free chain threaded through the same index
// slices. Once a cache has reached its working size, Set/Get/Delete churn
// reuses vacated slots instead of allocating new ones.
//
// Values can also be populated on demand with a Loader. Concurrent Fetch calls
// for the same key share one load, stale values can be served while they are
// revalidated in the background, and a load whose key was overwritten, deleted
// or evicted in the meantime is discarded instead of installed.
//
// Basic usage:
//
//	cache, err := lrucache.New(lrucache.Options[string, []byte]{
//		Max: 1000,
//		TTL: 5 * time.Minute,
//	})
//	if err != nil {
//		return err
//	}
//	_ = cache.Set("k", []byte("v"))
//	v, ok := cache.Get("k")
package lrucache

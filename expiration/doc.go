// Package expiration decides when a cached entry has outlived its TTL.
//
// The cache asks a Policy only for entries that carry a TTL; entries stored
// without one never consult it. Policies are called with the cache lock held
// and must be cheap and must not call back into the cache.
package expiration

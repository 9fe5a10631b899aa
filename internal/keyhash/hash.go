// Package keyhash derives a shard selector hash for arbitrary comparable keys.
package keyhash

import (
	"hash/maphash"
	"math"
	"sync"

	"github.com/goccy/go-reflect"
)

var (
	hashersMu sync.RWMutex
	hashers   = map[reflect.Type]any{}

	// seed for keys without a dedicated encoder. Hashes of such keys are only
	// stable within the process, which is all sharding needs.
	seed = maphash.MakeSeed()
)

// For returns the hash function for K. Functions are built once per key type
// and shared afterwards.
func For[K comparable]() func(K) uint64 {
	typ := reflect.TypeOf((*K)(nil)).Elem()

	hashersMu.RLock()
	f, ok := hashers[typ].(func(K) uint64)
	hashersMu.RUnlock()
	if ok {
		return f
	}

	hashersMu.Lock()
	defer hashersMu.Unlock()
	if f, ok := hashers[typ].(func(K) uint64); ok {
		return f
	}
	h := build[K]()
	hashers[typ] = h
	return h
}

// build picks a fixed-width FNV-1a encoder for primitive keys and falls back
// to maphash for everything else (structs, arrays, pointers, interfaces).
func build[K comparable]() func(K) uint64 {
	var zero K
	switch any(zero).(type) {
	case int:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(int)), 8) }
	case int8:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(int8)), 1) }
	case int16:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(int16)), 2) }
	case int32:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(int32)), 4) }
	case int64:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(int64)), 8) }
	case uint:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(uint)), 8) }
	case uint8:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(uint8)), 1) }
	case uint16:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(uint16)), 2) }
	case uint32:
		return func(k K) uint64 { return fnvUint(uint64(any(k).(uint32)), 4) }
	case uint64:
		return func(k K) uint64 { return fnvUint(any(k).(uint64), 8) }
	case float32:
		return func(k K) uint64 { return fnvUint(uint64(math.Float32bits(any(k).(float32))), 4) }
	case float64:
		return func(k K) uint64 { return fnvUint(math.Float64bits(any(k).(float64)), 8) }
	case string:
		return func(k K) uint64 { return String(any(k).(string)) }
	default:
		return func(k K) uint64 { return maphash.Comparable(seed, k) }
	}
}

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// String returns the 64-bit FNV-1a hash of s.
func String(s string) uint64 {
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// fnvUint hashes the low width bytes of v in big-endian order.
func fnvUint(v uint64, width int) uint64 {
	h := uint64(offset64)
	for shift := 8 * (width - 1); shift >= 0; shift -= 8 {
		h ^= uint64(byte(v >> shift))
		h *= prime64
	}
	return h
}

package lrucache

import (
	"fmt"

	"github.com/goccy/go-reflect"
	"github.com/karupanerura/lrucache/internal/safecall"
)

// Sizer reports the size an entry contributes to MaxSize. It must be pure
// and return a non-negative size; an error or a panic rejects the Set.
type Sizer[K comparable, V any] func(key K, value V) (int64, error)

// ReflectSizer returns a Sizer that measures values by their shape: the byte
// length of strings and byte slices, the element count times the element
// size of slices of fixed-size elements, and the in-memory size of numbers,
// and arrays of numbers. A value type with a Size() int64 method reports that
// instead. Other kinds (maps, pointers, structs) are rejected with an error.
func ReflectSizer[K comparable, V any]() Sizer[K, V] {
	return func(_ K, value V) (int64, error) {
		return reflectSize(any(value))
	}
}

func reflectSize(v any) (int64, error) {
	switch v := v.(type) {
	case string:
		return int64(len(v)), nil
	case []byte:
		return int64(len(v)), nil
	case interface{ Size() int64 }:
		return v.Size(), nil
	case nil:
		return 0, nil
	}

	typ := reflect.TypeOf(v)
	switch typ.Kind() {
	case reflect.String, reflect.Slice:
		if typ.Kind() == reflect.Slice && !fixedSize(typ.Elem()) {
			break
		}
		return int64(reflect.ValueOf(v).Len()) * int64(elemSize(typ)), nil
	default:
		if fixedSize(typ) {
			return int64(typ.Size()), nil
		}
	}
	return 0, fmt.Errorf("cannot measure %s", typ)
}

func elemSize(typ reflect.Type) uintptr {
	if typ.Kind() == reflect.String {
		return 1
	}
	return typ.Elem().Size()
}

// fixedSize reports whether values of typ own no memory beyond typ.Size().
func fixedSize(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return fixedSize(typ.Elem())
	default:
		return false
	}
}

// sizeOf resolves the size of an entry for Set: an explicit WithSize wins,
// then the configured Sizer. Without either, entries are free unless a size
// bound is configured.
func (c *Cache[K, V]) sizeOf(key K, value V, co *callOptions) (size int64, err error) {
	switch {
	case co.hasSize:
		size = co.size
	case c.sizer != nil:
		size, err = c.callSizer(key, value)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSizeCalculation, err)
		}
	case c.maxSize > 0 || c.maxEntrySize > 0:
		return 0, fmt.Errorf("%w: a size bound is set but the entry has no size", ErrSizeCalculation)
	default:
		return 0, nil
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: negative size %d", ErrSizeCalculation, size)
	}
	return size, nil
}

func (c *Cache[K, V]) callSizer(key K, value V) (size int64, err error) {
	defer safecall.Recover(&err)
	return c.sizer(key, value)
}

package lrucache

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-reflect"
)

// ValueCloner copies values crossing the cache boundary. When a Cloner is
// configured, Set and completed loads store a copy, and every read hands out
// a copy, so callers never share mutable state with the cache.
type ValueCloner[V any] interface {
	CloneValue(V) V
}

// ValueClonerFunc adapts a function to ValueCloner.
type ValueClonerFunc[V any] func(v V) V

// CloneValue calls the function.
func (f ValueClonerFunc[V]) CloneValue(v V) V {
	return f(v)
}

// NopValueCloner hands values through unchanged. It suits immutable values.
type NopValueCloner[V any] struct{}

// CloneValue returns v.
func (NopValueCloner[V]) CloneValue(v V) V {
	return v
}

// DefaultValueCloner picks a cloner for V: its Clone or DeepCopy method when
// it has one, bytes.Clone for []byte, and NopValueCloner for scalar kinds and
// strings. It panics for any other type, which needs an explicit cloner.
func DefaultValueCloner[V any]() ValueCloner[V] {
	type cloner interface {
		Clone() V
	}
	type deepCopier interface {
		DeepCopy() V
	}

	var zero V
	switch any(zero).(type) {
	case cloner:
		return ValueClonerFunc[V](func(v V) V {
			return any(v).(cloner).Clone()
		})

	case deepCopier:
		return ValueClonerFunc[V](func(v V) V {
			return any(v).(deepCopier).DeepCopy()
		})

	case []byte:
		return ValueClonerFunc[V](func(v V) V {
			return any(bytes.Clone(any(v).([]byte))).(V)
		})
	}

	typ := reflect.TypeOf((*V)(nil)).Elem()
	switch typ.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String:
		return NopValueCloner[V]{}
	default:
		panic(fmt.Sprintf("lrucache: no default cloner for %s; it needs a Clone or DeepCopy method", typ))
	}
}

func (c *Cache[K, V]) cloneValue(v V) V {
	if c.cloner == nil {
		return v
	}
	return c.cloner.CloneValue(v)
}

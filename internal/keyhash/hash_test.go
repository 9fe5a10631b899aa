package keyhash_test

import (
	"hash/fnv"
	"reflect"
	"strings"
	"testing"

	"github.com/karupanerura/lrucache/internal/keyhash"
	v1 "github.com/karupanerura/lrucache/internal/keyhash/internal/v1/model"
	v2 "github.com/karupanerura/lrucache/internal/keyhash/internal/v2/model"
)

func TestFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash func() uint64
		want uint64
	}{
		{"int", func() uint64 { return keyhash.For[int]()(-42) }, 0x8cf5318bfca3af52},
		{"int8", func() uint64 { return keyhash.For[int8]()(-42) }, 0xaf648b4c860315e9},
		{"int16", func() uint64 { return keyhash.For[int16]()(-42) }, 0xa99f007b6f689a8},
		{"int32", func() uint64 { return keyhash.For[int32]()(-42) }, 0x994f4d653e29f3a6},
		{"int64", func() uint64 { return keyhash.For[int64]()(-42) }, 0x8cf5318bfca3af52},
		{"uint", func() uint64 { return keyhash.For[uint]()(42) }, 0xa8c7de32281a0d97},
		{"uint8", func() uint64 { return keyhash.For[uint8]()(42) }, 0xaf63a74c8601927d},
		{"uint16", func() uint64 { return keyhash.For[uint16]()(42) }, 0x8329e07b4eb954f},
		{"uint32", func() uint64 { return keyhash.For[uint32]()(42) }, 0x4d255c7f9dcde7c7},
		{"uint64", func() uint64 { return keyhash.For[uint64]()(42) }, 0xa8c7de32281a0d97},
		{"float32", func() uint64 { return keyhash.For[float32]()(42.0) }, 0xe64108a69be87c0f},
		{"float64", func() uint64 { return keyhash.For[float64]()(42.0) }, 0xe17c3355bfbe5a7e},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.hash(); got != tt.want {
				t.Errorf("expected %x, got %x", tt.want, got)
			}
		})
	}
}

func TestFor_String(t *testing.T) {
	t.Parallel()

	h := fnv.New64a()
	_, _ = h.Write([]byte("test"))
	want := h.Sum64()

	if got := keyhash.For[string]()("test"); got != want {
		t.Errorf("expected %x, got %x", want, got)
	}
	if got := keyhash.String("test"); got != want {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestFor_Composite(t *testing.T) {
	t.Parallel()

	type key struct {
		tenant string
		id     int
	}

	f := keyhash.For[key]()
	a := f(key{"acme", 1})
	if b := f(key{"acme", 1}); a != b {
		t.Errorf("equal keys hashed differently: %x != %x", a, b)
	}
	if c := f(key{"acme", 2}); a == c {
		t.Errorf("distinct keys collided: %x", a)
	}
}

func TestFor_ReturnsSameFunctionForSameType(t *testing.T) {
	t.Parallel()

	f1 := keyhash.For[int]()
	f2 := keyhash.For[int]()
	f3 := keyhash.For[int64]()

	if reflect.ValueOf(f1).Pointer() != reflect.ValueOf(f2).Pointer() {
		t.Errorf("expected the same function for the same type, but got different functions")
	}
	if reflect.ValueOf(f1).Pointer() == reflect.ValueOf(f3).Pointer() {
		t.Errorf("expected different functions for different types, but got the same function")
	}
}

func TestFor_SameNamedTypes(t *testing.T) {
	t.Parallel()

	// both types print as "model.ID"
	f1 := keyhash.For[v1.ID]()
	f2 := keyhash.For[v2.ID]()

	if a, b := f1(v1.ID{N: 1}), f1(v1.ID{N: 1}); a != b {
		t.Errorf("equal v1 keys hashed differently: %x != %x", a, b)
	}
	if a, b := f2(v2.ID{S: "x"}), f2(v2.ID{S: "x"}); a != b {
		t.Errorf("equal v2 keys hashed differently: %x != %x", a, b)
	}
	if reflect.ValueOf(keyhash.For[v2.ID]()).Pointer() != reflect.ValueOf(f2).Pointer() {
		t.Error("expected the cached function for v2.ID on the second call")
	}
}

func TestString_ZeroAllocs(t *testing.T) {
	key := strings.Repeat("k", 64)
	allocs := testing.AllocsPerRun(100, func() {
		_ = keyhash.String(key)
		_ = keyhash.For[int64]()(42)
	})
	if allocs != 0 {
		t.Errorf("hashing allocated %v times per run, want 0", allocs)
	}
}

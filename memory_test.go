package lrucache_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/karupanerura/lrucache"
)

func TestCache_SlotReuse(t *testing.T) {
	t.Parallel()

	const (
		itemSize = 100
		capacity = 101
		n        = 1000
	)
	item := strings.Repeat("x", itemSize)

	tests := []struct {
		name string
		opts lrucache.Options[string, string]
	}{
		{
			name: "max and max size",
			opts: lrucache.Options[string, string]{
				Max:             capacity,
				MaxSize:         10000,
				SizeCalculation: lrucache.ReflectSizer[string, string](),
			},
		},
		{
			name: "max size only",
			opts: lrucache.Options[string, string]{
				MaxSize:         10000,
				SizeCalculation: lrucache.ReflectSizer[string, string](),
			},
		},
		{
			name: "max only",
			opts: lrucache.Options[string, string]{
				Max: capacity,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache := newCache(t, tt.opts)
			check := func(step int) {
				t.Helper()
				st := cache.SlotStats()
				if st.Allocated > capacity {
					t.Fatalf("step %d: %d slots allocated, want <= %d", step, st.Allocated, capacity)
				}
				if st.Free > 1 {
					t.Fatalf("step %d: free chain holds %d slots, want <= 1", step, st.Free)
				}
			}

			for i := range n {
				if err := cache.Set(strconv.Itoa(i), item); err != nil {
					t.Fatal(err)
				}
				check(i)
			}
			// churn over a key range smaller than the capacity
			for i := range n {
				key := strconv.Itoa((i * 7) % 50)
				if err := cache.Set(key, item); err != nil {
					t.Fatal(err)
				}
				check(n + i)
			}
		})
	}
}

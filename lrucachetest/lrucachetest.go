// Package lrucachetest provides shared test cases for lrucache.Store
// implementations.
//
// Each case receives a Provider that builds a store from Options. Cases only
// rely on guarantees every Store gives, so order-sensitive behaviour of a
// single Cache is left to its own tests.
package lrucachetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/karupanerura/lrucache"
	"golang.org/x/sync/errgroup"
)

// Provider builds the store under test. It should register cleanup with tb.
type Provider func(tb testing.TB, o lrucache.Options[string, string]) lrucache.Store[string, string]

// Run runs every case in this package.
func Run(t *testing.T, provider Provider) {
	TestBasicOperations(t, provider)
	TestBounds(t, provider)
	TestExpiration(t, provider)
	TestFetchDedup(t, provider)
	TestFetchRejection(t, provider)
	TestConsistency(t, provider)
}

// TestBasicOperations covers Set, Get, Peek, Has, Delete and RemainingTTL.
func TestBasicOperations(t *testing.T, provider Provider) {
	t.Run("BasicOperations", func(t *testing.T) {
		t.Parallel()

		store := provider(t, lrucache.Options[string, string]{Max: 64})
		for i := range 5 {
			k := strconv.Itoa(i)
			if err := store.Set(k, "v"+k); err != nil {
				t.Fatal(err)
			}
		}
		if got := store.Len(); got != 5 {
			t.Errorf("Len() = %d, want 5", got)
		}

		if v, ok := store.Get("1"); !ok || v != "v1" {
			t.Errorf(`Get("1") = %q, %v`, v, ok)
		}
		if v, ok := store.Peek("2"); !ok || v != "v2" {
			t.Errorf(`Peek("2") = %q, %v`, v, ok)
		}
		if !store.Has("3") || store.Has("missing") {
			t.Error("Has reports wrong presence")
		}
		if got := store.RemainingTTL("1"); got != lrucache.Forever {
			t.Errorf(`RemainingTTL("1") = %v, want Forever`, got)
		}
		if got := store.RemainingTTL("missing"); got != 0 {
			t.Errorf(`RemainingTTL("missing") = %v, want 0`, got)
		}

		if !store.Delete("1") {
			t.Error(`Delete("1") = false`)
		}
		if store.Delete("1") {
			t.Error(`second Delete("1") = true`)
		}
		if _, ok := store.Get("1"); ok {
			t.Error("deleted key is still readable")
		}

		got := map[string]string{}
		for k, v := range store.Entries() {
			got[k] = v
		}
		want := map[string]string{"0": "v0", "2": "v2", "3": "v3", "4": "v4"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Entries mismatch (-want +got):\n%s", diff)
		}

		store.Clear()
		if store.Len() != 0 || store.CalculatedSize() != 0 {
			t.Errorf("Clear left Len=%d CalculatedSize=%d", store.Len(), store.CalculatedSize())
		}
	})
}

// TestBounds checks that count and size bounds hold under concurrent writes.
func TestBounds(t *testing.T, provider Provider) {
	t.Run("Bounds", func(t *testing.T) {
		t.Parallel()

		const (
			maxEntries = 64
			maxSize    = 640
		)
		store := provider(t, lrucache.Options[string, string]{
			Max:     maxEntries,
			MaxSize: maxSize,
			SizeCalculation: func(_ string, v string) (int64, error) {
				return int64(len(v)), nil
			},
		})

		var eg errgroup.Group
		for w := range 8 {
			eg.Go(func() error {
				for i := range 500 {
					k := fmt.Sprintf("%d-%d", w, i)
					value := fmt.Sprintf("%0*d", 1+i%20, i)
					if err := store.Set(k, value); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			t.Fatal(err)
		}

		if got := store.Len(); got > maxEntries {
			t.Errorf("Len() = %d exceeds %d", got, maxEntries)
		}
		if got := store.CalculatedSize(); got > maxSize {
			t.Errorf("CalculatedSize() = %d exceeds %d", got, maxSize)
		}

		var sum int64
		for _, v := range store.Entries() {
			sum += int64(len(v))
		}
		if sum != store.CalculatedSize() {
			t.Errorf("sum of entry sizes %d != CalculatedSize() %d", sum, store.CalculatedSize())
		}

		if err := store.Set("huge", string(make([]byte, maxSize+1))); !errors.Is(err, lrucache.ErrEntryTooLarge) {
			t.Errorf("oversized Set error = %v, want ErrEntryTooLarge", err)
		}
		if store.Has("huge") {
			t.Error("oversized entry was stored")
		}
	})
}

// TestExpiration checks TTL staleness against a manual clock.
func TestExpiration(t *testing.T, provider Provider) {
	t.Run("Expiration", func(t *testing.T) {
		t.Parallel()

		clock := lrucache.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		store := provider(t, lrucache.Options[string, string]{
			Max:   16,
			TTL:   time.Minute,
			Clock: clock,
		})

		if err := store.Set("short", "s", lrucache.WithTTL(10*time.Second)); err != nil {
			t.Fatal(err)
		}
		if err := store.Set("default", "d"); err != nil {
			t.Fatal(err)
		}
		if err := store.Set("forever", "f", lrucache.WithTTL(0)); err != nil {
			t.Fatal(err)
		}

		clock.Advance(10 * time.Second)
		if !store.Has("short") {
			t.Error("entry must still be fresh exactly at its deadline")
		}
		if got := store.RemainingTTL("default"); got != 50*time.Second {
			t.Errorf(`RemainingTTL("default") = %v, want 50s`, got)
		}

		clock.Advance(time.Nanosecond)
		if _, ok := store.Get("short"); ok {
			t.Error("stale entry returned by Get")
		}
		if v, ok := store.Get("default"); !ok || v != "d" {
			t.Errorf(`Get("default") = %q, %v`, v, ok)
		}

		clock.Advance(time.Hour)
		if got := store.RemainingTTL("default"); got != 0 {
			t.Errorf(`RemainingTTL("default") = %v, want 0`, got)
		}
		if got := store.RemainingTTL("forever"); got != lrucache.Forever {
			t.Errorf(`RemainingTTL("forever") = %v, want Forever`, got)
		}
		store.PurgeStale()
		if got := store.Len(); got != 1 {
			t.Errorf("Len() after PurgeStale = %d, want 1", got)
		}
	})
}

// TestFetchDedup checks that concurrent Fetch calls share one load.
func TestFetchDedup(t *testing.T, provider Provider) {
	t.Run("FetchDedup", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		release := make(chan struct{})
		store := provider(t, lrucache.Options[string, string]{
			Max: 16,
			Loader: lrucache.LoaderFunc[string, string](func(ctx context.Context, req *lrucache.LoadRequest[string, string]) (*lrucache.LoadResult[string], error) {
				calls.Add(1)
				select {
				case <-release:
				case <-ctx.Done():
					return nil, context.Cause(ctx)
				}
				return &lrucache.LoadResult[string]{Value: "loaded:" + req.Key}, nil
			}),
		})

		const n = 16
		results := make([]string, n)
		var eg errgroup.Group
		for i := range n {
			eg.Go(func() error {
				v, ok, err := store.Fetch(t.Context(), "k")
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("fetch returned no value")
				}
				results[i] = v
				return nil
			})
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		if err := eg.Wait(); err != nil {
			t.Fatal(err)
		}

		if got := calls.Load(); got != 1 {
			t.Errorf("loader called %d times, want 1", got)
		}
		for i, v := range results {
			if v != "loaded:k" {
				t.Errorf("result %d = %q", i, v)
			}
		}
		if v, ok := store.Peek("k"); !ok || v != "loaded:k" {
			t.Errorf(`Peek("k") = %q, %v`, v, ok)
		}

		values, found, err := store.FetchMulti(t.Context(), []string{"k", "other"})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"loaded:k", "loaded:other"}, values); diff != "" {
			t.Errorf("FetchMulti values mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]bool{true, true}, found); diff != "" {
			t.Errorf("FetchMulti found mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestFetchRejection checks that loader errors reach every waiter.
func TestFetchRejection(t *testing.T, provider Provider) {
	t.Run("FetchRejection", func(t *testing.T) {
		t.Parallel()

		loadErr := errors.New("upstream down")
		store := provider(t, lrucache.Options[string, string]{
			Max: 16,
			Loader: lrucache.LoaderFunc[string, string](func(context.Context, *lrucache.LoadRequest[string, string]) (*lrucache.LoadResult[string], error) {
				return nil, loadErr
			}),
		})

		_, ok, err := store.Fetch(t.Context(), "k")
		if ok {
			t.Error("failed fetch reported a value")
		}
		if !errors.Is(err, loadErr) || !errors.Is(err, lrucache.ErrLoad) {
			t.Errorf("Fetch() error = %v, want %v wrapped in ErrLoad", err, loadErr)
		}
		if store.Has("k") {
			t.Error("failed fetch stored a value")
		}
	})
}

// TestConsistency runs concurrent writers on disjoint keys and checks that
// every surviving key holds its last written value.
func TestConsistency(t *testing.T, provider Provider) {
	t.Run("Consistency", func(t *testing.T) {
		t.Parallel()

		store := provider(t, lrucache.Options[string, string]{Max: 1024})

		var eg errgroup.Group
		for w := range 8 {
			eg.Go(func() error {
				for i := range 100 {
					k := fmt.Sprintf("w%d-%d", w, i%10)
					if err := store.Set(k, strconv.Itoa(i)); err != nil {
						return err
					}
					if i%7 == 0 {
						store.Delete(fmt.Sprintf("w%d-%d", w, (i+5)%10))
					}
					store.Get(k)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			t.Fatal(err)
		}

		for k, v := range store.Entries() {
			var w, slot int
			if _, err := fmt.Sscanf(k, "w%d-%d", &w, &slot); err != nil {
				t.Fatalf("unexpected key %q", k)
			}
			i, err := strconv.Atoi(v)
			if err != nil {
				t.Fatalf("unexpected value %q", v)
			}
			if i%10 != slot || i < 90 {
				t.Errorf("key %q holds %q, want its last write", k, v)
			}
		}
	})
}

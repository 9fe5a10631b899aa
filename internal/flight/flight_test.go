package flight_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/karupanerura/lrucache/internal/flight"
)

var errTimeout = errors.New("timeout")

func TestGroup_Broadcast(t *testing.T) {
	t.Parallel()

	var g flight.Group[string, int]
	c := g.Start(context.Background(), "k", 0, errTimeout)
	if got, ok := g.Lookup("k"); !ok || got != c {
		t.Fatal("Lookup must return the started call")
	}

	const n = 8
	results := make([]flight.Result[int], n)
	var wg sync.WaitGroup
	for i := range n {
		c.Join()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Wait(context.Background())
			if err != nil {
				t.Errorf("Wait: %v", err)
			}
			results[i] = r
		}()
	}
	if c.Waiters() != n {
		t.Errorf("Waiters() = %d, want %d", c.Waiters(), n)
	}

	g.Forget("k", c)
	c.Resolve(flight.Result[int]{Value: 42, Found: true, Updated: true})
	wg.Wait()

	for i, r := range results {
		if diff := cmp.Diff(flight.Result[int]{Value: 42, Found: true, Updated: true}, r); diff != "" {
			t.Errorf("waiter %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d after Forget", g.Len())
	}
	if err := c.Context().Err(); err == nil {
		t.Error("loader context must be released after Resolve")
	}
}

func TestGroup_Abort(t *testing.T) {
	t.Parallel()

	var g flight.Group[string, int]
	c := g.Start(context.Background(), "k", 0, errTimeout)

	cause := errors.New("deleted")
	if !g.Abort("k", cause) {
		t.Fatal("Abort must report the outstanding call")
	}
	if g.Current("k", c) {
		t.Error("aborted call must not be current")
	}
	if g.Abort("k", cause) {
		t.Error("second Abort must report nothing")
	}
	if got := context.Cause(c.Context()); !errors.Is(got, cause) {
		t.Errorf("Cause() = %v, want %v", got, cause)
	}

	// a replacement call is independent of the aborted one
	c2 := g.Start(context.Background(), "k", 0, errTimeout)
	g.Forget("k", c)
	if !g.Current("k", c2) {
		t.Error("Forget of a superseded call must not detach its replacement")
	}
	c.Resolve(flight.Result[int]{Aborted: true})
	c2.Resolve(flight.Result[int]{})
}

func TestGroup_AbortAll(t *testing.T) {
	t.Parallel()

	var g flight.Group[int, int]
	calls := make([]*flight.Call[int], 3)
	for i := range calls {
		calls[i] = g.Start(context.Background(), i, 0, errTimeout)
	}
	cause := errors.New("cleared")
	g.AbortAll(cause)

	if g.Len() != 0 {
		t.Errorf("Len() = %d after AbortAll", g.Len())
	}
	for i, c := range calls {
		if got := context.Cause(c.Context()); !errors.Is(got, cause) {
			t.Errorf("call %d: Cause() = %v, want %v", i, got, cause)
		}
		c.Resolve(flight.Result[int]{})
	}
}

func TestGroup_Timeout(t *testing.T) {
	t.Parallel()

	var g flight.Group[string, int]
	c := g.Start(context.Background(), "k", 10*time.Millisecond, errTimeout)

	select {
	case <-c.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("loader context did not time out")
	}
	if got := context.Cause(c.Context()); !errors.Is(got, errTimeout) {
		t.Errorf("Cause() = %v, want %v", got, errTimeout)
	}
	if !g.Current("k", c) {
		t.Error("a timed out call stays current until its owner settles it")
	}
	g.Forget("k", c)
	c.Resolve(flight.Result[int]{Rejected: true, Err: errTimeout})
}

func TestCall_WaitContext(t *testing.T) {
	t.Parallel()

	var g flight.Group[string, int]
	c := g.Start(context.Background(), "k", 0, errTimeout)
	defer c.Resolve(flight.Result[int]{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

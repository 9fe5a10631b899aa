package safecall_test

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/karupanerura/lrucache/internal/safecall"
	"github.com/sourcegraph/conc/panics"
)

func TestGuard_Run(t *testing.T) {
	t.Parallel()

	t.Run("normal return", func(t *testing.T) {
		t.Parallel()

		want := errors.New("loader error")
		if err := (safecall.Guard{}).Run(func() error { return want }); err != want {
			t.Errorf("Run() = %v, want %v", err, want)
		}
		if err := (safecall.Guard{}).Run(func() error { return nil }); err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()

		err := (safecall.Guard{}).Run(func() error { panic("boom") })
		var recovered *panics.ErrRecovered
		if !errors.As(err, &recovered) {
			t.Fatalf("expected *panics.ErrRecovered, got %T", err)
		}
		if recovered.Value != "boom" {
			t.Errorf("recovered value = %v, want boom", recovered.Value)
		}
	})

	t.Run("goexit", func(t *testing.T) {
		t.Parallel()

		var (
			wg     sync.WaitGroup
			called bool
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := safecall.Guard{OnGoexit: func() { called = true }}
			_ = g.Run(func() error {
				runtime.Goexit()
				return nil
			})
			t.Error("Run must not return after runtime.Goexit")
		}()
		wg.Wait()

		if !called {
			t.Error("OnGoexit was not called")
		}
	})
}

func sizeOf(n int) (size int64, err error) {
	defer safecall.Recover(&err)
	if n < 0 {
		panic("negative")
	}
	return int64(n), nil
}

func TestRecover(t *testing.T) {
	t.Parallel()

	if got, err := sizeOf(3); err != nil || got != 3 {
		t.Errorf("sizeOf(3) = %d, %v", got, err)
	}

	_, err := sizeOf(-1)
	var recovered *panics.ErrRecovered
	if !errors.As(err, &recovered) {
		t.Fatalf("expected *panics.ErrRecovered, got %T (%v)", err, err)
	}
	if recovered.Value != "negative" {
		t.Errorf("recovered value = %v, want negative", recovered.Value)
	}
}

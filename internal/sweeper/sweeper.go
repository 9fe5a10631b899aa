// Package sweeper runs a maintenance function at a fixed interval in the
// background until its context is cancelled.
package sweeper

import (
	"context"
	"time"
)

// SweepFunc performs one maintenance pass.
type SweepFunc func(ctx context.Context) error

// Sweeper calls a SweepFunc on every tick of its interval.
// Errors are handed to the onError callback; they never stop the loop.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	onError  func(error)
	done     chan struct{}
}

// New creates a Sweeper. interval must be positive.
func New(sweep SweepFunc, interval time.Duration, onError func(error)) *Sweeper {
	if interval <= 0 {
		panic("sweeper: interval must be positive")
	}
	return &Sweeper{
		sweep:    sweep,
		interval: interval,
		onError:  onError,
		done:     make(chan struct{}),
	}
}

// Launch starts the background loop. It stops when ctx is cancelled.
// Launch must be called at most once.
func (s *Sweeper) Launch(ctx context.Context) {
	go s.poll(ctx)
}

// Done is closed once the background loop has returned.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

func (s *Sweeper) poll(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := s.sweep(ctx); err != nil && s.onError != nil {
				s.onError(err)
			}
		}
	}
}

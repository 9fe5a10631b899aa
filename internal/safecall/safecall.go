// Package safecall runs user supplied callbacks (loaders, dispose hooks, size
// functions) so that a panic or runtime.Goexit inside them is turned into an
// error instead of unwinding through cache bookkeeping.
package safecall

import (
	"errors"

	"github.com/sourcegraph/conc/panics"
)

// ErrGoexit is reported when a guarded callback calls runtime.Goexit.
var ErrGoexit = errors.New("callback called runtime.Goexit")

// Recover converts a panic of the deferring function into an error stored in
// *errp. It must be deferred directly:
//
//	defer safecall.Recover(&err)
func Recover(errp *error) {
	if r := recover(); r != nil {
		rec := panics.NewRecovered(1, r)
		*errp = rec.AsError()
	}
}

// Guard runs a callback between two deferred frames so that normal return,
// panic and runtime.Goexit can be told apart.
type Guard struct {
	// OnGoexit is called when the callback calls runtime.Goexit. The calling
	// goroutine still terminates afterwards, so this is the only chance to
	// publish a result to whoever waits on it.
	OnGoexit func()
}

// Run calls f. A panic is returned as *panics.ErrRecovered.
func (g Guard) Run(f func() error) (err error) {
	var (
		returned   bool
		panicValue *panics.Recovered
	)
	defer func() {
		if !returned && panicValue == nil && g.OnGoexit != nil {
			g.OnGoexit()
		}
	}()
	func() {
		defer func() {
			if r := recover(); r != nil {
				rec := panics.NewRecovered(2, r)
				panicValue = &rec
			}
		}()
		err = f()
		returned = true
	}()
	if panicValue != nil {
		return panicValue.AsError()
	}
	return err
}

// Package concurrent runs work on goroutines whose failures end up in an
// error tracker.
package concurrent

import (
	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/sourcegraph/conc/panics"
)

// Tracker receives the failures that escape tracked work.
// *errtrack.Tracker implements it.
type Tracker interface {
	TrackError(err error) errtrack.Fingerprint
}

// Tracked wraps fn so that a panic escaping it is reported to t and then
// raised again as a *errtrack.PanicError. A panic that already carries a
// *errtrack.PanicError was reported by an inner wrapper and is only raised
// again.
func Tracked(t Tracker, fn func()) func() {
	return func() {
		if pe, fresh := catch(fn); pe != nil {
			if fresh {
				t.TrackError(pe)
			}
			panic(pe)
		}
	}
}

// TrackedErr is Tracked for functions that return an error. A returned
// error is reported and passed through.
func TrackedErr(t Tracker, fn func() error) func() error {
	return func() error {
		var err error
		if pe, fresh := catch(func() { err = fn() }); pe != nil {
			if fresh {
				t.TrackError(pe)
			}
			panic(pe)
		}
		if err != nil {
			t.TrackError(err)
		}
		return err
	}
}

// catch runs fn and returns the panic it raised, if any. fresh is false
// when the panic value was already a *errtrack.PanicError.
func catch(fn func()) (pe *errtrack.PanicError, fresh bool) {
	var c panics.Catcher
	c.Try(fn)
	r := c.Recovered()
	if r == nil {
		return nil, false
	}
	if pe, ok := r.Value.(*errtrack.PanicError); ok {
		return pe, false
	}
	return errtrack.NewPanicError(r.Value, r.Callers), true
}

package errtrack

import (
	"sync"
)

// UncaughtHandler receives panics that escaped a goroutine guarded by
// HandlePanic.
type UncaughtHandler func(err error)

var (
	uncaughtMu sync.Mutex
	uncaught   UncaughtHandler
)

// SetUncaughtHandler installs h as the process-wide handler and returns the
// one it replaced.
func SetUncaughtHandler(h UncaughtHandler) UncaughtHandler {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	prev := uncaught
	uncaught = h
	return prev
}

func CurrentUncaughtHandler() UncaughtHandler {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	return uncaught
}

// HandlePanic must be deferred at the top of a goroutine. It hands a panic
// to the process-wide handler and then lets it continue unwinding, so the
// process still fails the way it would have without the handler. A
// *PanicError was already reported where it was raised and is not handed
// on again.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	if _, reported := r.(*PanicError); !reported {
		dispatchUncaught(NewPanicError(r, RecoverCallers()))
	}
	panic(r)
}

// Go runs fn on a new goroutine guarded by HandlePanic.
func Go(fn func()) {
	go func() {
		defer HandlePanic()
		fn()
	}()
}

// Uncaught reports err to the process-wide handler, as if it had escaped a
// guarded goroutine.
func Uncaught(err error) {
	dispatchUncaught(err)
}

func dispatchUncaught(err error) {
	if h := CurrentUncaughtHandler(); h != nil {
		h(err)
	}
}

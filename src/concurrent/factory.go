package concurrent

import (
	"context"
	"fmt"
	"runtime/pprof"
	"sync/atomic"
)

const (
	// PoolLabel and GoroutineLabel are the pprof labels carried by every
	// goroutine a Factory starts.
	PoolLabel      = "tracking_pool"
	GoroutineLabel = "goroutine"
)

var poolNumber atomic.Int64

// Launcher starts functions on new goroutines.
type Launcher interface {
	Go(fn func())
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(fn func())

func (f LauncherFunc) Go(fn func()) { f(fn) }

// tracking is implemented by launchers that already report failures.
type tracking interface {
	tracks()
}

// Factory starts goroutines that report escaping panics to a tracker.
// Goroutines are named tracking-pool-N-goroutine-M and carry the name as
// pprof labels.
type Factory struct {
	tracker Tracker
	pool    string
	next    atomic.Int64
}

func NewFactory(t Tracker) *Factory {
	return &Factory{
		tracker: t,
		pool:    fmt.Sprintf("tracking-pool-%d", poolNumber.Add(1)),
	}
}

// Pool returns the name shared by every goroutine of the factory.
func (f *Factory) Pool() string {
	return f.pool
}

func (f *Factory) Go(fn func()) {
	f.GoNamed(fmt.Sprintf("%s-goroutine-%d", f.pool, f.next.Add(1)), fn)
}

// GoNamed starts fn under the given goroutine name.
func (f *Factory) GoNamed(name string, fn func()) {
	run := Tracked(f.tracker, fn)
	labels := pprof.Labels(PoolLabel, f.pool, GoroutineLabel, name)
	go pprof.Do(context.Background(), labels, func(context.Context) {
		run()
	})
}

func (f *Factory) tracks() {}

type wrapped struct {
	tracker  Tracker
	launcher Launcher
}

func (w *wrapped) Go(fn func()) {
	w.launcher.Go(Tracked(w.tracker, fn))
}

func (w *wrapped) tracks() {}

// Wrap returns a launcher that reports the panics of everything l starts.
// Launchers that already report are returned as they are.
func Wrap(t Tracker, l Launcher) Launcher {
	if _, ok := l.(tracking); ok {
		return l
	}
	return &wrapped{tracker: t, launcher: l}
}

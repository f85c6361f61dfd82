package concurrent

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/pkg/errors"
)

var ErrShutdown = errors.New("executor is shut down")

const cachedKeepAlive = 60 * time.Second

// Future is the pending result of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the task finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finished and returns its error. A panic in the
// task is returned as a *errtrack.PanicError.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	run    func() error
	future *Future
}

// Executor runs tasks on a pool of worker goroutines. Whatever escapes a
// task is reported to the tracker after the task ran, whichever launcher
// started the worker.
type Executor struct {
	tracker   Tracker
	launcher  Launcher
	core      int
	max       int
	keepAlive time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []task
	workers  int
	idle     int
	shutdown bool
	wg       sync.WaitGroup
}

// NewExecutor returns an executor that keeps core workers alive and grows
// up to max workers while tasks are waiting. Workers above core exit after
// keepAlive without work. Workers are started through l, wrapped so that it
// reports failures; a nil l uses a new Factory.
func NewExecutor(t Tracker, l Launcher, coreSize, maxSize int, keepAlive time.Duration) *Executor {
	if l == nil {
		l = NewFactory(t)
	}
	e := &Executor{
		tracker:   t,
		launcher:  Wrap(t, l),
		core:      max(coreSize, 0),
		max:       max(maxSize, coreSize, 1),
		keepAlive: keepAlive,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// NewFixedExecutor runs tasks on n workers.
func NewFixedExecutor(t Tracker, n int) *Executor {
	n = max(n, 1)
	return NewExecutor(t, nil, n, n, 0)
}

// NewSingleExecutor runs tasks one at a time in submission order.
func NewSingleExecutor(t Tracker) *Executor {
	return NewFixedExecutor(t, 1)
}

// NewCachedExecutor starts workers as needed and lets them go after a
// minute without work.
func NewCachedExecutor(t Tracker) *Executor {
	return NewExecutor(t, nil, 0, math.MaxInt, cachedKeepAlive)
}

// Execute runs fn on a worker. A panic in fn is reported and then raised
// again on the worker.
func (e *Executor) Execute(fn func()) error {
	return e.enqueue(task{run: func() error { fn(); return nil }})
}

// Submit runs fn on a worker. Its error, or its panic as a
// *errtrack.PanicError, is reported and delivered to the future.
func (e *Executor) Submit(fn func() error) (*Future, error) {
	f := newFuture()
	if err := e.enqueue(task{run: fn, future: f}); err != nil {
		return nil, err
	}
	return f, nil
}

// enqueue queues t and starts a worker for it when needed. The worker is
// launched after the lock is released, so a Launcher may run it inline.
func (e *Executor) enqueue(t task) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return ErrShutdown
	}
	e.queue = append(e.queue, t)
	spawn := e.workers < e.core || (len(e.queue) > e.idle && e.workers < e.max)
	if spawn {
		e.workers++
		e.wg.Add(1)
	}
	e.cond.Signal()
	e.mu.Unlock()

	if spawn {
		e.launcher.Go(e.work)
	}
	return nil
}

func (e *Executor) work() {
	defer e.wg.Done()
	for {
		t, ok := e.take()
		if !ok {
			return
		}
		e.runTask(t)
	}
}

// take waits for the next task. It returns false when the worker should
// exit.
func (e *Executor) take() (task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	deadline := time.Now().Add(e.keepAlive)
	for len(e.queue) == 0 {
		if e.shutdown {
			e.workers--
			return task{}, false
		}
		if e.workers > e.core {
			wait := time.Until(deadline)
			if wait <= 0 {
				e.workers--
				return task{}, false
			}
			timer := time.AfterFunc(wait, e.cond.Broadcast)
			e.idle++
			e.cond.Wait()
			e.idle--
			timer.Stop()
			continue
		}
		e.idle++
		e.cond.Wait()
		e.idle--
	}
	t := e.queue[0]
	e.queue[0] = task{}
	e.queue = e.queue[1:]
	return t, true
}

func (e *Executor) runTask(t task) {
	var err error
	pe, fresh := catch(func() { err = t.run() })
	e.afterExecute(t, pe, fresh, err)
}

func (e *Executor) afterExecute(t task, pe *errtrack.PanicError, fresh bool, err error) {
	if pe != nil {
		if fresh {
			e.tracker.TrackError(pe)
		}
		if t.future == nil {
			e.mu.Lock()
			e.workers--
			e.mu.Unlock()
			panic(pe)
		}
		err = pe
	} else if err != nil {
		e.tracker.TrackError(err)
	}
	if t.future != nil {
		t.future.complete(err)
	}
}

// Shutdown stops accepting tasks and waits until the queued ones ran or ctx
// is done.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shutdown = true
	e.cond.Broadcast()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "executor shutdown")
	}
}

// IsShutdown reports whether Shutdown was called.
func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

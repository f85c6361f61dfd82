package errtrack

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var ErrAlreadyAttached = errors.New("error context already attached")

// ContextErrorHandler observes uncaught errors accepted by an attached
// tracker before they are tracked.
type ContextErrorHandler func(scope *Scope, err error)

type entry struct {
	seq    uint64
	count  int
	report *Report
}

// Tracker deduplicates compiled error reports by fingerprint and counts
// how often each one occurred since the last acknowledged submission.
type Tracker struct {
	compiler *Compiler
	enabled  atomic.Bool

	mu      sync.Mutex
	seq     uint64
	entries map[Fingerprint]*entry

	// guarded by uncaughtMu
	attached bool
	previous UncaughtHandler
	onError  ContextErrorHandler
}

// New returns a tracker whose limits are read from the environment.
func New() *Tracker {
	return NewWithLimits(LimitsFromEnv())
}

func NewWithLimits(limits Limits) *Tracker {
	t := &Tracker{
		compiler: NewCompiler(limits),
		entries:  make(map[Fingerprint]*entry),
	}
	t.enabled.Store(true)
	return t
}

// SetEnabled turns capturing on or off. A disabled tracker ignores every
// error handed to it.
func (t *Tracker) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Tracker) Enabled() bool {
	return t.enabled.Load()
}

func (t *Tracker) Compiler() *Compiler {
	return t.compiler
}

// TrackError records err and returns its fingerprint, or "" when nothing
// was recorded.
func (t *Tracker) TrackError(err error) Fingerprint {
	if err == nil || !t.enabled.Load() {
		return ""
	}
	report := t.compiler.Compile(err)
	hash := report.Fingerprint()

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[hash]; ok {
		e.count++
		return hash
	}
	t.seq++
	t.entries[hash] = &entry{seq: t.seq, count: 1, report: report}
	return hash
}

// TrackMessage records a message raised at the caller's location.
func (t *Tracker) TrackMessage(msg string) Fingerprint {
	return t.TrackError(&errorWithFrames{msg: msg, frames: Callers(1)})
}

// TrackPanic records a value recovered from a panic.
func (t *Tracker) TrackPanic(value any, pcs []uintptr) Fingerprint {
	return t.TrackError(NewPanicError(value, pcs))
}

// Entries returns a snapshot of the tracked entries in first-seen order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	type ordered struct {
		seq uint64
		Entry
	}
	list := make([]ordered, 0, len(t.entries))
	for hash, e := range t.entries {
		list = append(list, ordered{seq: e.seq, Entry: Entry{Hash: hash, Count: e.count, Report: e.report}})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]Entry, len(list))
	for i, o := range list {
		out[i] = o.Entry
	}
	return out
}

// Acknowledge removes what a successful submission delivered. Occurrences
// recorded after the snapshot was taken are kept as counts only, since
// their body already reached the collector.
func (t *Tracker) Acknowledge(sent []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range sent {
		e, ok := t.entries[s.Hash]
		if !ok {
			continue
		}
		e.count -= s.Count
		if e.count <= 0 {
			delete(t.entries, s.Hash)
			continue
		}
		if s.Report != nil {
			e.report = nil
		}
	}
}

// Clear drops every tracked entry.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[Fingerprint]*entry)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stats summarises the tracker's state.
type Stats struct {
	Distinct int // fingerprints tracked
	Retained int // entries still holding a report body
	Pending  int // occurrences waiting for submission
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Stats
	for _, e := range t.entries {
		s.Distinct++
		s.Pending += e.count
		if e.report != nil {
			s.Retained++
		}
	}
	return s
}

// AttachErrorContext routes uncaught errors to the tracker. The handler
// installed before stays in place and is called first. With a non-nil
// scope only errors raised inside it are tracked.
func (t *Tracker) AttachErrorContext(scope *Scope) error {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	if t.attached {
		return ErrAlreadyAttached
	}
	prev := uncaught
	t.previous = prev
	t.attached = true
	uncaught = func(err error) {
		if prev != nil {
			prev(err)
		}
		t.handleUncaught(scope, err)
	}
	return nil
}

func (t *Tracker) handleUncaught(scope *Scope, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.TrackError(NewPanicError(r, RecoverCallers()))
		}
	}()
	if scope != nil && !IsSameOrigin(scope, err) {
		return
	}
	if h := t.ContextErrorHandler(); h != nil {
		h(scope, err)
	}
	t.TrackError(err)
}

// DetachErrorContext restores the handler that was installed when the
// tracker attached. It does nothing when the tracker is not attached.
func (t *Tracker) DetachErrorContext() {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	if !t.attached {
		return
	}
	uncaught = t.previous
	t.previous = nil
	t.attached = false
}

func (t *Tracker) IsContextAttached() bool {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	return t.attached
}

func (t *Tracker) SetContextErrorHandler(h ContextErrorHandler) {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	t.onError = h
}

func (t *Tracker) ContextErrorHandler() ContextErrorHandler {
	uncaughtMu.Lock()
	defer uncaughtMu.Unlock()
	return t.onError
}

package errtrack

import (
	"fmt"
	"path"
	"reflect"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Frame is a single call site of a captured stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// String renders the frame as pkg.Func(file.go:42). Only the base name of
// the file is kept.
func (f Frame) String() string {
	return fmt.Sprintf("%s(%s:%d)", f.Function, path.Base(f.File), f.Line)
}

// Package returns the import path of the package the frame belongs to.
func (f Frame) Package() string {
	return packageOf(f.Function)
}

// StackFramer is implemented by errors that carry their own frames.
type StackFramer interface {
	StackFrames() []Frame
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

var (
	selfPackage       = reflect.TypeOf(Frame{}).PkgPath()
	concurrentPackage = path.Dir(selfPackage) + "/concurrent"
)

func packageOf(function string) string {
	slash := strings.LastIndex(function, "/")
	if dot := strings.Index(function[slash+1:], "."); dot >= 0 {
		return function[:slash+1+dot]
	}
	return function
}

// framesOf returns the frames carried by err itself, without looking at
// the errors it wraps.
func framesOf(err error) []Frame {
	switch e := err.(type) {
	case StackFramer:
		return e.StackFrames()
	case stackTracer:
		st := e.StackTrace()
		frames := make([]Frame, 0, len(st))
		for _, f := range st {
			pc := uintptr(f) - 1
			fn := runtime.FuncForPC(pc)
			if fn == nil {
				continue
			}
			file, line := fn.FileLine(pc)
			frames = append(frames, Frame{Function: fn.Name(), File: file, Line: line})
		}
		return frames
	}
	return nil
}

func callerFrames(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	frames := make([]Frame, 0, len(pcs))
	it := runtime.CallersFrames(pcs)
	for {
		f, more := it.Next()
		if f.Function != "" {
			frames = append(frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
		if !more {
			break
		}
	}
	return frames
}

// Callers captures the stack of the calling goroutine, skipping skip frames
// above the caller of Callers.
func Callers(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	return trimGoroutineEntry(callerFrames(pcs[:n]))
}

// panicFrames turns the program counters captured while recovering into the
// frames of the code that panicked. Everything up to runtime.gopanic belongs
// to the recovery machinery and is dropped.
func panicFrames(pcs []uintptr) []Frame {
	frames := callerFrames(pcs)
	cut := -1
	for i, f := range frames {
		if f.Function == "runtime.gopanic" {
			cut = i
		}
	}
	if cut >= 0 {
		frames = frames[cut+1:]
		for len(frames) > 0 && strings.HasPrefix(frames[0].Function, "runtime.") {
			frames = frames[1:]
		}
	}
	return trimGoroutineEntry(frames)
}

// trimGoroutineEntry removes the goroutine start frames added by the
// tracking wrappers of this module.
func trimGoroutineEntry(frames []Frame) []Frame {
	for len(frames) > 0 && isEntryFrame(frames[len(frames)-1]) {
		frames = frames[:len(frames)-1]
	}
	return frames
}

func isEntryFrame(f Frame) bool {
	if f.Function == "runtime.goexit" || f.Function == "runtime/pprof.Do" {
		return true
	}
	switch f.Package() {
	case concurrentPackage, "github.com/sourcegraph/conc/panics", "golang.org/x/sync/errgroup":
		return true
	case selfPackage:
		return strings.HasPrefix(f.Function, selfPackage+".Go")
	}
	return false
}

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Value  any
	frames []Frame
}

// NewPanicError wraps a recovered value. pcs are the program counters
// captured inside the recovering function; they may be nil.
func NewPanicError(value any, pcs []uintptr) *PanicError {
	return &PanicError{Value: value, frames: panicFrames(pcs)}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func (e *PanicError) StackFrames() []Frame {
	return e.frames
}

func (e *PanicError) Kind() string {
	return "panic"
}

// RecoverCallers captures program counters from inside a deferred recover.
func RecoverCallers() []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(1, pcs)
	return pcs[:n]
}

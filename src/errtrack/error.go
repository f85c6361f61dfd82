package errtrack

// errorWithFrames is an error carrying explicit frames, used to report
// messages that have no error value of their own.
type errorWithFrames struct {
	msg    string
	frames []Frame
}

func (e *errorWithFrames) Error() string        { return e.msg }
func (e *errorWithFrames) StackFrames() []Frame { return e.frames }
func (e *errorWithFrames) Kind() string         { return "error" }

// NewError returns an error with the given message and the caller's stack.
func NewError(msg string) error {
	return &errorWithFrames{msg: msg, frames: Callers(1)}
}

// WithFrames returns an error with the given message and frames.
func WithFrames(msg string, frames ...Frame) error {
	return &errorWithFrames{msg: msg, frames: frames}
}

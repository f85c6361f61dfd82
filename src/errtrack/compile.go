package errtrack

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const (
	DefaultMessageLength = 500
	MaxMessageLength     = 1000
	DefaultFrameLength   = 300
	MaxFrameLength       = 500
	DefaultFrameLimit    = 15
	MaxFrameLimit        = 50

	EnvMessageLength = "FASTSTATS_MESSAGE_LENGTH"
	EnvFrameLength   = "FASTSTATS_STACK_TRACE_LENGTH"
	EnvFrameLimit    = "FASTSTATS_STACK_TRACE_LIMIT"
)

// Limits bound the size of a compiled report.
type Limits struct {
	MessageLength int
	FrameLength   int
	FrameLimit    int
}

func DefaultLimits() Limits {
	return Limits{
		MessageLength: DefaultMessageLength,
		FrameLength:   DefaultFrameLength,
		FrameLimit:    DefaultFrameLimit,
	}
}

// LimitsFromEnv reads the limits from the environment, falling back to the
// defaults for unset or unparsable values.
func LimitsFromEnv() Limits {
	return Limits{
		MessageLength: envInt(EnvMessageLength),
		FrameLength:   envInt(EnvFrameLength),
		FrameLimit:    envInt(EnvFrameLimit),
	}.normalize()
}

func envInt(key string) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0
	}
	n, err := cast.ToIntE(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

func (l Limits) normalize() Limits {
	l.MessageLength = clamp(l.MessageLength, DefaultMessageLength, MaxMessageLength)
	l.FrameLength = clamp(l.FrameLength, DefaultFrameLength, MaxFrameLength)
	l.FrameLimit = clamp(l.FrameLimit, DefaultFrameLimit, MaxFrameLimit)
	return l
}

func clamp(v, def, ceiling int) int {
	if v <= 0 {
		return def
	}
	return min(v, ceiling)
}

// Compiler turns errors into bounded, redacted reports.
type Compiler struct {
	limits    Limits
	anonymize func(string) string
}

func NewCompiler(limits Limits) *Compiler {
	return &Compiler{limits: limits.normalize(), anonymize: Anonymize}
}

func (c *Compiler) Limits() Limits {
	return c.limits
}

func (c *Compiler) Compile(err error) *Report {
	if err == nil {
		return nil
	}
	return c.compile(err, map[string]struct{}{})
}

func (c *Compiler) compile(err error, suppress map[string]struct{}) *Report {
	n := decompose(err)

	raw := make([]string, len(n.frames))
	for i, f := range n.frames {
		raw[i] = f.String()
	}
	stack := Collapse(raw)

	list := make([]string, 0, len(stack))
	for _, f := range stack {
		if _, ok := suppress[f]; !ok {
			list = append(list, f)
		}
	}

	traces := min(len(list), c.limits.FrameLimit)
	r := &Report{Kind: n.kind, Frames: make([]string, traces)}
	for i := 0; i < traces; i++ {
		r.Frames[i] = truncate(list[i], c.limits.FrameLength)
	}
	if traces > 0 && traces < len(list) {
		r.Note = fmt.Sprintf("and %d more...", len(list)-traces)
	} else if omitted := len(raw) - len(list); omitted > 0 {
		r.Note = fmt.Sprintf("Omitted %d duplicate stack frame%s", omitted, plural(omitted))
	}

	if n.message != "" {
		r.Message = c.anonymize(truncate(n.message, c.limits.MessageLength))
	}

	if n.cause != nil {
		inherited := make(map[string]struct{}, len(stack)+len(suppress))
		for f := range suppress {
			inherited[f] = struct{}{}
		}
		for _, f := range stack {
			inherited[f] = struct{}{}
		}
		r.Cause = c.compile(n.cause, inherited)
	}
	return r
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Kinder lets an error name its own kind in reports.
type Kinder interface {
	Kind() string
}

type node struct {
	kind    string
	message string
	frames  []Frame
	cause   error
}

// decompose reads one link of an error chain. Wrappers that do not add to
// the message (stack annotations, panic holders) are folded into the error
// they wrap; the innermost stack among them is kept.
func decompose(err error) node {
	var frames []Frame
	cur := err
	for {
		if f := framesOf(cur); len(f) > 0 {
			frames = f
		}
		next := errors.Unwrap(cur)
		if next == nil || next.Error() != cur.Error() {
			break
		}
		cur = next
	}

	n := node{kind: kindOf(cur), message: cur.Error(), frames: frames}
	if next := errors.Unwrap(cur); next != nil {
		n.cause = next
		if own, ok := strings.CutSuffix(n.message, ": "+next.Error()); ok {
			n.message = own
		}
	}
	return n
}

func kindOf(err error) string {
	if k, ok := err.(Kinder); ok {
		return k.Kind()
	}
	return reflect.TypeOf(err).String()
}

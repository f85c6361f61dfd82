package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/pkg/errors"
)

var (
	// ErrNoData may be returned by a value function to leave its chart out
	// of the current submission.
	ErrNoData = errors.New("no data")

	ErrInvalidID = errors.New("invalid chart id")

	idPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ValidID reports whether id may be used as a chart or data key.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Kind tags the variant held by a Value.
type Kind int

const (
	KindBool Kind = iota + 1
	KindNumber
	KindString
	KindBoolArray
	KindNumberArray
	KindStringArray
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolArray:
		return "bool[]"
	case KindNumberArray:
		return "number[]"
	case KindStringArray:
		return "string[]"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a chart value: a boolean, number or string, or an array of one
// of them. The zero Value holds nothing.
type Value struct {
	kind    Kind
	b       bool
	n       float64
	s       string
	bools   []bool
	numbers []float64
	strings []string
}

func BoolValue(v bool) Value            { return Value{kind: KindBool, b: v} }
func NumberValue(v float64) Value       { return Value{kind: KindNumber, n: v} }
func StringValue(v string) Value        { return Value{kind: KindString, s: v} }
func BoolArrayValue(v []bool) Value     { return Value{kind: KindBoolArray, bools: v} }
func NumberArrayValue(v []float64) Value { return Value{kind: KindNumberArray, numbers: v} }
func StringArrayValue(v []string) Value { return Value{kind: KindStringArray, strings: v} }

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsZero() bool {
	return v.kind == 0
}

// Any returns the held value as a plain Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindBoolArray:
		return v.bools
	case KindNumberArray:
		return v.numbers
	case KindStringArray:
		return v.strings
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// Source computes the value of one chart at submission time.
type Source interface {
	ID() string
	Value() (Value, error)
}

type source struct {
	id string
	fn func() (Value, error)
}

func (s *source) ID() string {
	return s.id
}

func (s *source) Value() (Value, error) {
	return s.fn()
}

// New returns a source computing its value with fn.
func New(id string, fn func() (Value, error)) (Source, error) {
	if !ValidID(id) {
		return nil, errors.Wrapf(ErrInvalidID, "%q", id)
	}
	if fn == nil {
		return nil, errors.Errorf("chart %s: nil value function", id)
	}
	return &source{id: id, fn: fn}, nil
}

func Bool(id string, fn func() (bool, error)) (Source, error) {
	return typed(id, fn, BoolValue)
}

func Number(id string, fn func() (float64, error)) (Source, error) {
	return typed(id, fn, NumberValue)
}

func String(id string, fn func() (string, error)) (Source, error) {
	return typed(id, fn, StringValue)
}

func BoolArray(id string, fn func() ([]bool, error)) (Source, error) {
	return typed(id, fn, BoolArrayValue)
}

func NumberArray(id string, fn func() ([]float64, error)) (Source, error) {
	return typed(id, fn, NumberArrayValue)
}

func StringArray(id string, fn func() ([]string, error)) (Source, error) {
	return typed(id, fn, StringArrayValue)
}

func typed[T any](id string, fn func() (T, error), wrap func(T) Value) (Source, error) {
	if fn == nil {
		return New(id, nil)
	}
	return New(id, func() (Value, error) {
		v, err := fn()
		if err != nil {
			return Value{}, err
		}
		return wrap(v), nil
	})
}

// Compute evaluates src. A panic inside the value function is returned as
// an error. ok is false when the source has nothing to report.
func Compute(src Source) (v Value, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errtrack.NewPanicError(r, errtrack.RecoverCallers())
			ok = false
		}
	}()
	v, err = src.Value()
	if errors.Is(err, ErrNoData) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, errors.Wrapf(err, "chart %s", src.ID())
	}
	if v.IsZero() || isNilArray(v) {
		return Value{}, false, nil
	}
	if !v.Finite() {
		return Value{}, false, errors.Errorf("chart %s: non-finite number", src.ID())
	}
	return v, true, nil
}

// Finite reports whether every number held by v can be encoded as JSON.
func (v Value) Finite() bool {
	switch v.kind {
	case KindNumber:
		return !math.IsNaN(v.n) && !math.IsInf(v.n, 0)
	case KindNumberArray:
		for _, n := range v.numbers {
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return false
			}
		}
	}
	return true
}

func isNilArray(v Value) bool {
	switch v.kind {
	case KindBoolArray:
		return v.bools == nil
	case KindNumberArray:
		return v.numbers == nil
	case KindStringArray:
		return v.strings == nil
	}
	return false
}

package errtrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(cycle []string, times int) []string {
	var out []string
	for i := 0; i < times; i++ {
		out = append(out, cycle...)
	}
	return out
}

func TestCollapse(t *testing.T) {
	tests := []struct {
		name   string
		frames []string
		want   []string
	}{
		{"Empty", nil, []string{}},
		{"Single", []string{"a"}, []string{"a"}},
		{"ConsecutiveDuplicates", []string{"a", "a", "a", "b", "b", "c"}, []string{"a", "b", "c"}},
		{"MutualRecursion", repeat([]string{"a", "b"}, 3), []string{"a", "b"}},
		{"CycleOfThreeFiveTimes", repeat([]string{"x", "y", "z"}, 5), []string{"x", "y", "z"}},
		{"PartialTrailingCycle", append(repeat([]string{"a", "b", "c"}, 2), "a"), []string{"a", "b", "c"}},
		{"TwoCopiesAreKept", repeat([]string{"a", "b"}, 2), []string{"a", "b", "a", "b"}},
		{"DedupThenCycle", []string{"a", "a", "b", "b", "a", "b", "a"}, []string{"a", "b"}},
		{"NotPeriodic", []string{"a", "b", "c", "a", "b"}, []string{"a", "b", "c", "a", "b"}},
		{"Distinct", []string{"a", "b", "c", "d"}, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Collapse(tt.frames))
		})
	}
}

func TestCollapseDoesNotModifyInput(t *testing.T) {
	in := repeat([]string{"a", "b"}, 4)
	snapshot := append([]string(nil), in...)
	out := Collapse(in)
	out = append(out, "extra")
	assert.Equal(t, snapshot, in)
	assert.Len(t, out, 3)
}

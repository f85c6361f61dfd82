package errtrack

// Collapse shortens a stack that is made of a repeating cycle of frames,
// as produced by deep or mutual recursion, down to a single cycle.
// Consecutive duplicate frames are merged first.
func Collapse(frames []string) []string {
	if len(frames) == 0 {
		return []string{}
	}

	deduped := make([]string, 0, len(frames))
	for i, f := range frames {
		if i > 0 && f == frames[i-1] {
			continue
		}
		deduped = append(deduped, f)
	}

	n := len(deduped)
	for c := 1; c <= n/2; c++ {
		periodic := true
		repetitions := 0
		for i := 0; i < n; i++ {
			if deduped[i] != deduped[i%c] {
				periodic = false
				break
			}
			if i > 0 && i%c == 0 {
				repetitions++
			}
		}
		if periodic && repetitions >= 2 {
			return deduped[:c:c]
		}
	}
	return deduped
}

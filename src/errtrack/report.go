package errtrack

import (
	"encoding/json"
)

// Report is the compiled, redacted form of an error and its causes.
type Report struct {
	Kind    string
	Message string   // empty when the error has no message of its own
	Frames  []string // rendered, truncated frames
	Note    string   // "and N more..." or "Omitted N duplicate stack frame(s)"
	Cause   *Report
}

// wireReport fixes the field order of the canonical text: error, message,
// stack, cause.
type wireReport struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Stack   []string    `json:"stack,omitempty"`
	Cause   *wireReport `json:"cause,omitempty"`
}

func (r *Report) wire() *wireReport {
	if r == nil {
		return nil
	}
	stack := make([]string, 0, len(r.Frames)+1)
	stack = append(stack, r.Frames...)
	if r.Note != "" {
		stack = append(stack, r.Note)
	}
	return &wireReport{
		Error:   r.Kind,
		Message: r.Message,
		Stack:   stack,
		Cause:   r.Cause.wire(),
	}
}

func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// Canonical is the text the fingerprint is computed over.
func (r *Report) Canonical() string {
	b, err := json.Marshal(r.wire())
	if err != nil {
		// only strings and nested reports are encoded
		panic(err)
	}
	return string(b)
}

func (r *Report) Fingerprint() Fingerprint {
	return Hash(r.Canonical())
}

// Entry is a tracked report together with how often it occurred since the
// last acknowledged submission. A nil Report marks an entry whose body was
// already delivered.
type Entry struct {
	Hash   Fingerprint
	Count  int
	Report *Report
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type entry struct {
		Hash  Fingerprint `json:"hash"`
		Count int         `json:"count,omitempty"`
		*wireReport
	}
	out := entry{Hash: e.Hash, wireReport: e.Report.wire()}
	if e.Count > 1 {
		out.Count = e.Count
	}
	return json.Marshal(out)
}

// Package collector is an in-memory FastStats collector for local
// development and tests.
package collector

import (
	"sync"
	"sync/atomic"

	"github.com/jom-io/gorig-telemetry/src/metrics"
)

const defaultLimit = 1000

type Serv struct {
	tokens map[string]bool
	limit  int
	status atomic.Int64

	mu          sync.Mutex
	submissions []Submission
}

// New returns a collector accepting the given tokens. Without tokens any
// well-formed token is accepted.
func New(tokens ...string) *Serv {
	s := &Serv{tokens: map[string]bool{}, limit: defaultLimit}
	for _, t := range tokens {
		s.tokens[t] = true
	}
	return s
}

// Accepts reports whether token may submit.
func (s *Serv) Accepts(token string) bool {
	if !metrics.ValidToken(token) {
		return false
	}
	return len(s.tokens) == 0 || s.tokens[token]
}

// Record stores sub, dropping the oldest submission beyond the limit.
func (s *Serv) Record(sub Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	if over := len(s.submissions) - s.limit; over > 0 {
		s.submissions = append([]Submission(nil), s.submissions[over:]...)
	}
}

// Submissions returns the stored submissions, oldest first.
func (s *Serv) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Serv) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = nil
}

// ForceStatus makes the collector answer submissions with status. Zero
// restores normal answers.
func (s *Serv) ForceStatus(status int) {
	s.status.Store(int64(status))
}

func (s *Serv) ForcedStatus() int {
	return int(s.status.Load())
}

package metrics

import (
	"fmt"
	"time"

	"github.com/jom-io/gorig-telemetry/src/logger"
	"go.uber.org/zap"
)

// fixedRate fires once after delay and then every period, measured from
// the first activation. Activations missed while a run was late are
// skipped.
type fixedRate struct {
	delay  time.Duration
	period time.Duration
	next   time.Time
}

func newFixedRate(delay, period time.Duration) *fixedRate {
	return &fixedRate{delay: delay, period: period}
}

// Next is only called from the cron goroutine.
func (s *fixedRate) Next(now time.Time) time.Time {
	if s.next.IsZero() {
		s.next = now.Add(s.delay)
		return s.next
	}
	s.next = s.next.Add(s.period)
	for !s.next.After(now) {
		s.next = s.next.Add(s.period)
	}
	return s.next
}

// cronLogger routes the scheduler's own logging into the debug-gated
// metrics log.
type cronLogger struct {
	m *Metrics
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if l.m.isDebug() {
		l.m.log.Debug(logger.NewCtx(), "Metrics scheduler "+msg, fields(keysAndValues)...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.m.fail(logger.NewCtx(), "Metrics scheduler "+msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []any) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}

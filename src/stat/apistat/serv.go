package apistat

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Serv records the outcome of every submission, locally and as Prometheus
// metrics.
type Serv struct {
	mu   sync.Mutex
	stat ApiLatencyStat

	submissions *prometheus.CounterVec
	latency     prometheus.Histogram
	payload     prometheus.Histogram
}

func New() *Serv {
	return &Serv{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faststats",
			Name:      "submissions_total",
			Help:      "Submissions to the collector by response class",
		}, []string{"class"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faststats",
			Name:      "submission_duration_seconds",
			Help:      "Time spent submitting to the collector",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3},
		}),
		payload: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faststats",
			Name:      "submission_payload_bytes",
			Help:      "Compressed size of submitted payloads",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 7),
		}),
	}
}

// Register adds the metrics to reg.
func (s *Serv) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.submissions, s.latency, s.payload} {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register submission metrics")
		}
	}
	return nil
}

// Observe records a submission that got a response.
func (s *Serv) Observe(status int, latency time.Duration, payloadBytes int) {
	class := ClassOf(status)
	ms := latency.Milliseconds()

	s.mu.Lock()
	s.record(ms, payloadBytes)
	switch class {
	case Class2xx:
		s.stat.Count2xx++
	case Class3xx:
		s.stat.Count3xx++
	case Class4xx:
		s.stat.Count4xx++
	case Class5xx:
		s.stat.Count5xx++
	default:
		s.stat.CountOther++
	}
	s.stat.LastStatus = status
	s.stat.LastFailure = ""
	s.mu.Unlock()

	s.submissions.WithLabelValues(class.String()).Inc()
	s.latency.Observe(latency.Seconds())
	s.payload.Observe(float64(payloadBytes))
}

// ObserveFailure records a submission that got no response.
func (s *Serv) ObserveFailure(reason string, latency time.Duration, payloadBytes int) {
	s.mu.Lock()
	s.record(latency.Milliseconds(), payloadBytes)
	s.stat.CountFailed++
	s.stat.LastStatus = 0
	s.stat.LastFailure = reason
	s.mu.Unlock()

	s.submissions.WithLabelValues(ClassFailed.String()).Inc()
	s.latency.Observe(latency.Seconds())
}

func (s *Serv) record(ms int64, payloadBytes int) {
	s.stat.Count++
	s.stat.SumLatency += ms
	if ms > s.stat.MaxLatency {
		s.stat.MaxLatency = ms
	}
	s.stat.PayloadBytes += int64(payloadBytes)
	s.stat.LastAt = time.Now().Unix()
}

// Summary returns a copy of the aggregated statistics.
func (s *Serv) Summary() ApiLatencyStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stat
}

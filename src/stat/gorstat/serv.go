package gorstat

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/google/pprof/profile"
	"github.com/jom-io/gorig-telemetry/src/concurrent"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collect reads the goroutine profile and counts the goroutines carrying
// a tracking pool label.
func Collect(ctx context.Context) (GoroutineStat, error) {
	stat := GoroutineStat{
		At:    time.Now().Unix(),
		Count: int64(runtime.NumGoroutine()),
		Pools: map[string]int64{},
	}

	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 0); err != nil {
		return stat, errors.Wrap(err, "write goroutine profile")
	}
	prof, err := profile.Parse(&buf)
	if err != nil {
		return stat, errors.Wrap(err, "parse goroutine profile")
	}
	for _, s := range prof.Sample {
		pool := s.Label[concurrent.PoolLabel]
		if len(pool) == 0 || len(s.Value) == 0 {
			continue
		}
		stat.Pools[pool[0]] += s.Value[0]
		stat.Tracked += s.Value[0]
	}
	logger.Debug(ctx, "Collected goroutine stat", zap.Int64("count", stat.Count), zap.Int64("tracked", stat.Tracked))
	return stat, nil
}

// Collector exposes goroutine counts as Prometheus gauges.
type Collector struct {
	total  *prometheus.Desc
	pooled *prometheus.Desc
}

func NewCollector() *Collector {
	return &Collector{
		total: prometheus.NewDesc("faststats_goroutines",
			"Goroutines of the process", nil, nil),
		pooled: prometheus.NewDesc("faststats_tracked_goroutines",
			"Goroutines started by a tracking pool", []string{"pool"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.pooled
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx := logger.NewCtx()
	stat, err := Collect(ctx)
	if err != nil {
		logger.Warn(ctx, "Collect goroutine stat failed", zap.Error(err))
	}
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stat.Count))
	for pool, n := range stat.Pools {
		ch <- prometheus.MustNewConstMetric(c.pooled, prometheus.GaugeValue, float64(n), pool)
	}
}

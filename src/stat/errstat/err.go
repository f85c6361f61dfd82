package errstat

import (
	"time"

	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is anything that can summarise tracked errors.
type Source interface {
	Stats() errtrack.Stats
}

// Collect takes a snapshot of src.
func Collect(src Source) ErrStat {
	s := src.Stats()
	return ErrStat{
		At:       time.Now().Unix(),
		Distinct: int64(s.Distinct),
		Retained: int64(s.Retained),
		Pending:  int64(s.Pending),
	}
}

// Collector exposes an error tracker as Prometheus gauges, read at scrape
// time.
type Collector struct {
	src   Source
	descs map[ErrType]*prometheus.Desc
}

func NewCollector(src Source) *Collector {
	desc := func(t ErrType, help string) *prometheus.Desc {
		return prometheus.NewDesc("faststats_tracked_errors_"+t.String(), help, nil, nil)
	}
	return &Collector{
		src: src,
		descs: map[ErrType]*prometheus.Desc{
			ErrTypeDistinct: desc(ErrTypeDistinct, "Distinct error fingerprints awaiting submission"),
			ErrTypeRetained: desc(ErrTypeRetained, "Tracked errors still holding a report body"),
			ErrTypePending:  desc(ErrTypePending, "Error occurrences awaiting submission"),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stat := Collect(c.src)
	for t, v := range map[ErrType]int64{
		ErrTypeDistinct: stat.Distinct,
		ErrTypeRetained: stat.Retained,
		ErrTypePending:  stat.Pending,
	} {
		ch <- prometheus.MustNewConstMetric(c.descs[t], prometheus.GaugeValue, float64(v))
	}
}

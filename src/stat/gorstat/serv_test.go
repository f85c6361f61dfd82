package gorstat

import (
	"context"
	"sync"
	"testing"

	"github.com/jom-io/gorig-telemetry/src/concurrent"
	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineStat(t *testing.T) {
	f := concurrent.NewFactory(errtrack.NewWithLimits(errtrack.DefaultLimits()))
	release := make(chan struct{})
	var started, stopped sync.WaitGroup
	for i := 0; i < 3; i++ {
		started.Add(1)
		stopped.Add(1)
		f.Go(func() {
			defer stopped.Done()
			started.Done()
			<-release
		})
	}
	started.Wait()
	defer func() {
		close(release)
		stopped.Wait()
	}()

	t.Run("Collect", func(t *testing.T) {
		stat, err := Collect(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 3, stat.Pools[f.Pool()])
		assert.GreaterOrEqual(t, stat.Tracked, int64(3))
		assert.GreaterOrEqual(t, stat.Count, stat.Tracked)
	})

	t.Run("Prometheus", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		require.NoError(t, reg.Register(NewCollector()))
		families, err := reg.Gather()
		require.NoError(t, err)

		found := false
		for _, mf := range families {
			if mf.GetName() != "faststats_tracked_goroutines" {
				continue
			}
			for _, m := range mf.GetMetric() {
				if m.GetLabel()[0].GetValue() == f.Pool() {
					found = true
					assert.Equal(t, 3.0, m.GetGauge().GetValue())
				}
			}
		}
		assert.True(t, found)
	})
}

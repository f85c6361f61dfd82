package host

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/jom-io/gorig-telemetry/src/chart"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/shirou/gopsutil/v4/cpu"
	gohost "github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

var host = &Serv{}

type Serv struct {
	once  sync.Once
	facts Facts
}

func Host() *Serv {
	return host
}

// Facts returns the host facts. They do not change while the process runs
// and are gathered once.
func (s *Serv) Facts(ctx context.Context) Facts {
	s.once.Do(func() {
		s.facts = Collect(ctx)
	})
	return s.facts
}

// Collect gathers the host facts. Lookups that fail fall back to what the
// Go runtime knows.
func Collect(ctx context.Context) Facts {
	f := Facts{
		RuntimeVersion: runtime.Version(),
		OSName:         runtime.GOOS,
		OSArch:         runtime.GOARCH,
		CoreCount:      runtime.NumCPU(),
	}

	info, err := gohost.InfoWithContext(ctx)
	if err != nil {
		logger.Debug(ctx, "Collect failed to get host info", zap.Error(err))
	} else {
		if info.OS != "" {
			f.OSName = info.OS
		}
		f.OSVersion = info.KernelVersion
		if f.OSVersion == "" {
			f.OSVersion = info.PlatformVersion
		}
		f.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		logger.Debug(ctx, "Collect failed to get CPU count", zap.Error(err))
	} else if cores > 0 {
		f.CoreCount = cores
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil {
		logger.Debug(ctx, "Collect failed to get CPU info", zap.Error(err))
	} else if len(cpus) > 0 {
		f.CPUModel = strings.TrimSpace(cpus[0].ModelName)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		logger.Debug(ctx, "Collect failed to get virtual memory", zap.Error(err))
	} else {
		f.MemoryTotalMB = vm.Total / 1024 / 1024
	}
	return f
}

// Data renders the facts as chart values. The additional facts are only
// included when additional is set.
func (f Facts) Data(additional bool) map[string]chart.Value {
	data := map[string]chart.Value{
		FactRuntimeVersion.String(): chart.StringValue(f.RuntimeVersion),
		FactOSName.String():         chart.StringValue(f.OSName),
		FactOSArch.String():         chart.StringValue(f.OSArch),
		FactCoreCount.String():      chart.NumberValue(float64(f.CoreCount)),
	}
	if f.OSVersion != "" {
		data[FactOSVersion.String()] = chart.StringValue(f.OSVersion)
	}
	if !additional {
		return data
	}
	if f.Platform != "" {
		data[FactPlatform.String()] = chart.StringValue(f.Platform)
	}
	if f.CPUModel != "" {
		data[FactCPUModel.String()] = chart.StringValue(f.CPUModel)
	}
	if f.MemoryTotalMB > 0 {
		data[FactMemoryTotalMB.String()] = chart.NumberValue(float64(f.MemoryTotalMB))
	}
	return data
}

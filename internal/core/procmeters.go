package core

import (
	"math"
	"os"

	"github.com/harwoodlabs/meterbridge/internal/meter"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

// processInfo is the slice of gopsutil's process surface the built-in
// meters read from.
type processInfo interface {
	MemoryInfo() (*process.MemoryInfoStat, error)
	CPUTimes() (*cpuTimesStat, error)
}

type cpuTimesStat struct {
	User   float64
	System float64
}

type gopsutilProcess struct {
	proc *process.Process
}

func (p *gopsutilProcess) MemoryInfo() (*process.MemoryInfoStat, error) {
	return p.proc.MemoryInfo()
}

func (p *gopsutilProcess) CPUTimes() (*cpuTimesStat, error) {
	times, err := p.proc.Times()
	if err != nil {
		return nil, err
	}
	return &cpuTimesStat{User: times.User, System: times.System}, nil
}

// RegisterProcessMeters installs self-instrumentation for the current
// process: an RSS gauge and a cumulative CPU-time function counter.
// Read failures surface as NaN, which the publish path omits.
func RegisterProcessMeters(registry *meter.Registry, logger *logrus.Logger) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	return registerProcessMeters(registry, &gopsutilProcess{proc: proc}, logger)
}

func registerProcessMeters(registry *meter.Registry, info processInfo, logger *logrus.Logger) error {
	rssID := meter.NewID("process.memory.rss").
		WithUnit("bytes").
		WithDescription("resident set size of the bridged process")
	_, err := registry.Gauge(rssID, func() float64 {
		memoryInfo, err := info.MemoryInfo()
		if err != nil {
			logger.Errorf("failed to read process memory info: %v", err)
			return math.NaN()
		}
		return float64(memoryInfo.RSS)
	})
	if err != nil {
		return err
	}

	cpuID := meter.NewID("process.cpu.time").
		WithUnit("seconds").
		WithDescription("cumulative CPU time consumed by the bridged process")
	_, err = registry.FunctionCounter(cpuID, func() float64 {
		times, err := info.CPUTimes()
		if err != nil {
			logger.Errorf("failed to read process CPU times: %v", err)
			return math.NaN()
		}
		return times.User + times.System
	})
	return err
}

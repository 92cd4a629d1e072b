package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const gb = 1024 * 1024 * 1024

// Metrics is one point-in-time sample of the host.
type Metrics struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedGB  float64
	MemoryTotalGB float64
	DiskPercent   float64
	DiskUsedGB    float64
	DiskTotalGB   float64
	Load1         float64
	Load5         float64
	Load15        float64
}

// Map flattens the sample for status surfaces.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"cpu_percent":     m.CPUPercent,
		"memory_percent":  m.MemoryPercent,
		"memory_used_gb":  m.MemoryUsedGB,
		"memory_total_gb": m.MemoryTotalGB,
		"disk_percent":    m.DiskPercent,
		"disk_used_gb":    m.DiskUsedGB,
		"disk_total_gb":   m.DiskTotalGB,
		"load_1min":       m.Load1,
		"load_5min":       m.Load5,
		"load_15min":      m.Load15,
	}
}

// Sampler yields a host sample. The monitoring service takes it as a
// dependency so tests can force arbitrary readings.
type Sampler func(ctx context.Context, diskPath string) (Metrics, error)

// SystemSampler reads real host metrics via gopsutil. The CPU reading
// averages over one second, matching the usual sampling convention.
func SystemSampler(ctx context.Context, diskPath string) (Metrics, error) {
	var m Metrics

	cpuPcts, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return m, err
	}
	if len(cpuPcts) == 0 {
		return m, errors.New("no cpu sample")
	}
	m.CPUPercent = cpuPcts[0]

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return m, err
	}
	m.MemoryPercent = vm.UsedPercent
	m.MemoryUsedGB = float64(vm.Used) / gb
	m.MemoryTotalGB = float64(vm.Total) / gb

	du, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return m, err
	}
	m.DiskPercent = du.UsedPercent
	m.DiskUsedGB = float64(du.Used) / gb
	m.DiskTotalGB = float64(du.Total) / gb

	// Load averages are best-effort (not available everywhere).
	if avg, err := load.AvgWithContext(ctx); err == nil {
		m.Load1, m.Load5, m.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	return m, nil
}

// DiskUsage describes one filesystem path.
type DiskUsage struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	FreeGB  float64 `json:"free_gb"`
	Percent float64 `json:"percent"`
}

// ReadDiskUsage reports usage for an arbitrary path.
func ReadDiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{
		TotalGB: float64(du.Total) / gb,
		UsedGB:  float64(du.Used) / gb,
		FreeGB:  float64(du.Free) / gb,
		Percent: du.UsedPercent,
	}, nil
}

package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Gopsutil reads metrics through gopsutil.
type Gopsutil struct{}

// NewGopsutil returns the gopsutil-backed provider.
func NewGopsutil() *Gopsutil {
	return &Gopsutil{}
}

// CPUPercent implements Provider.
func (g *Gopsutil) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, errors.New("cpu percent: empty result")
	}
	return percents[0], nil
}

// CPUFrequencyMHz implements Provider.
func (g *Gopsutil) CPUFrequencyMHz(ctx context.Context) (float64, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("cpu info: %w", err)
	}
	var (
		sum   float64
		cores int
	)
	for _, info := range infos {
		if info.Mhz <= 0 {
			continue
		}
		sum += info.Mhz
		cores++
	}
	if cores == 0 {
		return 0, errors.New("cpu info: no frequency reported")
	}
	return sum / float64(cores), nil
}

// MemoryUsedBytes implements Provider.
func (g *Gopsutil) MemoryUsedBytes(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.Used, nil
}

// Process implements Provider.
func (g *Gopsutil) Process(ctx context.Context, pid int) (Process, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("bind process %d: %w", pid, err)
	}
	return &gopsutilProcess{proc: proc, numCPU: runtime.NumCPU()}, nil
}

type gopsutilProcess struct {
	proc   *process.Process
	numCPU int
}

func (p *gopsutilProcess) RSSBytes(ctx context.Context) (uint64, error) {
	info, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("process memory: %w", err)
	}
	return info.RSS, nil
}

// gopsutil reports a percentage of one core; divide to get machine share.
func (p *gopsutilProcess) CPUPercent(ctx context.Context) (float64, error) {
	percent, err := p.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("process cpu percent: %w", err)
	}
	if p.numCPU > 1 {
		percent /= float64(p.numCPU)
	}
	return percent, nil
}

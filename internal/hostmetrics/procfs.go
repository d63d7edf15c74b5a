package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// Procfs reads metrics straight from a proc filesystem. It works against any
// mount point, which lets containers point it at the host's /proc.
type Procfs struct {
	fs     procfs.FS
	numCPU int
	now    func() time.Time

	mu       sync.Mutex
	lastBusy float64
	lastAll  float64
	hasLast  bool
}

// NewProcfs opens the proc filesystem mounted at procRoot.
func NewProcfs(procRoot string) (*Procfs, error) {
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", procRoot, err)
	}
	return &Procfs{fs: fs, numCPU: runtime.NumCPU(), now: time.Now}, nil
}

// CPUPercent implements Provider.
func (p *Procfs) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	if interval > 0 {
		busy0, all0, err := p.cpuTimes()
		if err != nil {
			return 0, err
		}
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
		busy1, all1, err := p.cpuTimes()
		if err != nil {
			return 0, err
		}
		p.remember(busy1, all1)
		return busyPercent(busy0, all0, busy1, all1), nil
	}

	busy, all, err := p.cpuTimes()
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasLast {
		p.lastBusy, p.lastAll, p.hasLast = busy, all, true
		return 0, nil
	}
	percent := busyPercent(p.lastBusy, p.lastAll, busy, all)
	p.lastBusy, p.lastAll = busy, all
	return percent, nil
}

func (p *Procfs) remember(busy, all float64) {
	p.mu.Lock()
	p.lastBusy, p.lastAll, p.hasLast = busy, all, true
	p.mu.Unlock()
}

func (p *Procfs) cpuTimes() (busy, all float64, err error) {
	stat, err := p.fs.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("read stat: %w", err)
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	busy = c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return busy, busy + idle, nil
}

func busyPercent(busy0, all0, busy1, all1 float64) float64 {
	total := all1 - all0
	if total <= 0 {
		return 0
	}
	return clampPercent((busy1 - busy0) / total * 100)
}

// CPUFrequencyMHz implements Provider.
func (p *Procfs) CPUFrequencyMHz(context.Context) (float64, error) {
	infos, err := p.fs.CPUInfo()
	if err != nil {
		return 0, fmt.Errorf("read cpuinfo: %w", err)
	}
	var (
		sum   float64
		cores int
	)
	for _, info := range infos {
		if info.CPUMHz <= 0 {
			continue
		}
		sum += info.CPUMHz
		cores++
	}
	if cores == 0 {
		return 0, errors.New("cpuinfo: no frequency reported")
	}
	return sum / float64(cores), nil
}

// MemoryUsedBytes implements Provider. Used memory is total minus available
// when the kernel reports MemAvailable.
func (p *Procfs) MemoryUsedBytes(context.Context) (uint64, error) {
	info, err := p.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	if info.MemTotal == nil {
		return 0, errors.New("meminfo: MemTotal missing")
	}
	total := *info.MemTotal
	var free uint64
	if info.MemAvailable != nil {
		free = *info.MemAvailable
	} else {
		free = deref(info.MemFree) + deref(info.Buffers) + deref(info.Cached)
	}
	if free > total {
		return 0, nil
	}
	return (total - free) * 1024, nil
}

// Process implements Provider.
func (p *Procfs) Process(_ context.Context, pid int) (Process, error) {
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("bind process %d: %w", pid, err)
	}
	return &procfsProcess{proc: proc, numCPU: p.numCPU, now: p.now}, nil
}

type procfsProcess struct {
	proc   procfs.Proc
	numCPU int
	now    func() time.Time

	mu       sync.Mutex
	lastCPU  float64
	lastTime time.Time
}

func (p *procfsProcess) RSSBytes(context.Context) (uint64, error) {
	stat, err := p.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("process stat: %w", err)
	}
	rss := stat.ResidentMemory()
	if rss < 0 {
		return 0, fmt.Errorf("process stat: negative rss %d", rss)
	}
	return uint64(rss), nil
}

func (p *procfsProcess) CPUPercent(context.Context) (float64, error) {
	stat, err := p.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("process stat: %w", err)
	}
	cpuTime := stat.CPUTime()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastTime.IsZero() {
		p.lastCPU, p.lastTime = cpuTime, now
		return 0, nil
	}
	wall := now.Sub(p.lastTime).Seconds() * float64(max(p.numCPU, 1))
	used := cpuTime - p.lastCPU
	p.lastCPU, p.lastTime = cpuTime, now
	if wall <= 0 {
		return 0, nil
	}
	return clampPercent(used / wall * 100), nil
}

func clampPercent(v float64) float64 {
	return max(0, min(v, 100))
}

func deref(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

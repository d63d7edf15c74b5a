package sampler

import (
	"context"

	"github.com/skobkin/perflog/internal/accel"
)

// CPUUtilization returns system-wide CPU usage in percent.
func (s *Sampler) CPUUtilization(ctx context.Context) *float64 {
	v, err := s.host.CPUPercent(ctx, s.cpuInterval)
	if err != nil {
		return s.unavailable("cpu_utilization", err)
	}
	return &v
}

// CPUClockMHz returns the current CPU frequency.
func (s *Sampler) CPUClockMHz(ctx context.Context) *float64 {
	v, err := s.host.CPUFrequencyMHz(ctx)
	if err != nil {
		return s.unavailable("cpu_clockspeed", err)
	}
	return &v
}

// RAMUsedMB returns system-wide used memory.
func (s *Sampler) RAMUsedMB(ctx context.Context) *float64 {
	v, err := s.host.MemoryUsedBytes(ctx)
	if err != nil {
		return s.unavailable("ram", err)
	}
	return megabytes(v)
}

// ProcessRAMUsedMB returns the resident set size of the observed process.
func (s *Sampler) ProcessRAMUsedMB(ctx context.Context) *float64 {
	if s.proc == nil {
		return nil
	}
	v, err := s.proc.RSSBytes(ctx)
	if err != nil {
		return s.unavailable("process_ram", err)
	}
	return megabytes(v)
}

// ProcessCPUUtilization returns the observed process's share of total machine
// capacity since the previous call.
func (s *Sampler) ProcessCPUUtilization(ctx context.Context) *float64 {
	if s.proc == nil {
		return nil
	}
	v, err := s.proc.CPUPercent(ctx)
	if err != nil {
		return s.unavailable("process_cpu_utilization", err)
	}
	return &v
}

// GPUClockMHz returns the graphics clock of the accelerator.
func (s *Sampler) GPUClockMHz(context.Context) *float64 {
	device := s.session.Device()
	if device == nil {
		return nil
	}
	v, err := device.GraphicsClockMHz()
	if err != nil {
		return s.unavailable("gpu_clockspeed", err)
	}
	return &v
}

// GPUUtilization returns accelerator busy percent.
func (s *Sampler) GPUUtilization(context.Context) *float64 {
	device := s.session.Device()
	if device == nil {
		return nil
	}
	v, err := device.UtilizationPercent()
	if err != nil {
		return s.unavailable("gpu_utilization", err)
	}
	return &v
}

// VRAMUsedMB returns device-wide memory in use.
func (s *Sampler) VRAMUsedMB(context.Context) *float64 {
	device := s.session.Device()
	if device == nil {
		return nil
	}
	v, err := device.MemoryUsedBytes()
	if err != nil {
		return s.unavailable("vram", err)
	}
	return megabytes(v)
}

// ProcessVRAMUsedMB returns device memory attributed to the observed process.
// Compute processes are searched before graphics processes and the first
// entry for the PID wins. A process that is not listed reports 0.
func (s *Sampler) ProcessVRAMUsedMB(context.Context) *float64 {
	device := s.session.Device()
	if device == nil {
		return nil
	}

	compute, err := device.ComputeProcesses()
	if err != nil {
		return s.unavailable("process_vram", err)
	}
	if used, ok := findProcess(compute, s.pid); ok {
		return megabytes(used)
	}

	graphics, err := device.GraphicsProcesses()
	if err != nil {
		return s.unavailable("process_vram", err)
	}
	used, _ := findProcess(graphics, s.pid)
	return megabytes(used)
}

func findProcess(procs []accel.ProcessMemory, pid int) (uint64, bool) {
	for _, p := range procs {
		if p.PID == pid {
			return p.UsedBytes, true
		}
	}
	return 0, false
}

func (s *Sampler) unavailable(metric string, err error) *float64 {
	s.logger.Warn("metric unavailable", "metric", metric, "err", err)
	return nil
}

func megabytes(b uint64) *float64 {
	v := float64(b) / bytesPerMB
	return &v
}

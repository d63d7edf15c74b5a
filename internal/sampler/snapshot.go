package sampler

import (
	"context"
	"time"

	"github.com/skobkin/perflog/internal/logsink"
)

// Field keys of an emitted record.
const (
	FieldRuntime               = "runtime"
	FieldLap                   = "lap"
	FieldCPUUtilization        = "cpu_utilization"
	FieldCPUClockspeed         = "cpu_clockspeed"
	FieldRAM                   = "ram"
	FieldProcessRAM            = "process_ram"
	FieldProcessCPUUtilization = "process_cpu_utilization"
	FieldGPUUtilization        = "gpu_utilization"
	FieldGPUClockspeed         = "gpu_clockspeed"
	FieldVRAM                  = "vram"
	FieldProcessVRAM           = "process_vram"
	FieldAccelerator           = "accelerator"
)

// Snapshot is one complete set of metrics. Pointer fields are nil when the
// value is unavailable and serialize as null. Durations are in seconds.
type Snapshot struct {
	Message   string    `json:"msg"`
	Timestamp time.Time `json:"ts"`

	Runtime float64  `json:"runtime"`
	Lap     *float64 `json:"lap"`

	CPUUtilization        *float64 `json:"cpu_utilization"`
	CPUClockMHz           *float64 `json:"cpu_clockspeed"`
	RAMUsedMB             *float64 `json:"ram"`
	ProcessRAMUsedMB      *float64 `json:"process_ram"`
	ProcessCPUUtilization *float64 `json:"process_cpu_utilization"`

	GPUUtilization    *float64 `json:"gpu_utilization"`
	GPUClockMHz       *float64 `json:"gpu_clockspeed"`
	VRAMUsedMB        *float64 `json:"vram"`
	ProcessVRAMUsedMB *float64 `json:"process_vram"`

	Accelerator string `json:"accelerator"`
}

// Fields renders the snapshot as a sink record. Every key is present.
func (s Snapshot) Fields() logsink.Fields {
	return logsink.Fields{
		FieldRuntime:               s.Runtime,
		FieldLap:                   s.Lap,
		FieldCPUUtilization:        s.CPUUtilization,
		FieldCPUClockspeed:         s.CPUClockMHz,
		FieldRAM:                   s.RAMUsedMB,
		FieldProcessRAM:            s.ProcessRAMUsedMB,
		FieldProcessCPUUtilization: s.ProcessCPUUtilization,
		FieldGPUUtilization:        s.GPUUtilization,
		FieldGPUClockspeed:         s.GPUClockMHz,
		FieldVRAM:                  s.VRAMUsedMB,
		FieldProcessVRAM:           s.ProcessVRAMUsedMB,
		FieldAccelerator:           s.Accelerator,
	}
}

// Collect gathers a snapshot without emitting it. The lap clock advances.
func (s *Sampler) Collect(ctx context.Context) Snapshot {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	return s.collect(ctx, "")
}

// EmitSnapshot collects a snapshot and writes it to the sink as one record.
// Sink failures are logged, never returned.
func (s *Sampler) EmitSnapshot(ctx context.Context, message string) Snapshot {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	snap := s.collect(ctx, message)
	if err := s.sink.Write(ctx, message, snap.Fields()); err != nil {
		s.logger.Error("write snapshot failed", "message", message, "err", err)
	}
	return snap
}

func (s *Sampler) collect(ctx context.Context, message string) Snapshot {
	snap := Snapshot{
		Message:     message,
		Accelerator: s.session.Backend(),
	}

	if d, ok := s.Lap(); ok {
		secs := d.Seconds()
		snap.Lap = &secs
	}
	snap.Runtime = s.TotalRuntime().Seconds()

	snap.CPUUtilization = s.CPUUtilization(ctx)
	snap.CPUClockMHz = s.CPUClockMHz(ctx)
	snap.RAMUsedMB = s.RAMUsedMB(ctx)
	snap.ProcessRAMUsedMB = s.ProcessRAMUsedMB(ctx)
	snap.ProcessCPUUtilization = s.ProcessCPUUtilization(ctx)

	if s.session.Accelerated() {
		snap.GPUUtilization = s.GPUUtilization(ctx)
		snap.GPUClockMHz = s.GPUClockMHz(ctx)
		snap.VRAMUsedMB = s.VRAMUsedMB(ctx)
		snap.ProcessVRAMUsedMB = s.ProcessVRAMUsedMB(ctx)
	}

	snap.Timestamp = time.Now().UTC()

	s.mu.Lock()
	s.latest = snap
	s.hasLatest = true
	s.mu.Unlock()

	return snap
}

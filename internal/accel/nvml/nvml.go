//go:build linux && cgo

// Package nvml reads NVIDIA GPU telemetry through the NVML management library.
// The shared library is loaded at Init; hosts without the driver degrade to
// accel.ErrLibraryUnavailable.
package nvml

import (
	"fmt"
	"math"

	gonvml "github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/skobkin/perflog/internal/accel"
)

const backendName = "nvml"

// Library wraps an NVML instance. The instance is owned by the caller's
// accel.Session and is initialised and shut down exactly once through it.
type Library struct {
	lib gonvml.Interface
}

// New returns an NVML library that loads libnvidia-ml on Init.
func New(opts ...gonvml.LibraryOption) *Library {
	return &Library{lib: gonvml.New(opts...)}
}

func newWithInterface(lib gonvml.Interface) *Library {
	return &Library{lib: lib}
}

// Name implements accel.Library.
func (l *Library) Name() string {
	return backendName
}

// Init loads the library and initialises NVML.
func (l *Library) Init() error {
	ret := l.lib.Init()
	switch ret {
	case gonvml.SUCCESS:
		return nil
	case gonvml.ERROR_LIBRARY_NOT_FOUND, gonvml.ERROR_DRIVER_NOT_LOADED:
		return fmt.Errorf("%w: %s", accel.ErrLibraryUnavailable, l.errorString(ret))
	default:
		return l.wrap("init", ret)
	}
}

// DeviceCount implements accel.Library.
func (l *Library) DeviceCount() (int, error) {
	count, ret := l.lib.DeviceGetCount()
	if ret != gonvml.SUCCESS {
		return 0, l.wrap("device count", ret)
	}
	return count, nil
}

// DeviceByIndex implements accel.Library.
func (l *Library) DeviceByIndex(index int) (accel.Device, error) {
	handle, ret := l.lib.DeviceGetHandleByIndex(index)
	if ret != gonvml.SUCCESS {
		return nil, l.wrap(fmt.Sprintf("device handle %d", index), ret)
	}
	return &device{lib: l, handle: handle}, nil
}

// Shutdown releases NVML. Shutting down an uninitialised library reports an
// error which the session swallows.
func (l *Library) Shutdown() error {
	if ret := l.lib.Shutdown(); ret != gonvml.SUCCESS {
		return l.wrap("shutdown", ret)
	}
	return nil
}

func (l *Library) wrap(op string, ret gonvml.Return) error {
	return fmt.Errorf("nvml %s: %s", op, l.errorString(ret))
}

func (l *Library) errorString(ret gonvml.Return) string {
	return l.lib.ErrorString(ret)
}

type device struct {
	lib    *Library
	handle gonvml.Device
}

func (d *device) GraphicsClockMHz() (float64, error) {
	clock, ret := d.handle.GetClockInfo(gonvml.CLOCK_GRAPHICS)
	if ret != gonvml.SUCCESS {
		return 0, d.lib.wrap("graphics clock", ret)
	}
	return float64(clock), nil
}

func (d *device) UtilizationPercent() (float64, error) {
	util, ret := d.handle.GetUtilizationRates()
	if ret != gonvml.SUCCESS {
		return 0, d.lib.wrap("utilization", ret)
	}
	return float64(util.Gpu), nil
}

func (d *device) MemoryUsedBytes() (uint64, error) {
	mem, ret := d.handle.GetMemoryInfo()
	if ret != gonvml.SUCCESS {
		return 0, d.lib.wrap("memory info", ret)
	}
	return mem.Used, nil
}

func (d *device) ComputeProcesses() ([]accel.ProcessMemory, error) {
	infos, ret := d.handle.GetComputeRunningProcesses()
	if ret != gonvml.SUCCESS {
		return nil, d.lib.wrap("compute processes", ret)
	}
	return convertProcesses(infos), nil
}

func (d *device) GraphicsProcesses() ([]accel.ProcessMemory, error) {
	infos, ret := d.handle.GetGraphicsRunningProcesses()
	if ret != gonvml.SUCCESS {
		return nil, d.lib.wrap("graphics processes", ret)
	}
	return convertProcesses(infos), nil
}

func convertProcesses(infos []gonvml.ProcessInfo) []accel.ProcessMemory {
	out := make([]accel.ProcessMemory, 0, len(infos))
	for _, info := range infos {
		used := info.UsedGpuMemory
		// NVML reports NVML_VALUE_NOT_AVAILABLE under WDDM and for MIG guests.
		if used == math.MaxUint64 {
			used = 0
		}
		out = append(out, accel.ProcessMemory{
			PID:       int(info.Pid),
			UsedBytes: used,
		})
	}
	return out
}

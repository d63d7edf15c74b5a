// Package amdgpu reads AMD GPU telemetry from sysfs and attributes VRAM to
// processes through /proc fdinfo. It needs no vendor library, only a kernel
// running the amdgpu driver.
package amdgpu

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/skobkin/perflog/internal/accel"
)

const backendName = "amdgpu"

// Options tunes where the backend looks. PID is the process VRAM is
// attributed to.
type Options struct {
	SysfsRoot string
	ProcRoot  string
	PID       int
}

// Library discovers amdgpu cards on Init.
type Library struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	cards []Info
	ready bool
}

// New builds the backend. Empty roots default to /sys and /proc and a zero
// PID selects the calling process.
func New(opts Options, logger *slog.Logger) *Library {
	if opts.SysfsRoot == "" {
		opts.SysfsRoot = "/sys"
	}
	if opts.ProcRoot == "" {
		opts.ProcRoot = "/proc"
	}
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Library{
		opts:   opts,
		logger: logger.With("backend", backendName),
	}
}

// Name implements accel.Library.
func (l *Library) Name() string {
	return backendName
}

// Init enumerates cards. A host without DRM sysfs reports
// accel.ErrLibraryUnavailable.
func (l *Library) Init() error {
	cards, err := Discover(l.opts.SysfsRoot, l.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", accel.ErrLibraryUnavailable, err)
	}
	if cards == nil {
		return fmt.Errorf("%w: no drm class in %s", accel.ErrLibraryUnavailable, l.opts.SysfsRoot)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cards = cards
	l.ready = true
	for _, card := range cards {
		l.logger.Info("amdgpu card found", "card", card.ID, "name", card.Name, "pci", card.PCI)
	}
	return nil
}

// Cards returns the cards found by Init.
func (l *Library) Cards() []Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Info(nil), l.cards...)
}

// DeviceCount implements accel.Library.
func (l *Library) DeviceCount() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return 0, errNotInitialised
	}
	return len(l.cards), nil
}

// DeviceByIndex implements accel.Library.
func (l *Library) DeviceByIndex(index int) (accel.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil, errNotInitialised
	}
	if index < 0 || index >= len(l.cards) {
		return nil, fmt.Errorf("device index %d out of range [0,%d)", index, len(l.cards))
	}
	info := l.cards[index]
	logger := l.logger.With("card", info.ID)
	return &Device{
		info:       info,
		devicePath: filepath.Join(l.opts.SysfsRoot, drmClassPath, info.ID, "device"),
		procs:      newProcScanner(l.opts.ProcRoot, l.opts.PID, info, logger),
	}, nil
}

// Shutdown forgets the discovered cards.
func (l *Library) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return errNotInitialised
	}
	l.cards = nil
	l.ready = false
	return nil
}

var errNotInitialised = errors.New("amdgpu backend not initialised")

// Device reads one card's sysfs attributes.
type Device struct {
	info       Info
	devicePath string
	procs      *procScanner
}

// Info describes the card behind the handle.
func (d *Device) Info() Info {
	return d.info
}

// GraphicsClockMHz returns the active shader clock level.
func (d *Device) GraphicsClockMHz() (float64, error) {
	return readCurrentClock(filepath.Join(d.devicePath, ppDpmSclkFilename))
}

// UtilizationPercent returns the graphics engine busy percentage.
func (d *Device) UtilizationPercent() (float64, error) {
	return readPercent(filepath.Join(d.devicePath, gpuBusyFilename))
}

// MemoryUsedBytes returns device-wide VRAM usage.
func (d *Device) MemoryUsedBytes() (uint64, error) {
	return readUint(filepath.Join(d.devicePath, vramUsedFilename))
}

// ComputeProcesses reports the observed process when it holds VRAM on this
// card, attributed through fdinfo. The kernel does not separate compute from
// graphics clients, so every DRM client is reported here.
func (d *Device) ComputeProcesses() ([]accel.ProcessMemory, error) {
	return d.procs.scan()
}

// GraphicsProcesses is always empty on this backend.
func (d *Device) GraphicsProcesses() ([]accel.ProcessMemory, error) {
	return nil, nil
}

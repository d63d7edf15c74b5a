// Package accel defines the accelerator access layer and the one-time
// capability probe that decides whether GPU metrics are collected.
package accel

import "errors"

var (
	// ErrLibraryUnavailable reports that the vendor access layer is not
	// installed or cannot be loaded. Detection treats it as "no accelerator".
	ErrLibraryUnavailable = errors.New("accelerator library unavailable")
	// ErrNoDevice reports that the access layer works but lists no device.
	ErrNoDevice = errors.New("no accelerator device")
)

// ProcessMemory attributes device memory to a single process.
type ProcessMemory struct {
	PID       int
	UsedBytes uint64
}

// Library is a vendor access layer. Init and Shutdown bracket every other call.
type Library interface {
	Name() string
	Init() error
	DeviceCount() (int, error)
	DeviceByIndex(index int) (Device, error)
	Shutdown() error
}

// Device is a handle to a single accelerator.
type Device interface {
	GraphicsClockMHz() (float64, error)
	UtilizationPercent() (float64, error)
	MemoryUsedBytes() (uint64, error)
	ComputeProcesses() ([]ProcessMemory, error)
	GraphicsProcesses() ([]ProcessMemory, error)
}

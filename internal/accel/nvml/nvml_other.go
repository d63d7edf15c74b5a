//go:build !(linux && cgo)

package nvml

import (
	"fmt"

	"github.com/skobkin/perflog/internal/accel"
)

const backendName = "nvml"

// Library is a placeholder on builds without cgo or outside Linux. Init always
// reports accel.ErrLibraryUnavailable so detection falls through.
type Library struct{}

// New returns the placeholder library.
func New() *Library {
	return &Library{}
}

// Name implements accel.Library.
func (l *Library) Name() string { return backendName }

// Init implements accel.Library.
func (l *Library) Init() error {
	return fmt.Errorf("%w: built without cgo nvml support", accel.ErrLibraryUnavailable)
}

// DeviceCount implements accel.Library.
func (l *Library) DeviceCount() (int, error) { return 0, accel.ErrLibraryUnavailable }

// DeviceByIndex implements accel.Library.
func (l *Library) DeviceByIndex(int) (accel.Device, error) {
	return nil, accel.ErrLibraryUnavailable
}

// Shutdown implements accel.Library.
func (l *Library) Shutdown() error { return nil }

package accel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Session owns the libraries initialised during detection and, when one of
// them exposes a device, the handle to device index 0.
type Session struct {
	logger  *slog.Logger
	libs    []Library
	device  Device
	backend string

	closeOnce sync.Once
}

// Detect probes libs in order and stops at the first one that reports at
// least one device. It never fails: any probe error degrades to a session
// without an accelerator.
func Detect(logger *slog.Logger, libs ...Library) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{logger: logger.With("component", "accel")}

	for _, lib := range libs {
		if lib == nil {
			continue
		}
		device, err := s.probe(lib)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, ErrLibraryUnavailable) || errors.Is(err, ErrNoDevice) {
				level = slog.LevelDebug
			}
			s.logger.Log(context.Background(), level, "accelerator probe failed", "backend", lib.Name(), "err", err)
			continue
		}
		s.device = device
		s.backend = lib.Name()
		s.logger.Info("accelerator detected", "backend", s.backend)
		return s
	}

	s.logger.Info("no accelerator detected, gpu metrics disabled")
	return s
}

func (s *Session) probe(lib Library) (device Device, err error) {
	defer func() {
		if r := recover(); r != nil {
			device = nil
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	if err := lib.Init(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	s.libs = append(s.libs, lib)

	count, err := lib.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("device count: %w", err)
	}
	if count < 1 {
		return nil, ErrNoDevice
	}

	device, err = lib.DeviceByIndex(0)
	if err != nil {
		return nil, fmt.Errorf("device 0: %w", err)
	}
	if device == nil {
		return nil, ErrNoDevice
	}
	return device, nil
}

// Accelerated reports whether a device handle was acquired.
func (s *Session) Accelerated() bool {
	return s != nil && s.device != nil
}

// Device returns the handle to device index 0, or nil.
func (s *Session) Device() Device {
	if s == nil {
		return nil
	}
	return s.device
}

// Backend names the library that supplied the device.
func (s *Session) Backend() string {
	if s == nil {
		return ""
	}
	return s.backend
}

// Close shuts down every library initialised by Detect. Shutdown failures are
// logged and swallowed. Repeated calls do nothing.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		for i := len(s.libs) - 1; i >= 0; i-- {
			lib := s.libs[i]
			if err := shutdown(lib); err != nil {
				s.logger.Debug("accelerator shutdown failed", "backend", lib.Name(), "err", err)
			}
		}
		s.libs = nil
	})
}

func shutdown(lib Library) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown panicked: %v", r)
		}
	}()
	return lib.Shutdown()
}

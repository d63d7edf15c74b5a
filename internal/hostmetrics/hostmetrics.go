// Package hostmetrics reads system-wide and per-process CPU and memory usage.
package hostmetrics

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider answers system-wide queries and binds process handles.
type Provider interface {
	// CPUPercent samples system CPU utilisation over interval. A zero interval
	// compares against the previous call and may legitimately return 0.
	CPUPercent(ctx context.Context, interval time.Duration) (float64, error)
	// CPUFrequencyMHz returns the mean current frequency across cores.
	CPUFrequencyMHz(ctx context.Context) (float64, error)
	MemoryUsedBytes(ctx context.Context) (uint64, error)
	Process(ctx context.Context, pid int) (Process, error)
}

// Process answers queries scoped to one PID.
type Process interface {
	RSSBytes(ctx context.Context) (uint64, error)
	// CPUPercent returns the share of total machine capacity used since the
	// previous call. The first call establishes the baseline and returns 0.
	CPUPercent(ctx context.Context) (float64, error)
}

// Source names a Provider implementation.
type Source string

const (
	SourceGopsutil Source = "gopsutil"
	SourceProcfs   Source = "procfs"
)

// ParseSource validates a configured source name.
func ParseSource(value string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(value))) {
	case SourceGopsutil:
		return SourceGopsutil, nil
	case SourceProcfs:
		return SourceProcfs, nil
	default:
		return "", fmt.Errorf("unsupported host metrics source %q", value)
	}
}

// New builds the provider for source. procRoot is only used by procfs.
func New(source Source, procRoot string) (Provider, error) {
	switch source {
	case SourceGopsutil, "":
		return NewGopsutil(), nil
	case SourceProcfs:
		return NewProcfs(procRoot)
	default:
		return nil, fmt.Errorf("unsupported host metrics source %q", source)
	}
}

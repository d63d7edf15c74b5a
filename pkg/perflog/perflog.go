// Package perflog embeds a performance-telemetry sampler into a host process.
//
// A Perflog captures system, process and (when an NVIDIA or AMD GPU is
// reachable) accelerator usage on demand and appends each snapshot as one
// JSON record to a log file:
//
//	p, err := perflog.New(ctx, perflog.Options{})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	p.EmitSnapshot(ctx, "epoch done")
package perflog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/skobkin/perflog/internal/accel"
	"github.com/skobkin/perflog/internal/accel/amdgpu"
	"github.com/skobkin/perflog/internal/accel/nvml"
	"github.com/skobkin/perflog/internal/hostmetrics"
	"github.com/skobkin/perflog/internal/logsink"
	"github.com/skobkin/perflog/internal/sampler"
)

type (
	// Snapshot is one complete set of metrics.
	Snapshot = sampler.Snapshot
	// Fields is the key/value payload of an emitted record.
	Fields = logsink.Fields
	// Sink receives emitted records.
	Sink = logsink.Sink
	// SinkFunc adapts a function to Sink.
	SinkFunc = logsink.SinkFunc
	// Clock supplies readings for the lap clock.
	Clock = sampler.Clock
)

// Accelerator backends accepted by Options.Accelerator.
const (
	AcceleratorAuto   = "auto"
	AcceleratorNVML   = "nvml"
	AcceleratorAMDGPU = "amdgpu"
	AcceleratorNone   = "none"
)

// Options configure New. The zero value samples the current process, writes
// to logs/perflog.txt and probes NVML then amdgpu.
type Options struct {
	Logger *slog.Logger

	LogDir  string
	LogFile string
	// NoFile disables the JSON log file; records then only reach Sinks.
	NoFile bool
	Sinks  []Sink

	// HostSource is "gopsutil" (default) or "procfs".
	HostSource string
	// Accelerator is one of the Accelerator* constants. Empty means auto.
	Accelerator string
	SysfsRoot   string
	ProcRoot    string

	PID   int
	Clock Clock
	// CPUSampleInterval bounds system CPU sampling. Zero selects the default
	// of 10ms; a negative value reads since the previous call without blocking.
	CPUSampleInterval time.Duration
}

// Perflog is a sampler bound to its log destinations.
type Perflog struct {
	*sampler.Sampler

	file *logsink.File
}

// New detects the accelerator once, binds the process and opens the log file.
func New(ctx context.Context, opts Options) (*Perflog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	source := hostmetrics.SourceGopsutil
	if opts.HostSource != "" {
		parsed, err := hostmetrics.ParseSource(opts.HostSource)
		if err != nil {
			return nil, err
		}
		source = parsed
	}
	host, err := hostmetrics.New(source, opts.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("init host metrics: %w", err)
	}

	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	libs, err := libraries(opts.Accelerator, amdgpu.Options{
		SysfsRoot: opts.SysfsRoot,
		ProcRoot:  opts.ProcRoot,
		PID:       pid,
	}, logger)
	if err != nil {
		return nil, err
	}

	var (
		sinks = append([]Sink(nil), opts.Sinks...)
		file  *logsink.File
	)
	if !opts.NoFile {
		dir, name := opts.LogDir, opts.LogFile
		if dir == "" {
			dir = logsink.DefaultDir
		}
		if name == "" {
			name = logsink.DefaultFile
		}
		file, err = logsink.Open(dir, name)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		sinks = append([]Sink{file}, sinks...)
	}

	interval := opts.CPUSampleInterval
	switch {
	case interval == 0:
		interval = sampler.DefaultCPUSampleInterval
	case interval < 0:
		interval = 0
	}

	session := accel.Detect(logger, libs...)
	s, err := sampler.New(ctx, sampler.Options{
		Host:              host,
		Sink:              logsink.Multi(sinks...),
		Session:           session,
		Logger:            logger,
		Clock:             opts.Clock,
		PID:               pid,
		CPUSampleInterval: interval,
	})
	if err != nil {
		session.Close()
		if file != nil {
			err = errors.Join(err, file.Close())
		}
		return nil, err
	}

	return &Perflog{Sampler: s, file: file}, nil
}

// LogPath returns the JSON log file path, or "" when the file is disabled.
func (p *Perflog) LogPath() string {
	if p.file == nil {
		return ""
	}
	return p.file.Path()
}

// Close releases the accelerator session and closes the log file.
func (p *Perflog) Close() error {
	err := p.Sampler.Close()
	if p.file != nil {
		err = errors.Join(err, p.file.Close())
	}
	return err
}

// libraries returns the accelerator backends probed for mode, in order.
func libraries(mode string, amd amdgpu.Options, logger *slog.Logger) ([]accel.Library, error) {
	switch mode {
	case "", AcceleratorAuto:
		return []accel.Library{nvml.New(), amdgpu.New(amd, logger)}, nil
	case AcceleratorNVML:
		return []accel.Library{nvml.New()}, nil
	case AcceleratorAMDGPU:
		return []accel.Library{amdgpu.New(amd, logger)}, nil
	case AcceleratorNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported accelerator %q", mode)
	}
}

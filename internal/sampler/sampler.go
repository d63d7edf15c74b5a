// Package sampler captures point-in-time resource usage of the host process
// and emits it as structured records.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/skobkin/perflog/internal/accel"
	"github.com/skobkin/perflog/internal/hostmetrics"
	"github.com/skobkin/perflog/internal/logsink"
)

const (
	// DefaultCPUSampleInterval bounds how long a system CPU reading may block.
	DefaultCPUSampleInterval = 10 * time.Millisecond

	bytesPerMB = 1024 * 1024
)

// Options configure a Sampler.
type Options struct {
	Host    hostmetrics.Provider
	Sink    logsink.Sink
	Session *accel.Session
	Logger  *slog.Logger
	Clock   Clock
	// PID selects the observed process. Zero means the current process.
	PID int
	// CPUSampleInterval is passed to Provider.CPUPercent. Zero reads since the
	// previous call without blocking.
	CPUSampleInterval time.Duration
}

// Sampler measures system, process and accelerator usage on demand.
type Sampler struct {
	host        hostmetrics.Provider
	sink        logsink.Sink
	session     *accel.Session
	logger      *slog.Logger
	pid         int
	cpuInterval time.Duration

	proc hostmetrics.Process

	lap *lapClock

	emitMu sync.Mutex

	mu        sync.RWMutex
	latest    Snapshot
	hasLatest bool

	closeOnce sync.Once
}

// New builds a Sampler. A nil Session means no accelerator; the sampler takes
// ownership of a non-nil one and closes it in Close.
func New(ctx context.Context, opts Options) (*Sampler, error) {
	if opts.Host == nil {
		return nil, errors.New("host metrics provider is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("log sink is required")
	}
	if opts.CPUSampleInterval < 0 {
		return nil, fmt.Errorf("cpu sample interval must be >= 0, got %s", opts.CPUSampleInterval)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "sampler")

	session := opts.Session
	if session == nil {
		session = accel.Detect(logger)
	}

	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	s := &Sampler{
		host:        opts.Host,
		sink:        opts.Sink,
		session:     session,
		logger:      logger,
		pid:         pid,
		cpuInterval: opts.CPUSampleInterval,
		lap:         newLapClock(opts.Clock),
	}

	proc, err := opts.Host.Process(ctx, pid)
	if err != nil {
		logger.Warn("process metrics unavailable", "pid", pid, "err", err)
	} else {
		s.proc = proc
		if _, err := proc.CPUPercent(ctx); err != nil {
			logger.Debug("prime process cpu baseline failed", "pid", pid, "err", err)
		}
	}

	logger.Debug("sampler ready", "pid", pid, "accelerated", session.Accelerated(), "backend", session.Backend())
	return s, nil
}

// Accelerated reports the result of the one-time detection pass.
func (s *Sampler) Accelerated() bool {
	return s.session.Accelerated()
}

// Backend names the accelerator backend in use, or "".
func (s *Sampler) Backend() string {
	return s.session.Backend()
}

// PID returns the observed process id.
func (s *Sampler) PID() int {
	return s.pid
}

// Lap returns the time elapsed since the previous lap (or since construction)
// and adds it to the total runtime. ok is false when the clock reading could
// not be used; the accumulator is then left untouched.
func (s *Sampler) Lap() (time.Duration, bool) {
	d, err := s.lap.lap()
	if err != nil {
		s.logger.Warn("lap failed", "err", err)
		return 0, false
	}
	return d, true
}

// TotalRuntime returns the sum of all successful laps.
func (s *Sampler) TotalRuntime() time.Duration {
	return s.lap.total()
}

// Latest returns the most recently collected snapshot.
func (s *Sampler) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasLatest
}

// Close releases the accelerator session. Repeated calls do nothing.
func (s *Sampler) Close() error {
	s.closeOnce.Do(func() {
		s.session.Close()
		s.logger.Debug("sampler closed")
	})
	return nil
}

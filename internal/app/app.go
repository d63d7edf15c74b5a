// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skobkin/perflog/internal/config"
	"github.com/skobkin/perflog/internal/httpserver"
	"github.com/skobkin/perflog/internal/stream"
	"github.com/skobkin/perflog/pkg/perflog"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle: it samples at cfg.SampleInterval
// and, when enabled, serves the HTTP surface until ctx is canceled.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	var hub *stream.Hub
	var sinks []perflog.Sink
	if cfg.HTTP.Enable {
		hub = stream.NewHub(baseLogger)
		sinks = append(sinks, hub)
		defer func() { _ = hub.Close() }()
	}

	p, err := perflog.New(ctx, Options(cfg, baseLogger, sinks...))
	if err != nil {
		return fmt.Errorf("init sampler: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			appLogger.Warn("sampler close", "err", err)
		}
	}()

	appLogger.Info("sampler initialised",
		"pid", p.PID(),
		"accelerated", p.Accelerated(),
		"backend", p.Backend(),
		"log_path", p.LogPath(),
	)

	samplerCtx, samplerCancel := context.WithCancel(ctx)
	defer samplerCancel()

	samplerErrCh := make(chan error, 1)
	go func() {
		samplerErrCh <- p.Run(samplerCtx, cfg.SampleInterval, cfg.SampleMessage)
	}()

	if !cfg.HTTP.Enable {
		err := <-samplerErrCh
		appLogger.Info("shutdown complete")
		return err
	}

	srv := httpserver.New(cfg, baseLogger, p, hub)
	appLogger.Info("starting HTTP server", "listen_addr", cfg.HTTP.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		samplerCancel()
		if samplerErr := <-samplerErrCh; samplerErr != nil && !errors.Is(samplerErr, context.Canceled) {
			return errors.Join(err, samplerErr)
		}
		return err
	case err := <-samplerErrCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, srv.Shutdown(shutdownCtx))
	case <-ctx.Done():
		appLogger.Info("shutdown initiated", "reason", ctx.Err())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := <-errCh; err != nil {
			return err
		}

		samplerCancel()
		if err := <-samplerErrCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		appLogger.Info("shutdown complete")
		return nil
	}
}

// Options maps configuration onto the embedding facade.
func Options(cfg config.Config, logger *slog.Logger, sinks ...perflog.Sink) perflog.Options {
	cpuInterval := cfg.CPUSampleInterval
	if cpuInterval == 0 {
		cpuInterval = -1
	}
	return perflog.Options{
		Logger:            logger,
		LogDir:            cfg.LogDir,
		LogFile:           cfg.LogFile,
		Sinks:             sinks,
		HostSource:        string(cfg.HostSource),
		Accelerator:       string(cfg.Accelerator),
		SysfsRoot:         cfg.SysfsRoot,
		ProcRoot:          cfg.ProcRoot,
		CPUSampleInterval: cpuInterval,
	}
}

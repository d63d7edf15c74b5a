package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skobkin/perflog/internal/accel/amdgpu"
	"github.com/skobkin/perflog/internal/app"
	"github.com/skobkin/perflog/internal/config"
	"github.com/skobkin/perflog/internal/version"
	"github.com/skobkin/perflog/pkg/perflog"
)

type options struct {
	count       int
	interval    time.Duration
	message     string
	writeFile   bool
	listCards   bool
	showVersion bool
	logLevel    string
}

func parseFlags(cfg config.Config) options {
	opts := options{count: 1}
	pflag.IntVarP(&opts.count, "count", "n", 1, "Number of snapshots to print")
	pflag.DurationVarP(&opts.interval, "interval", "i", time.Second, "Delay between snapshots")
	pflag.StringVarP(&opts.message, "message", "m", "probe", "Message attached to each snapshot")
	pflag.BoolVar(&opts.writeFile, "write-file", false, "Also append snapshots to the JSON log file")
	pflag.BoolVar(&opts.listCards, "list-amdgpu", false, "List discovered amdgpu cards and exit")
	pflag.BoolVarP(&opts.showVersion, "version", "v", false, "Print version and exit")
	pflag.StringVar(&opts.logLevel, "log-level", cfg.LogLevel.String(), "Diagnostic log level")
	pflag.Parse()
	return opts
}

func main() {
	version.Set(version.Info{})

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	opts := parseFlags(cfg)
	if opts.showVersion {
		fmt.Println(version.Current().String())
		return
	}

	level, err := config.ParseLogLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--log-level: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if opts.listCards {
		if err := listCards(cfg, logger); err != nil {
			logger.Error("amdgpu discovery failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := probe(ctx, cfg, opts, logger); err != nil {
		logger.Error("probe failed", "err", err)
		os.Exit(1)
	}
}

func probe(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	factoryOpts := app.Options(cfg, logger)
	factoryOpts.NoFile = !opts.writeFile

	p, err := perflog.New(ctx, factoryOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("close sampler", "err", err)
		}
	}()

	logger.Info("probing", "pid", p.PID(), "backend", p.Backend(), "count", opts.count)

	for i := 0; opts.count <= 0 || i < opts.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.interval):
			}
		}
		snap := p.EmitSnapshot(ctx, opts.message)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
	}
	return nil
}

func listCards(cfg config.Config, logger *slog.Logger) error {
	infos, err := amdgpu.Discover(cfg.SysfsRoot, logger)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No amdgpu cards detected")
		return nil
	}
	fmt.Println("Discovered amdgpu cards:")
	for _, info := range infos {
		fmt.Printf("- %s (PCI: %s, PCIID: %s, Render: %s, Name: %s)\n", info.ID, info.PCI, info.PCIID, info.RenderNode, info.Name)
	}
	return nil
}

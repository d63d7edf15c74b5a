// Package config loads runtime settings from PERFLOG_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skobkin/perflog/internal/hostmetrics"
	"github.com/skobkin/perflog/internal/logsink"
)

const envPrefix = "PERFLOG_"

// Accelerator selects which accelerator backends are probed.
type Accelerator string

const (
	AcceleratorAuto   Accelerator = "auto"
	AcceleratorNVML   Accelerator = "nvml"
	AcceleratorAMDGPU Accelerator = "amdgpu"
	AcceleratorNone   Accelerator = "none"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	LogLevel          slog.Level
	LogDir            string
	LogFile           string
	SampleInterval    time.Duration
	SampleMessage     string
	CPUSampleInterval time.Duration
	HostSource        hostmetrics.Source
	Accelerator       Accelerator
	SysfsRoot         string
	ProcRoot          string
	HTTP              HTTPConfig
}

// HTTPConfig controls the optional HTTP surface.
type HTTPConfig struct {
	Enable           bool
	ListenAddr       string
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	WS               WebsocketConfig
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		LogLevel:          slog.LevelInfo,
		LogDir:            logsink.DefaultDir,
		LogFile:           logsink.DefaultFile,
		SampleInterval:    5 * time.Second,
		SampleMessage:     "snapshot",
		CPUSampleInterval: 10 * time.Millisecond,
		HostSource:        hostmetrics.SourceGopsutil,
		Accelerator:       AcceleratorAuto,
		SysfsRoot:         "/sys",
		ProcRoot:          "/proc",
		HTTP: HTTPConfig{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
			WS: WebsocketConfig{
				MaxClients:   64,
				WriteTimeout: 3 * time.Second,
			},
		},
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	if value, ok := lookup("LOG_LEVEL"); ok {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %sLOG_LEVEL: %w", envPrefix, err)
		}
		cfg.LogLevel = level
	}

	if value, ok := lookup("LOG_DIR"); ok {
		cfg.LogDir = value
	}
	if value, ok := lookup("LOG_FILE"); ok {
		if strings.ContainsRune(value, os.PathSeparator) {
			return Config{}, fmt.Errorf("%sLOG_FILE must be a file name, got %q", envPrefix, value)
		}
		cfg.LogFile = value
	}

	var err error
	if cfg.SampleInterval, err = durationVar("SAMPLE_INTERVAL", cfg.SampleInterval, false); err != nil {
		return Config{}, err
	}
	if value, ok := lookup("SAMPLE_MESSAGE"); ok {
		cfg.SampleMessage = value
	}
	if cfg.CPUSampleInterval, err = durationVar("CPU_SAMPLE_INTERVAL", cfg.CPUSampleInterval, true); err != nil {
		return Config{}, err
	}

	if value, ok := lookup("HOST_SOURCE"); ok {
		source, err := hostmetrics.ParseSource(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %sHOST_SOURCE: %w", envPrefix, err)
		}
		cfg.HostSource = source
	}

	if value, ok := lookup("ACCELERATOR"); ok {
		mode, err := parseAccelerator(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %sACCELERATOR: %w", envPrefix, err)
		}
		cfg.Accelerator = mode
	}

	if value, ok := lookup("SYSFS_ROOT"); ok {
		cfg.SysfsRoot = value
	}
	if value, ok := lookup("PROC_ROOT"); ok {
		cfg.ProcRoot = value
	}

	if cfg.HTTP.Enable, err = boolVar("HTTP_ENABLE", cfg.HTTP.Enable); err != nil {
		return Config{}, err
	}
	if value, ok := lookup("LISTEN_ADDR"); ok {
		cfg.HTTP.ListenAddr = value
	}
	if value, ok := lookup("ALLOWED_ORIGINS"); ok {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("%sALLOWED_ORIGINS must not be empty", envPrefix)
		}
		cfg.HTTP.AllowedOrigins = origins
	}
	if cfg.HTTP.EnablePrometheus, err = boolVar("ENABLE_PROMETHEUS", cfg.HTTP.EnablePrometheus); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.EnablePprof, err = boolVar("ENABLE_PPROF", cfg.HTTP.EnablePprof); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.WS.MaxClients, err = positiveIntVar("WS_MAX_CLIENTS", cfg.HTTP.WS.MaxClients); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.WS.WriteTimeout, err = durationVar("WS_WRITE_TIMEOUT", cfg.HTTP.WS.WriteTimeout, false); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func lookup(name string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(envPrefix + name))
	return value, value != ""
}

func durationVar(name string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	value, ok := lookup(name)
	if !ok {
		return fallback, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
	}
	if duration < 0 || (duration == 0 && !allowZero) {
		if allowZero {
			return 0, fmt.Errorf("%s%s must be >= 0", envPrefix, name)
		}
		return 0, fmt.Errorf("%s%s must be > 0", envPrefix, name)
	}
	return duration, nil
}

func positiveIntVar(name string, fallback int) (int, error) {
	value, ok := lookup(name)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s%s must be > 0", envPrefix, name)
	}
	return n, nil
}

func boolVar(name string, fallback bool) (bool, error) {
	value, ok := lookup(name)
	if !ok {
		return fallback, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
	}
	return enabled, nil
}

func parseAccelerator(input string) (Accelerator, error) {
	switch mode := Accelerator(strings.ToLower(strings.TrimSpace(input))); mode {
	case AcceleratorAuto, AcceleratorNVML, AcceleratorAMDGPU, AcceleratorNone:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported accelerator %q", input)
	}
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseLogLevel maps a level name to slog.Level.
func ParseLogLevel(input string) (slog.Level, error) {
	return parseLogLevel(input)
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}

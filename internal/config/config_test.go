package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/skobkin/perflog/internal/hostmetrics"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.LogDir != "logs" || cfg.LogFile != "perflog.txt" {
		t.Fatalf("unexpected log destination %q/%q", cfg.LogDir, cfg.LogFile)
	}
	if cfg.SampleInterval != 5*time.Second {
		t.Fatalf("unexpected SampleInterval %s", cfg.SampleInterval)
	}
	if cfg.SampleMessage != "snapshot" {
		t.Fatalf("unexpected SampleMessage %q", cfg.SampleMessage)
	}
	if cfg.CPUSampleInterval != 10*time.Millisecond {
		t.Fatalf("unexpected CPUSampleInterval %s", cfg.CPUSampleInterval)
	}
	if cfg.HostSource != hostmetrics.SourceGopsutil {
		t.Fatalf("unexpected HostSource %q", cfg.HostSource)
	}
	if cfg.Accelerator != AcceleratorAuto {
		t.Fatalf("unexpected Accelerator %q", cfg.Accelerator)
	}
	if cfg.SysfsRoot != "/sys" {
		t.Fatalf("unexpected SysfsRoot %q", cfg.SysfsRoot)
	}
	if cfg.ProcRoot != "/proc" {
		t.Fatalf("unexpected ProcRoot %q", cfg.ProcRoot)
	}
	if cfg.HTTP.Enable {
		t.Fatalf("expected HTTP surface disabled by default")
	}
	if cfg.HTTP.ListenAddr != ":8080" {
		t.Fatalf("unexpected ListenAddr %q", cfg.HTTP.ListenAddr)
	}
	if cfg.HTTP.WS.MaxClients != 64 {
		t.Fatalf("unexpected WS.MaxClients %d", cfg.HTTP.WS.MaxClients)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PERFLOG_LOG_LEVEL", "debug")
	t.Setenv("PERFLOG_LOG_DIR", "/var/log/perflog")
	t.Setenv("PERFLOG_LOG_FILE", "run.jsonl")
	t.Setenv("PERFLOG_SAMPLE_INTERVAL", "500ms")
	t.Setenv("PERFLOG_SAMPLE_MESSAGE", "tick")
	t.Setenv("PERFLOG_CPU_SAMPLE_INTERVAL", "0")
	t.Setenv("PERFLOG_HOST_SOURCE", "procfs")
	t.Setenv("PERFLOG_ACCELERATOR", "AMDGPU")
	t.Setenv("PERFLOG_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("PERFLOG_PROC_ROOT", "/tmp/proc")
	t.Setenv("PERFLOG_HTTP_ENABLE", "true")
	t.Setenv("PERFLOG_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("PERFLOG_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("PERFLOG_ENABLE_PROMETHEUS", "true")
	t.Setenv("PERFLOG_ENABLE_PPROF", "true")
	t.Setenv("PERFLOG_WS_MAX_CLIENTS", "8")
	t.Setenv("PERFLOG_WS_WRITE_TIMEOUT", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.LogDir != "/var/log/perflog" || cfg.LogFile != "run.jsonl" {
		t.Fatalf("log destination override failed, got %q/%q", cfg.LogDir, cfg.LogFile)
	}
	if cfg.SampleInterval != 500*time.Millisecond {
		t.Fatalf("SampleInterval override failed, got %s", cfg.SampleInterval)
	}
	if cfg.SampleMessage != "tick" {
		t.Fatalf("SampleMessage override failed, got %q", cfg.SampleMessage)
	}
	if cfg.CPUSampleInterval != 0 {
		t.Fatalf("CPUSampleInterval override failed, got %s", cfg.CPUSampleInterval)
	}
	if cfg.HostSource != hostmetrics.SourceProcfs {
		t.Fatalf("HostSource override failed, got %q", cfg.HostSource)
	}
	if cfg.Accelerator != AcceleratorAMDGPU {
		t.Fatalf("Accelerator override failed, got %q", cfg.Accelerator)
	}
	if cfg.SysfsRoot != "/tmp/sys" {
		t.Fatalf("SysfsRoot override failed, got %q", cfg.SysfsRoot)
	}
	if cfg.ProcRoot != "/tmp/proc" {
		t.Fatalf("ProcRoot override failed, got %q", cfg.ProcRoot)
	}
	if !cfg.HTTP.Enable {
		t.Fatalf("HTTP.Enable override failed")
	}
	if cfg.HTTP.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.HTTP.ListenAddr)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.HTTP.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.HTTP.AllowedOrigins)
	}
	if !cfg.HTTP.EnablePrometheus {
		t.Fatalf("EnablePrometheus override failed")
	}
	if !cfg.HTTP.EnablePprof {
		t.Fatalf("EnablePprof override failed")
	}
	if cfg.HTTP.WS.MaxClients != 8 {
		t.Fatalf("WS.MaxClients override failed, got %d", cfg.HTTP.WS.MaxClients)
	}
	if cfg.HTTP.WS.WriteTimeout != 10*time.Second {
		t.Fatalf("WS.WriteTimeout override failed, got %s", cfg.HTTP.WS.WriteTimeout)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"InvalidLogLevel", "PERFLOG_LOG_LEVEL", "loud"},
		{"LogFileWithDirectory", "PERFLOG_LOG_FILE", "nested/perflog.txt"},
		{"InvalidSampleInterval", "PERFLOG_SAMPLE_INTERVAL", "soon"},
		{"ZeroSampleInterval", "PERFLOG_SAMPLE_INTERVAL", "0"},
		{"NegativeSampleInterval", "PERFLOG_SAMPLE_INTERVAL", "-1s"},
		{"NegativeCPUSampleInterval", "PERFLOG_CPU_SAMPLE_INTERVAL", "-10ms"},
		{"InvalidHostSource", "PERFLOG_HOST_SOURCE", "wmi"},
		{"InvalidAccelerator", "PERFLOG_ACCELERATOR", "tpu"},
		{"InvalidHTTPEnable", "PERFLOG_HTTP_ENABLE", "maybe"},
		{"InvalidOrigins", "PERFLOG_ALLOWED_ORIGINS", ","},
		{"InvalidPrometheusBool", "PERFLOG_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidPprofBool", "PERFLOG_ENABLE_PPROF", "perhaps"},
		{"InvalidWSMaxClients", "PERFLOG_WS_MAX_CLIENTS", "zero"},
		{"NonPositiveWSMaxClients", "PERFLOG_WS_MAX_CLIENTS", "0"},
		{"InvalidWSWriteTimeout", "PERFLOG_WS_WRITE_TIMEOUT", "nope"},
		{"ZeroWSWriteTimeout", "PERFLOG_WS_WRITE_TIMEOUT", "0s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLogLevel(input)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

package httpserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/perflog/internal/sampler"
)

const metricsNamespace = "perflog"

type snapshotCollector struct {
	source  SnapshotSource
	metrics []snapshotMetric
}

type snapshotMetric struct {
	desc    *prometheus.Desc
	extract func(snap sampler.Snapshot) (float64, bool)
}

func pointerValue(get func(sampler.Snapshot) *float64) func(sampler.Snapshot) (float64, bool) {
	return func(snap sampler.Snapshot) (float64, bool) {
		v := get(snap)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
}

func newSnapshotCollector(source SnapshotSource) *snapshotCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "snapshot", name),
			help,
			[]string{"pid", "accelerator"},
			nil,
		)
	}

	return &snapshotCollector{
		source: source,
		metrics: []snapshotMetric{
			{
				desc:    desc("runtime_seconds", "Accumulated lap time of the sampler."),
				extract: func(snap sampler.Snapshot) (float64, bool) { return snap.Runtime, true },
			},
			{
				desc:    desc("lap_seconds", "Duration of the latest lap."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.Lap }),
			},
			{
				desc:    desc("cpu_utilization_percent", "System-wide CPU utilization."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.CPUUtilization }),
			},
			{
				desc:    desc("cpu_clock_mhz", "Current CPU frequency in MHz."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.CPUClockMHz }),
			},
			{
				desc:    desc("ram_used_megabytes", "System memory in use."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.RAMUsedMB }),
			},
			{
				desc:    desc("process_ram_used_megabytes", "Resident memory of the observed process."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.ProcessRAMUsedMB }),
			},
			{
				desc:    desc("process_cpu_utilization_percent", "CPU utilization of the observed process."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.ProcessCPUUtilization }),
			},
			{
				desc:    desc("gpu_utilization_percent", "Accelerator busy percentage."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.GPUUtilization }),
			},
			{
				desc:    desc("gpu_clock_mhz", "Accelerator graphics clock in MHz."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.GPUClockMHz }),
			},
			{
				desc:    desc("vram_used_megabytes", "Accelerator memory in use."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.VRAMUsedMB }),
			},
			{
				desc:    desc("process_vram_used_megabytes", "Accelerator memory used by the observed process."),
				extract: pointerValue(func(s sampler.Snapshot) *float64 { return s.ProcessVRAMUsedMB }),
			},
			{
				desc: desc("timestamp_seconds", "Unix timestamp of the latest snapshot."),
				extract: func(snap sampler.Snapshot) (float64, bool) {
					if snap.Timestamp.IsZero() {
						return 0, false
					}
					return float64(snap.Timestamp.Unix()), true
				},
			},
			{
				desc: desc("age_seconds", "Seconds elapsed since the latest snapshot was collected."),
				extract: func(snap sampler.Snapshot) (float64, bool) {
					if snap.Timestamp.IsZero() {
						return 0, false
					}
					return max(time.Since(snap.Timestamp).Seconds(), 0), true
				},
			},
		},
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.source.Latest()
	if !ok {
		return
	}
	pid := strconv.Itoa(c.source.PID())
	for _, metric := range c.metrics {
		value, ok := metric.extract(snap)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, value, pid, snap.Accelerator)
	}
}

func (s *Server) wsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}
}

// Package metrics exposes Prometheus instrumentation for the offline queue.
// The host application decides where (or whether) the registry is scraped;
// this subsystem only records.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records offline queue activity
type Collector struct {
	opsEnqueued prometheus.Counter
	opsReplayed prometheus.Counter
	opsRetried  prometheus.Counter
	opsDropped  prometheus.Counter

	opsPending  prometheus.Gauge
	syncRunning prometheus.Gauge

	drainDuration prometheus.Histogram

	enabled bool
}

// NewCollector creates a collector and registers its metrics with reg.
// Registration conflicts surface as a panic, matching MustRegister; tests
// pass an isolated prometheus.NewRegistry per instance.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		opsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offline_ops_enqueued_total",
			Help: "Total number of operations added to the offline queue",
		}),
		opsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offline_ops_replayed_total",
			Help: "Total number of queued operations replayed successfully",
		}),
		opsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offline_ops_retried_total",
			Help: "Total number of operation replay failures that will retry",
		}),
		opsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offline_ops_dropped_total",
			Help: "Total number of operations dropped after exhausting retries",
		}),
		opsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "offline_ops_pending",
			Help: "Current number of operations waiting in the offline queue",
		}),
		syncRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "offline_sync_running",
			Help: "Whether a queue drain is currently in progress",
		}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "offline_drain_duration_seconds",
			Help:    "Duration of offline queue drains in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		enabled: true,
	}

	reg.MustRegister(
		c.opsEnqueued,
		c.opsReplayed,
		c.opsRetried,
		c.opsDropped,
		c.opsPending,
		c.syncRunning,
		c.drainDuration,
	)

	return c
}

// Nop returns a collector that records nothing. The queue uses it when the
// host application does not wire metrics.
func Nop() *Collector {
	return &Collector{}
}

// RecordEnqueue records an operation added to the queue
func (c *Collector) RecordEnqueue() {
	if c.enabled {
		c.opsEnqueued.Inc()
	}
}

// RecordReplayed records a successful replay
func (c *Collector) RecordReplayed() {
	if c.enabled {
		c.opsReplayed.Inc()
	}
}

// RecordRetried records a failed replay that stays queued
func (c *Collector) RecordRetried() {
	if c.enabled {
		c.opsRetried.Inc()
	}
}

// RecordDropped records an operation dropped after exhausting its retries
func (c *Collector) RecordDropped() {
	if c.enabled {
		c.opsDropped.Inc()
	}
}

// SetPending records the current queue depth
func (c *Collector) SetPending(count int) {
	if c.enabled {
		c.opsPending.Set(float64(count))
	}
}

// SetSyncRunning records whether a drain is in progress
func (c *Collector) SetSyncRunning(running bool) {
	if !c.enabled {
		return
	}
	if running {
		c.syncRunning.Set(1)
	} else {
		c.syncRunning.Set(0)
	}
}

// ObserveDrain records the duration of a completed drain
func (c *Collector) ObserveDrain(d time.Duration) {
	if c.enabled {
		c.drainDuration.Observe(d.Seconds())
	}
}

// Package metrics exposes Prometheus metrics for the host controller: ring
// overflow counts, worker queue depth, and UI-update cadence. Every value
// here is sampled from plain atomics on a timer goroutine; nothing in this
// package is ever touched from the realtime thread.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lv2jack/host/internal/logging"
)

// Sample is a snapshot of realtime-thread counters, collected by the host
// controller and handed to Collector.record on each sampling tick.
type Sample struct {
	UIToPluginOverflow uint64
	PluginToUIOverflow uint64
	WorkerQueueDepth   int
}

// Collector owns the registry and gauges backing the host's metrics
// endpoint. A disabled Collector's recording methods are no-ops.
type Collector struct {
	enabled bool
	log     *slog.Logger

	registry *prometheus.Registry

	ringOverflow     *prometheus.CounterVec
	workerQueueDepth prometheus.Gauge
	uiUpdateCadence  prometheus.Histogram

	mu        sync.Mutex
	lastUIOverflow, lastPluginOverflow uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Collector. When enabled is false, Handler still returns a
// valid (empty) endpoint, but Start does nothing.
func New(enabled bool) *Collector {
	log := logging.ForService("metrics")
	if log == nil {
		log = slog.Default()
	}

	reg := prometheus.NewRegistry()
	c := &Collector{
		enabled:  enabled,
		log:      log,
		registry: reg,
		ringOverflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lv2jack",
			Subsystem: "ring",
			Name:      "overflow_total",
			Help:      "Records dropped because a ring channel was full.",
		}, []string{"ring"}),
		workerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lv2jack",
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Approximate number of pending worker requests.",
		}),
		uiUpdateCadence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lv2jack",
			Subsystem: "ui",
			Name:      "update_interval_seconds",
			Help:      "Observed interval between UI update drains.",
			Buckets:   prometheus.DefBuckets,
		}),
		stop: make(chan struct{}),
	}

	reg.MustRegister(c.ringOverflow, c.workerQueueDepth, c.uiUpdateCadence)
	return c
}

// Handler returns the HTTP handler serving this collector's registry in
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Start launches the sampling goroutine, calling sample on every tick and
// recording the deltas/gauges it reports. No-op if the collector is
// disabled.
func (c *Collector) Start(ctx context.Context, interval time.Duration, sample func() Sample) {
	if !c.enabled {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.record(sample())
			}
		}
	}()
}

// Stop halts the sampling goroutine and waits for it to exit.
func (c *Collector) Stop() {
	if !c.enabled {
		return
	}
	close(c.stop)
	c.wg.Wait()
}

func (c *Collector) record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if delta := s.UIToPluginOverflow - c.lastUIOverflow; delta > 0 {
		c.ringOverflow.WithLabelValues("ui-to-plugin").Add(float64(delta))
	}
	c.lastUIOverflow = s.UIToPluginOverflow

	if delta := s.PluginToUIOverflow - c.lastPluginOverflow; delta > 0 {
		c.ringOverflow.WithLabelValues("plugin-to-ui").Add(float64(delta))
	}
	c.lastPluginOverflow = s.PluginToUIOverflow

	c.workerQueueDepth.Set(float64(s.WorkerQueueDepth))
}

// RecordUIUpdate observes the wall-clock interval between two UI update
// drains, called by the host controller's UI ticker goroutine.
func (c *Collector) RecordUIUpdate(d time.Duration) {
	if !c.enabled {
		return
	}
	c.uiUpdateCadence.Observe(d.Seconds())
}

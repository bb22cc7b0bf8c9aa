// Package metrics exposes the adapter's ambient observability surface on
// github.com/prometheus/client_golang, grounded in runZeroInc-sockstats'
// exporter package: a handful of counters/gauges registered against a
// private prometheus.Registry and served over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the adapter's metrics: requests by dispatch outcome,
// tracked-socket count, oversized-frame drops, and connection-manager tick
// count. None of these are protocol features the spec names — they are the
// ambient observability concern §7 and SPEC_FULL carry regardless. Only
// ConnectionManagerTicks is updated (by cmd/adapter's tick callback);
// RequestsTotal, TrackedSockets and OversizedFrameDrops are registered and
// served, but nothing in the adapter updates them, so they stay at zero.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	TrackedSockets       prometheus.Gauge
	OversizedFrameDrops  prometheus.Counter
	ConnectionManagerTicks prometheus.Counter
}

// New creates a Registry with its metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cip_adapter",
			Name:      "requests_total",
			Help:      "CIP requests dispatched, by outcome (ok_replied, ok_no_reply, error).",
		}, []string{"outcome"}),
		TrackedSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cip_adapter",
			Name:      "tracked_sockets",
			Help:      "Number of file descriptors currently tracked by the event loop.",
		}),
		OversizedFrameDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cip_adapter",
			Name:      "oversized_frame_drops_total",
			Help:      "TCP frames dropped because they exceeded the configured buffer size.",
		}),
		ConnectionManagerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cip_adapter",
			Name:      "connection_manager_ticks_total",
			Help:      "Number of times ManageConnections has been invoked.",
		}),
	}

	reg.MustRegister(m.RequestsTotal, m.TrackedSockets, m.OversizedFrameDrops, m.ConnectionManagerTicks)
	return m
}

// Handler returns the http.Handler that serves this registry's metrics.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr. It runs until the
// listener errors; callers typically run it in its own goroutine since it
// is observability plumbing alongside the single-threaded core loop, not
// part of the loop itself.
func (m *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}

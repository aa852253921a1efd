// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// Registry holds all bridge metrics on its own prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	steps           *prometheus.CounterVec
	runtimeEvents   *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	sessionsOpen    prometheus.Gauge
	syncDuration    *prometheus.HistogramVec
	teardownFailure *prometheus.CounterVec
}

// NewRegistry creates a registry with every bridge metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbridge_step_total",
			Help: "Synchronization steps by step and result.",
		}, []string{"step", "result"}),
		runtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbridge_runtime_events_total",
			Help: "Runtime initializations and releases.",
		}, []string{"event"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbridge_session_events_total",
			Help: "Client session opens and closes.",
		}, []string{"event"}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "syncbridge_sessions_open",
			Help: "Client sessions currently open.",
		}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syncbridge_synchronize_duration_seconds",
			Help:    "Wall time of synchronize calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"result"}),
		teardownFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbridge_teardown_failures_total",
			Help: "Session close or runtime release calls that reported an error.",
		}, []string{"resource"}),
	}
	r.reg.MustRegister(
		r.steps, r.runtimeEvents, r.sessionEvents, r.sessionsOpen, r.syncDuration, r.teardownFailure,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordStep records one step result.
func (r *Registry) RecordStep(step string, success bool) {
	r.steps.WithLabelValues(step, result(success)).Inc()
}

// RecordRuntime records a runtime "init" or "release".
func (r *Registry) RecordRuntime(event string, err error) {
	r.runtimeEvents.WithLabelValues(event).Inc()
	if event == "release" && err != nil {
		r.teardownFailure.WithLabelValues("runtime").Inc()
	}
}

// RecordSessionOpen records a successful session open.
func (r *Registry) RecordSessionOpen() {
	r.sessionEvents.WithLabelValues("open").Inc()
	r.sessionsOpen.Inc()
}

// RecordSessionClose records a session close, successful or not.
func (r *Registry) RecordSessionClose(err error) {
	r.sessionEvents.WithLabelValues("close").Inc()
	r.sessionsOpen.Dec()
	if err != nil {
		r.teardownFailure.WithLabelValues("session").Inc()
	}
}

// RecordSynchronize records a finished synchronize call.
func (r *Registry) RecordSynchronize(success bool, d time.Duration) {
	r.syncDuration.WithLabelValues(result(success)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// StartServer serves /metrics on addr until the listener fails.
func StartServer(addr string, r *Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

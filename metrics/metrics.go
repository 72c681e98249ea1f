// Package metrics exposes Prometheus collectors for scan jobs, exports and
// the HTTP API. All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "portwatch"

	subsystemJobs   = "jobs"
	subsystemProbe  = "probe"
	subsystemExport = "export"
	subsystemAPI    = "api"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	activeJobs    prometheus.Gauge
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	exports       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemJobs,
		Name:      "started_total",
		Help:      "Total number of scan jobs started",
	})
	m.jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemJobs,
		Name:      "finished_total",
		Help:      "Total number of scan jobs that reached a terminal state",
	}, []string{"state"})
	m.activeJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemJobs,
		Name:      "active",
		Help:      "Number of scan jobs currently dispatching probes",
	})
	m.probes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemProbe,
		Name:      "total",
		Help:      "Total number of port probes by outcome",
	}, []string{"outcome"})
	m.probeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemProbe,
		Name:      "duration_seconds",
		Help:      "Duration of single port probes in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	m.exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemExport,
		Name:      "total",
		Help:      "Total number of export attempts by format and outcome",
	}, []string{"format", "outcome"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		m.jobsStarted,
		m.jobsFinished,
		m.activeJobs,
		m.probes,
		m.probeDuration,
		m.exports,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobStarted counts a new job and marks it active.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsStarted.Inc()
	m.activeJobs.Inc()
}

// JobFinished records the terminal state of a job and marks it inactive.
func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(state).Inc()
	m.activeJobs.Dec()
}

// ProbeObserved records one probe outcome (open, closed or error).
func (m *Metrics) ProbeObserved(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome).Inc()
	m.probeDuration.Observe(d.Seconds())
}

// ExportRecorded records one export attempt.
func (m *Metrics) ExportRecorded(format, outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format, outcome).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

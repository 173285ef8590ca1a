// Package obs exposes Prometheus metrics for the auth service.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
)

const namespace = "hoa"

// Metrics holds every collector the service reports. It satisfies
// service.Recorder so ceremony outcomes, security events and key rotations
// are counted where they happen.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ceremonies     *prometheus.CounterVec
	securityEvents *prometheus.CounterVec
	keyRotations   *prometheus.CounterVec
	purged         *prometheus.CounterVec
	buildInfo      *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		ceremonies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ceremonies_total",
			Help:      "Registration and authentication ceremonies by outcome.",
		}, []string{"ceremony", "outcome"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security-relevant failures such as replays and bad signatures.",
		}, []string{"event"}),
		keyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Signing keys activated, by family.",
		}, []string{"family"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "housekeeping_purged_total",
			Help:      "Expired records removed by housekeeping, by kind.",
		}, []string{"kind"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information, always 1.",
		}, []string{"version"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ceremonies,
		m.securityEvents,
		m.keyRotations,
		m.purged,
		m.buildInfo,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetBuildInfo sets hoa_build_info{version} to 1.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

func (m *Metrics) CeremonyOutcome(c domain.Ceremony, outcome string) {
	m.ceremonies.WithLabelValues(string(c), outcome).Inc()
}

func (m *Metrics) SecurityEvent(event string) {
	m.securityEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) KeyRotated(f domain.KeyFamily) {
	m.keyRotations.WithLabelValues(string(f)).Inc()
}

// Purged satisfies service.PurgeRecorder.
func (m *Metrics) Purged(kind string, n int) {
	m.purged.WithLabelValues(kind).Add(float64(n))
}

// Instrument measures request count, latency and concurrency. It must wrap
// the ServeMux directly: the route label is the matched pattern, which the
// mux records on the request it was handed.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

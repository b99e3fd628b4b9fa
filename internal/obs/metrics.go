package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics.
var (
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgeerp_gate_decisions_total",
			Help: "Grave-action gate decisions by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	ChangeReconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgeerp_change_reconciles_total",
			Help: "Change-request reconcile calls by result.",
		},
		[]string{"result"},
	)

	ModuleInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgeerp_module_installs_total",
			Help: "Module install and uninstall operations.",
		},
		[]string{"operation"},
	)

	LoginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forgeerp_login_failures_total",
		Help: "Failed login attempts.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		GateDecisions, ChangeReconciles, ModuleInstalls, LoginFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with request rate, latency and in-flight
// measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
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

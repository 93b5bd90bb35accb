// Package metrics exposes Prometheus counters for history activity and HTTP
// traffic on a private registry.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/calcdeck/internal/history"
)

const namespace = "calcdeck"

// Metrics implements history.Observer.
type Metrics struct {
	registry *prometheus.Registry

	records   *prometheus.CounterVec
	evictions *prometheus.CounterVec
	clears    *prometheus.CounterVec
	removed   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

var _ history.Observer = (*Metrics)(nil)

// New registers all collectors on a fresh registry. Go runtime and process
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_total",
			Help:      "Entries recorded, by calculator.",
		}, []string{"calculator"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "evictions_total",
			Help:      "Entries dropped because a calculator exceeded the cap.",
		}, []string{"calculator"}),
		clears: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "clears_total",
			Help:      "Clear operations that removed at least one entry.",
		}, []string{"calculator"}),
		removed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "cleared_entries_total",
			Help:      "Entries removed by clear operations.",
		}, []string{"calculator"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "failures_total",
			Help:      "Swallowed persistence failures, by operation and kind.",
		}, []string{"op", "kind"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route pattern and status code.",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Recorded(calculatorID string) {
	m.records.WithLabelValues(calculatorID).Inc()
}

func (m *Metrics) Evicted(calculatorID string, n int) {
	m.evictions.WithLabelValues(calculatorID).Add(float64(n))
}

func (m *Metrics) Cleared(calculatorID string, n int) {
	m.clears.WithLabelValues(calculatorID).Inc()
	m.removed.WithLabelValues(calculatorID).Add(float64(n))
}

func (m *Metrics) Failed(op string, err error) {
	m.failures.WithLabelValues(op, failureKind(err)).Inc()
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, history.ErrMalformedPersistedData):
		return "malformed"
	case errors.Is(err, history.ErrPersistenceUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern, so path parameters do
// not explode label cardinality. Must be mounted on a chi router.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

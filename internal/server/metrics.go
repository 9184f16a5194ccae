package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

type metrics struct {
	gatherer        prometheus.Gatherer
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	massRecords     *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry) *metrics {
	f := promauto.With(reg)
	return &metrics{
		gatherer: reg,
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordhub_http_requests_total",
				Help: "HTTP requests by method, route template and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recordhub_http_request_duration_seconds",
				Help:    "HTTP request duration by method and route template.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		massRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recordhub_mass_operation_records_total",
				Help: "Records touched by mass operations.",
			},
			[]string{"entity_type", "operation"},
		),
	}
}

// ObserveMass satisfies services.MassObserver.
func (m *metrics) ObserveMass(entityType string, operation string, n int) {
	if n <= 0 {
		return
	}
	m.massRecords.WithLabelValues(entityType, operation).Add(float64(n))
}

func (m *metrics) observeRequest(method string, route string, status int, seconds float64) {
	if route == "" {
		route = unmatchedRoute
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

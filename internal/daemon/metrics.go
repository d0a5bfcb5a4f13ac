package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors on a private registry
type Metrics struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	interviewsStarted *prometheus.CounterVec
	interviewsEnded   *prometheus.CounterVec
}

// NewMetrics registers the daemon collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intervue",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intervue",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		interviewsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intervue",
			Name:      "interviews_started_total",
			Help:      "Interviews started by difficulty.",
		}, []string{"difficulty"}),
		interviewsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intervue",
			Name:      "interviews_finished_total",
			Help:      "Interviews finished by terminal status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.interviewsStarted,
		m.interviewsEnded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. It must wrap the ServeMux
// directly so the matched route pattern is visible after the call.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// InterviewStarted counts a started interview
func (m *Metrics) InterviewStarted(difficulty string) {
	m.interviewsStarted.WithLabelValues(difficulty).Inc()
}

// InterviewFinished counts an interview reaching a terminal status
func (m *Metrics) InterviewFinished(status string) {
	m.interviewsEnded.WithLabelValues(status).Inc()
}

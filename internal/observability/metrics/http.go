package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal        *prometheus.CounterVec
	searchDuration     *prometheus.HistogramVec
	fusedCandidates    *prometheus.HistogramVec
	cacheLookupTotal   *prometheus.CounterVec
	ratingsTotal       *prometheus.CounterVec
	sessionClearsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragfusion",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragfusion",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed search requests by retrieval mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragfusion",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds by retrieval mode.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	fusedCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragfusion",
			Subsystem: "search",
			Name:      "result_hits",
			Help:      "Distribution of returned hits per successful search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "mode"},
	)
	cacheLookupTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "cache",
			Name:      "lookup_total",
			Help:      "Total QA cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	ratingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "ratings",
			Name:      "submitted_total",
			Help:      "Total rating events accepted by the API.",
		},
		[]string{"service"},
	)
	sessionClearsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "sessions",
			Name:      "clears_total",
			Help:      "Total explicit session clear requests.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchDuration,
		fusedCandidates,
		cacheLookupTotal,
		ratingsTotal,
		sessionClearsTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		searchTotal:        searchTotal,
		searchDuration:     searchDuration,
		fusedCandidates:    fusedCandidates,
		cacheLookupTotal:   cacheLookupTotal,
		ratingsTotal:       ratingsTotal,
		sessionClearsTotal: sessionClearsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(service, mode string, hits int, duration time.Duration, err error) {
	if mode == "" {
		mode = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.searchTotal.WithLabelValues(service, mode, status).Inc()
	if err == nil {
		m.searchDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
		m.fusedCandidates.WithLabelValues(service, mode).Observe(float64(hits))
	}
}

func (m *HTTPServerMetrics) RecordCacheLookup(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordRatingSubmitted(service string) {
	m.ratingsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordSessionClear(service string) {
	m.sessionClearsTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

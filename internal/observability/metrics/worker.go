package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	flushTotal        *prometheus.CounterVec
	flushDuration     *prometheus.HistogramVec
	flushInFlight     prometheus.Gauge
	ratingEventsTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	flushTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "worker",
			Name:      "session_flush_total",
			Help:      "Total session flush passes by status.",
		},
		[]string{"service", "status"},
	)
	flushDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragfusion",
			Subsystem: "worker",
			Name:      "session_flush_duration_seconds",
			Help:      "Session flush pass duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	flushInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragfusion",
			Subsystem: "worker",
			Name:      "session_flush_in_flight",
			Help:      "Number of in-flight session flush passes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ratingEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfusion",
			Subsystem: "worker",
			Name:      "rating_events_total",
			Help:      "Total rating events consumed from the queue by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(flushTotal, flushDuration, flushInFlight, ratingEventsTotal)

	return &WorkerMetrics{
		registry:          registry,
		flushTotal:        flushTotal,
		flushDuration:     flushDuration,
		flushInFlight:     flushInFlight,
		ratingEventsTotal: ratingEventsTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartFlush() {
	m.flushInFlight.Inc()
}

func (m *WorkerMetrics) FinishFlush(service string, duration time.Duration, err error) {
	m.flushInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.flushTotal.WithLabelValues(service, status).Inc()
	m.flushDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordRatingEvent(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ratingEventsTotal.WithLabelValues(service, status).Inc()
}

// Package metrics exports Prometheus metrics for the library service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Borrow outcomes recorded by RecordBorrow.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds all service metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Borrowing lifecycle
	BorrowsTotal       *prometheus.CounterVec
	ReturnsTotal       prometheus.Counter
	ConcurrencyRetries prometheus.Counter
	OverdueBorrowings  prometheus.Gauge

	// Availability stream
	StreamSubscribers prometheus.Gauge
}

// NewMetrics registers all metrics on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		BorrowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "borrows_total",
				Help:      "Borrow requests by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		ReturnsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "returns_total",
				Help:      "Total completed returns",
			},
		),
		ConcurrencyRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concurrency_retries_total",
				Help:      "Units of work retried after losing an optimistic race",
			},
		),
		OverdueBorrowings: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "overdue_borrowings",
				Help:      "Overdue borrowings seen by the last overdue query",
			},
		),
		StreamSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "availability_stream_subscribers",
				Help:      "Open availability stream connections",
			},
		),
	}
}

// Handler returns the HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		// route template keeps label cardinality bounded
		path := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordBorrow counts a borrow attempt. reason is the rejection code, if any.
func (m *Metrics) RecordBorrow(outcome, reason string) {
	if m == nil {
		return
	}
	m.BorrowsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordReturn counts a completed return.
func (m *Metrics) RecordReturn() {
	if m == nil {
		return
	}
	m.ReturnsTotal.Inc()
}

// RecordRetry counts a retried unit of work.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.ConcurrencyRetries.Inc()
}

// SetOverdueCount sets the overdue gauge.
func (m *Metrics) SetOverdueCount(n int) {
	if m == nil {
		return
	}
	m.OverdueBorrowings.Set(float64(n))
}

// StreamOpened increments the stream subscriber gauge.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamSubscribers.Inc()
}

// StreamClosed decrements the stream subscriber gauge.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamSubscribers.Dec()
}

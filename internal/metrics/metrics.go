package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bid outcomes used as the "outcome" label.
const (
	OutcomeAccepted      = "accepted"
	OutcomeReplayed      = "replayed"
	OutcomeTooLow        = "too_low"
	OutcomeEnded         = "ended"
	OutcomeInvalid       = "invalid"
	OutcomeNotFound      = "not_found"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeStorageFailed = "storage_failure"
	OutcomeError         = "error"
)

// Metrics owns a registry with the auction collectors.
// All methods are safe on a nil receiver so callers may run without metrics.
type Metrics struct {
	Registry *prometheus.Registry

	bids            *prometheus.CounterVec
	commitDuration  prometheus.Histogram
	reconciliations prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		bids: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction",
				Name:      "bids_total",
				Help:      "Bid placement attempts by outcome.",
			},
			[]string{"outcome"},
		),
		commitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "auction",
				Name:      "bid_commit_duration_seconds",
				Help:      "Time spent inside the per-listing commit scope.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
		),
		reconciliations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "auction",
				Name:      "price_reconciliations_total",
				Help:      "Times a listing's cached price lagged the bid ledger and was repaired.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "auction",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "auction",
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
	}
	m.Registry.MustRegister(
		m.bids,
		m.commitDuration,
		m.reconciliations,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CountBid(outcome string) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) CountReconciliation() {
	if m == nil {
		return
	}
	m.reconciliations.Inc()
}

// Middleware records request count, latency and in-flight requests per gin route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Package metrics exposes the ingestion pipeline as Prometheus collectors.
// A Metrics value satisfies the observer interfaces of the extraction,
// dedup, lifecycle and crawler packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/textnorm"
)

const namespace = "cargoscoop"

type Metrics struct {
	gatherer prometheus.Gatherer

	messages  *prometheus.CounterVec
	crawls    *prometheus.CounterVec
	crawlTime *prometheus.HistogramVec

	batches    *prometheus.CounterVec
	batchItems *prometheus.CounterVec
	batchTime  *prometheus.HistogramVec

	decisions *prometheus.CounterVec
	archived  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

// NewWith registers the collectors on reg and serves them from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,

		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Channel messages by quality verdict.",
		}, []string{"channel", "verdict"}),
		crawls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_total",
			Help:      "Channel passes by final status.",
		}, []string{"channel", "status"}),
		crawlTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of one channel pass.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),

		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_batches_total",
			Help:      "Extraction batches by ad kind and outcome.",
		}, []string{"kind", "outcome"}),
		batchItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_items_total",
			Help:      "Texts submitted for extraction.",
		}, []string{"kind"}),
		batchTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_batch_duration_seconds",
			Help:      "Latency of one extraction batch.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
		}, []string{"kind"}),

		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_decisions_total",
			Help:      "Duplicate resolution outcomes by the rule that decided them.",
		}, []string{"kind", "decision", "rule"}),
		archived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_total",
			Help:      "Ads moved out of search by lifecycle rule.",
		}, []string{"kind", "reason"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "HTTP requests being served.",
		}),
	}
}

func (m *Metrics) ObserveMessage(channel string, verdict textnorm.Verdict) {
	m.messages.WithLabelValues(channel, string(verdict)).Inc()
}

func (m *Metrics) ObserveCrawl(channel, status string, took time.Duration) {
	m.crawls.WithLabelValues(channel, status).Inc()
	m.crawlTime.WithLabelValues(status).Observe(took.Seconds())
}

func (m *Metrics) ObserveBatch(kind string, items int, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.batches.WithLabelValues(kind, outcome).Inc()
	m.batchItems.WithLabelValues(kind).Add(float64(items))
	m.batchTime.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) ObserveDecision(kind string, decision dedup.Decision, rule string) {
	if rule == "" {
		rule = "none"
	}
	m.decisions.WithLabelValues(kind, string(decision), rule).Inc()
}

func (m *Metrics) ObserveArchived(kind, reason string, n int) {
	m.archived.WithLabelValues(kind, reason).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records every request under its registered route so that ids
// in paths do not grow label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			m.httpInflight.Inc()
			defer m.httpInflight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpLatency.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
			return err
		}
	}
}

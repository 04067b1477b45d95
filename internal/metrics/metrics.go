// Package metrics exposes Prometheus collectors for the HTTP surface of the
// crawler service. Crawl-run collectors live in the progress sinks.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	exportRowsTotal            prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		exportRowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_export_rows_total",
				Help: "Total listing rows written by CSV exports.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveExportRows counts rows written by a CSV export.
func ObserveExportRows(n int) {
	if exportRowsTotal == nil || n <= 0 {
		return
	}
	exportRowsTotal.Add(float64(n))
}

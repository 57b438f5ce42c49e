// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Download metrics
	DownloadsCreated   prometheus.Counter
	DownloadsCompleted prometheus.Counter
	DownloadsFailed    prometheus.Counter
	DownloadsCancelled prometheus.Counter
	DownloadsRetried   prometheus.Counter
	DownloadsDeleted   prometheus.Counter
	DownloadsActive    prometheus.Gauge
	DownloadsQueued    prometheus.Gauge
	DownloadBytes      prometheus.Counter
	DownloadDuration   prometheus.Histogram

	// Event metrics
	OrphanEvents  prometheus.Counter
	DroppedEvents prometheus.Counter

	// Engine metrics
	EngineRequestsTotal *prometheus.CounterVec
	EngineErrors        *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all application metrics.
func New() *Metrics {
	metrics := &Metrics{
		DownloadsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "created_total",
			Help:      "Total number of download jobs created",
		}),
		DownloadsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "completed_total",
			Help:      "Total number of download jobs completed successfully",
		}),
		DownloadsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "failed_total",
			Help:      "Total number of download jobs that failed",
		}),
		DownloadsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "cancelled_total",
			Help:      "Total number of download jobs cancelled by the user",
		}),
		DownloadsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "retried_total",
			Help:      "Total number of failed download jobs retried",
		}),
		DownloadsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "deleted_total",
			Help:      "Total number of download jobs deleted",
		}),
		DownloadsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "active",
			Help:      "Number of downloads currently active",
		}),
		DownloadsQueued: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "queued",
			Help:      "Number of downloads currently queued",
		}),
		DownloadBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "bytes_total",
			Help:      "Total bytes downloaded across all jobs",
		}),
		DownloadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clipd",
			Subsystem: "downloads",
			Name:      "duration_seconds",
			Help:      "Histogram of download duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		OrphanEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "events",
			Name:      "orphan_total",
			Help:      "Total number of engine events dropped for unknown engine ids",
		}),
		DroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of lifecycle events dropped on slow subscribers",
		}),

		EngineRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total number of engine requests",
		}, []string{"op", "status"}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Total number of engine errors",
		}, []string{"op", "error_type"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clipd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	return metrics
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DownloadTimer returns a function to record download duration.
func (m *Metrics) DownloadTimer() func() {
	start := time.Now()

	return func() {
		m.DownloadDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEngineRequest records an engine request outcome.
func (m *Metrics) RecordEngineRequest(op, status string) {
	m.EngineRequestsTotal.WithLabelValues(op, status).Inc()
}

// RecordEngineError records an engine error.
func (m *Metrics) RecordEngineError(op, errorType string) {
	m.EngineErrors.WithLabelValues(op, errorType).Inc()
}

// SetQueueSizes updates the active/queued gauges.
func (m *Metrics) SetQueueSizes(active, queued int) {
	m.DownloadsActive.Set(float64(active))
	m.DownloadsQueued.Set(float64(queued))
}

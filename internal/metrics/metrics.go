// Package metrics provides Prometheus instrumentation for the agentscan indexer.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsProcessedTotal counts ingested events by chain, event type, and result.
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentscan",
			Name:      "events_processed_total",
			Help:      "Total contract events processed by chain, event type, and result.",
		},
		[]string{"chain", "event", "result"},
	)

	// OrphanEventsTotal counts events referencing a not-yet-indexed agent.
	OrphanEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentscan",
			Name:      "orphan_events_total",
			Help:      "Events referencing an agent that has not been indexed yet.",
		},
		[]string{"event"},
	)

	// MetadataFetchTotal counts metadata resolutions by outcome.
	MetadataFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentscan",
			Name:      "metadata_fetch_total",
			Help:      "Metadata resolutions by outcome (ok, inline, error, invalid).",
		},
		[]string{"result"},
	)

	// PaymentsIndexedTotal counts indexed payments by facilitator and attribution.
	PaymentsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentscan",
			Name:      "payments_indexed_total",
			Help:      "Indexed facilitator payments by provider and attribution result.",
		},
		[]string{"facilitator", "attribution"},
	)

	// PaymentVolumeTotal accumulates attributed payment volume in USDC units.
	PaymentVolumeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentscan",
			Name:      "payment_volume_usdc_units_total",
			Help:      "Attributed payment volume in smallest USDC units.",
		},
	)

	// StatsRecomputeDuration observes reputation recompute latency.
	StatsRecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentscan",
			Name:      "stats_recompute_duration_seconds",
			Help:      "Time spent recomputing per-agent reputation stats.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentscan",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentscan",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveFeedClients tracks connected activity-feed websocket clients.
	ActiveFeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentscan", Name: "active_feed_clients",
		Help: "Number of currently connected activity feed clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentscan", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentscan", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentscan", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		EventsProcessedTotal,
		OrphanEventsTotal,
		MetadataFetchTotal,
		PaymentsIndexedTotal,
		PaymentVolumeTotal,
		StatsRecomputeDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveFeedClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and the runtime
// goroutine count into gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Route pattern, not raw path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

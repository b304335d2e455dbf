// Package metrics defines the Prometheus collectors for the canvas backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	// ReservationsTotal counts reserve attempts by outcome.
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "somo",
			Subsystem: "ledger",
			Name:      "reservations_total",
			Help:      "Total number of pixel reservation attempts.",
		},
		[]string{"result"},
	)

	// FinalizesTotal counts finalize attempts by outcome.
	FinalizesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "somo",
			Subsystem: "ledger",
			Name:      "finalizes_total",
			Help:      "Total number of claim finalize attempts.",
		},
		[]string{"result"},
	)

	// ExpiredReservationsCleared counts reservations removed by the sweep.
	ExpiredReservationsCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "somo",
			Subsystem: "ledger",
			Name:      "expired_reservations_cleared_total",
			Help:      "Total number of expired reservations cleared by the sweeper.",
		},
	)

	pointsComputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "somo",
			Subsystem: "governance",
			Name:      "points_compute_duration_seconds",
			Help:      "Duration of governance point computations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	// WebsocketClients tracks currently connected UI sessions.
	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "somo",
			Subsystem: "ws",
			Name:      "connected_clients",
			Help:      "Current number of connected websocket clients.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "somo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "somo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		ReservationsTotal,
		FinalizesTotal,
		ExpiredReservationsCleared,
		pointsComputeDuration,
		WebsocketClients,
		httpRequests,
		httpDuration,
	)
}

// NewPointsComputeTimer starts a timer observing into the points histogram.
func NewPointsComputeTimer() *prometheus.Timer {
	return prometheus.NewTimer(pointsComputeDuration)
}

// Handler returns the /metrics endpoint handler for the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one handled request. The path should be the
// route pattern, not the raw URL, to keep label cardinality bounded.
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

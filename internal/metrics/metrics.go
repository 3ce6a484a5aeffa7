package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Crate client metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests issued to the cluster",
		},
		[]string{"method", "server", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "status"},
	)

	// Failovers: attempts that moved on to another server within one call
	FailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "failovers_total",
			Help:      "Attempts retried against another server",
		},
		[]string{"reason"},
	)

	// Pool exhaustion: calls that ran out of servers entirely
	PoolExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "pool_exhausted_total",
			Help:      "Calls that failed because every server was inactive",
		},
	)

	// Server state transitions
	ServerDeactivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "server_deactivations_total",
			Help:      "Servers removed from the active pool after a failure",
		},
		[]string{"server"},
	)

	ServerReactivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "server_reactivations_total",
			Help:      "Servers restored into the active pool",
		},
		[]string{"server"},
	)

	// Pool partition gauges
	ActiveServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "active_servers",
			Help:      "Servers currently eligible for selection",
		},
	)

	InactiveServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crate",
			Subsystem: "client",
			Name:      "inactive_servers",
			Help:      "Servers currently excluded after failures",
		},
	)
)

// RecordRequest records one dispatched HTTP request with its outcome status.
func RecordRequest(method, server, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, server, status).Inc()
	RequestDuration.WithLabelValues(method, status).Observe(durationSec)
}

// RecordFailover records an attempt that failed over to another server.
func RecordFailover(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	FailoversTotal.WithLabelValues(reason).Inc()
}

// RecordPoolExhausted records a call that found no usable server.
func RecordPoolExhausted() {
	PoolExhaustedTotal.Inc()
}

// RecordServerDeactivated records a server leaving the active pool.
func RecordServerDeactivated(server string) {
	ServerDeactivationsTotal.WithLabelValues(server).Inc()
}

// RecordServerReactivated records a server returning to the active pool.
func RecordServerReactivated(server string) {
	ServerReactivationsTotal.WithLabelValues(server).Inc()
}

// SetPoolSize sets the active/inactive partition gauges.
func SetPoolSize(active, inactive int) {
	ActiveServers.Set(float64(active))
	InactiveServers.Set(float64(inactive))
}

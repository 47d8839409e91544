// Package metrics holds the Prometheus collectors for the device and the
// cloud aggregator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Delivery metrics (device)
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoreclock_pusher_deliveries_total",
			Help: "Delivery attempts by destination and outcome",
		},
		[]string{"destination", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoreclock_pusher_delivery_duration_seconds",
			Help:    "Duration of a single delivery attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	PusherStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scoreclock_pusher_status",
			Help: "1 for the current health status of each destination's worker, 0 otherwise",
		},
		[]string{"destination", "status"},
	)

	// Live state metrics (device)
	ClockSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoreclock_clock_seconds_remaining",
			Help: "Seconds remaining on the live clock",
		},
	)

	ClockRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoreclock_clock_running",
			Help: "1 while the clock is running",
		},
	)

	// Ingestion metrics (cloud)
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoreclock_ingest_events_total",
			Help: "Events received by the aggregator by result",
		},
		[]string{"result"},
	)

	IngestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoreclock_ingest_requests_total",
			Help: "Event submissions by HTTP status code",
		},
		[]string{"status"},
	)

	HeartbeatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scoreclock_heartbeats_total",
			Help: "Heartbeats received",
		},
	)

	DevicesMissing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoreclock_devices_missing",
			Help: "Devices whose last heartbeat is older than the threshold, as of the last query",
		},
	)

	// WebSocket metrics (both)
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoreclock_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the PvP session client

var (
	// Connection manager metrics
	ConnectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pvp_connection_status",
		Help: "Current realtime connection status (1 for the active status, 0 otherwise)",
	}, []string{"status"})

	ConnectionDials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvp_connection_dials_total",
		Help: "Realtime connection attempts by kind and result",
	}, []string{"kind", "result"}) // kind: initial|reconnect, result: ok|error|timeout

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvp_reconnect_attempts_total",
		Help: "Total number of scheduled reconnect attempts",
	})

	ReconnectExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvp_reconnect_exhausted_total",
		Help: "Number of times the reconnect budget ran out",
	})

	// Envelope metrics
	EnvelopesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvp_envelopes_received_total",
		Help: "Inbound envelopes by type",
	}, []string{"type"})

	EnvelopesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvp_envelopes_sent_total",
		Help: "Outbound envelopes by type and result",
	}, []string{"type", "result"}) // result: ok|dropped|error

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvp_envelope_decode_errors_total",
		Help: "Inbound frame segments that could not be decoded",
	})

	// Session store metrics
	StaleMessagesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvp_stale_messages_discarded_total",
		Help: "Inbound messages or REST results discarded by the cross-session guard",
	}, []string{"source"}) // source: push|rest|callback

	// REST API latency metrics
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pvp_api_request_duration_seconds",
		Help:    "Room REST API request latency",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"endpoint", "status_code"})

	// Cache metrics
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvp_session_cache_operations_total",
		Help: "Session cache operations by operation type and result",
	}, []string{"operation", "result"}) // operation: save|restore, result: ok|miss|error
)

// allStatuses lists the label values of ConnectionStatus.
var allStatuses = []string{"disconnected", "connecting", "connected", "reconnecting", "error"}

// SetConnectionStatus marks status as the active connection status.
func SetConnectionStatus(status string) {
	for _, s := range allStatuses {
		if s == status {
			ConnectionStatus.WithLabelValues(s).Set(1)
		} else {
			ConnectionStatus.WithLabelValues(s).Set(0)
		}
	}
}

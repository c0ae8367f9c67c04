package api

import (
	"strconv"
	"time"

	"github.com/m0rjc/gomoku-pvp-client/internal/metrics"
)

// PrometheusLatencyRecorder is LatencyRecorder that records latency metrics to Prometheus.
type PrometheusLatencyRecorder struct {
}

func NewPrometheusLatencyRecorder() *PrometheusLatencyRecorder {
	return &PrometheusLatencyRecorder{}
}

func (p *PrometheusLatencyRecorder) RecordAPILatency(endpoint string, statusCode int, latency time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	metrics.APILatency.WithLabelValues(endpoint, status).Observe(latency.Seconds())
}

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics of the wire server.
type Metrics struct {
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	responseBytesTotal prometheus.Counter
	rowsStreamedTotal  prometheus.Counter
}

// NewMetrics creates and registers all server metrics with the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "norn_connections_total",
			Help: "Total number of accepted wire connections",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "norn_connections_active",
			Help: "Number of wire connections currently open",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "norn_requests_total",
			Help: "Total number of requests handled",
		}, []string{"type", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "norn_request_duration_seconds",
			Help:    "Request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		responseBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "norn_response_bytes_total",
			Help: "Total number of response frame bytes written, headers included",
		}),
		rowsStreamedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "norn_rows_streamed_total",
			Help: "Total number of result rows streamed to clients",
		}),
	}
}

// ConnOpened records an accepted connection.
func (m *Metrics) ConnOpened() {
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

// ConnClosed records a closed connection.
func (m *Metrics) ConnClosed() {
	m.connectionsActive.Dec()
}

// RecordRequest records one handled request.
func (m *Metrics) RecordRequest(reqType string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.requestsTotal.WithLabelValues(reqType, status).Inc()
	m.requestDuration.WithLabelValues(reqType).Observe(duration.Seconds())
}

// RecordResponseBytes records the size of a written response frame.
func (m *Metrics) RecordResponseBytes(n int64) {
	m.responseBytesTotal.Add(float64(n))
}

// RecordRowsStreamed records rows sent in a result-set frame.
func (m *Metrics) RecordRowsStreamed(n int) {
	m.rowsStreamedTotal.Add(float64(n))
}

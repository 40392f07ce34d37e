// Package metrics provides Prometheus metrics for a Kerr endpoint.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kerr"

// Metrics contains all Prometheus metrics for an endpoint.
type Metrics struct {
	// Connection metrics
	PeersConnected  prometheus.Gauge
	PeersTotal      prometheus.Counter
	PeerDisconnects *prometheus.CounterVec

	// Session metrics
	SessionsActive *prometheus.GaugeVec
	SessionsOpened *prometheus.CounterVec
	SessionErrors  *prometheus.CounterVec

	// Frame/data metrics
	BytesSent      *prometheus.CounterVec
	BytesReceived  *prometheus.CounterVec
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter

	// File transfer metrics
	TransfersTotal     *prometheus.CounterVec
	TransferBytesTotal *prometheus.CounterVec

	// TCP relay metrics
	RelayStreamsActive prometheus.Gauge
	RelayStreamsTotal  prometheus.Counter

	// Protocol metrics
	HandshakeLatency prometheus.Histogram
	HandshakeErrors  *prometheus.CounterVec
	PingRTT          prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance, registered against the
// global Prometheus registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the
// global registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry, used by tests to avoid collisions with the global registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PeersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "Number of currently connected peers",
		}),
		PeersTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_total",
			Help:      "Total number of peer connections established",
		}),
		PeerDisconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_disconnects_total",
			Help:      "Total peer disconnections by reason",
		}, []string{"reason"}),

		SessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions by kind",
		}, []string{"kind"}),
		SessionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total sessions opened by kind",
		}, []string{"kind"}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Total session errors by kind and error kind",
		}, []string{"kind", "error_kind"}),

		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent by session kind",
		}, []string{"kind"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received by session kind",
		}, []string{"kind"}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total wire envelopes sent",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total wire envelopes received",
		}),

		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Total file transfers by direction and outcome",
		}, []string{"direction", "outcome"}),
		TransferBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Total file bytes transferred by direction",
		}, []string{"direction"}),

		RelayStreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_streams_active",
			Help:      "Number of currently active TCP relay streams",
		}),
		RelayStreamsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_total",
			Help:      "Total TCP relay streams opened",
		}),

		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Histogram of peer handshake latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		HandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Total handshake errors by type",
		}, []string{"error_type"}),
		PingRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_rtt_seconds",
			Help:      "Histogram of ping session round-trip time",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

// RecordPeerConnect records a new peer connection.
func (m *Metrics) RecordPeerConnect() {
	m.PeersConnected.Inc()
	m.PeersTotal.Inc()
}

// RecordPeerDisconnect records a peer disconnection.
func (m *Metrics) RecordPeerDisconnect(reason string) {
	m.PeersConnected.Dec()
	m.PeerDisconnects.WithLabelValues(reason).Inc()
}

// RecordSessionOpen records a session of the given kind starting.
func (m *Metrics) RecordSessionOpen(kind string) {
	m.SessionsActive.WithLabelValues(kind).Inc()
	m.SessionsOpened.WithLabelValues(kind).Inc()
}

// RecordSessionClose records a session of the given kind ending.
func (m *Metrics) RecordSessionClose(kind string) {
	m.SessionsActive.WithLabelValues(kind).Dec()
}

// RecordSessionError records a session error by kind and error kind.
func (m *Metrics) RecordSessionError(kind, errorKind string) {
	m.SessionErrors.WithLabelValues(kind, errorKind).Inc()
}

// RecordBytesSent records payload bytes sent for a session kind.
func (m *Metrics) RecordBytesSent(kind string, n int) {
	m.BytesSent.WithLabelValues(kind).Add(float64(n))
}

// RecordBytesReceived records payload bytes received for a session kind.
func (m *Metrics) RecordBytesReceived(kind string, n int) {
	m.BytesReceived.WithLabelValues(kind).Add(float64(n))
}

// RecordFrameSent records one wire envelope sent.
func (m *Metrics) RecordFrameSent() { m.FramesSent.Inc() }

// RecordFrameReceived records one wire envelope received.
func (m *Metrics) RecordFrameReceived() { m.FramesReceived.Inc() }

// RecordTransfer records a completed or failed file transfer.
func (m *Metrics) RecordTransfer(direction, outcome string, bytes int64) {
	m.TransfersTotal.WithLabelValues(direction, outcome).Inc()
	if bytes > 0 {
		m.TransferBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

// RecordRelayStreamOpen records a TCP relay stream being opened.
func (m *Metrics) RecordRelayStreamOpen() {
	m.RelayStreamsActive.Inc()
	m.RelayStreamsTotal.Inc()
}

// RecordRelayStreamClose records a TCP relay stream being closed.
func (m *Metrics) RecordRelayStreamClose() {
	m.RelayStreamsActive.Dec()
}

// RecordHandshake records a successful handshake.
func (m *Metrics) RecordHandshake(latencySeconds float64) {
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeError records a handshake error.
func (m *Metrics) RecordHandshakeError(errorType string) {
	m.HandshakeErrors.WithLabelValues(errorType).Inc()
}

// RecordPingRTT records a ping session round-trip time.
func (m *Metrics) RecordPingRTT(rttSeconds float64) {
	m.PingRTT.Observe(rttSeconds)
}

package monitoring

import (
	"duocall/internal/core/domain"
	"duocall/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	identitiesConnected prometheus.Gauge
	connectionsTotal    prometheus.Counter

	messagesReceived  *prometheus.CounterVec
	messagesForwarded *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec

	roomsPaired prometheus.Counter
	roomsFull   prometheus.Counter
}

// NewPrometheusCollector registers the signaling metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		identitiesConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "duocall_identities_connected",
			Help: "Number of identities with a live signaling channel",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "duocall_signal_connections_total",
			Help: "Total number of accepted signaling connections",
		}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duocall_signal_messages_total",
			Help: "Signaling messages received, by type",
		}, []string{"type"}),

		messagesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duocall_signal_forwarded_total",
			Help: "Signaling messages delivered to a counterpart, by type",
		}, []string{"type"}),

		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duocall_signal_dropped_total",
			Help: "Signaling messages dropped, by type and reason",
		}, []string{"type", "reason"}),

		roomsPaired: factory.NewCounter(prometheus.CounterOpts{
			Name: "duocall_rooms_paired_total",
			Help: "Number of announces that found a counterpart",
		}),

		roomsFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "duocall_rooms_full_total",
			Help: "Number of announces rejected because the room was full",
		}),
	}
}

func (c *PrometheusCollector) IdentityConnected() {
	c.identitiesConnected.Inc()
	c.connectionsTotal.Inc()
}

func (c *PrometheusCollector) IdentityDisconnected() {
	c.identitiesConnected.Dec()
}

func (c *PrometheusCollector) MessageReceived(t domain.MessageType) {
	c.messagesReceived.WithLabelValues(string(t)).Inc()
}

func (c *PrometheusCollector) MessageForwarded(t domain.MessageType) {
	c.messagesForwarded.WithLabelValues(string(t)).Inc()
}

func (c *PrometheusCollector) MessageDropped(t domain.MessageType, reason string) {
	c.messagesDropped.WithLabelValues(string(t), reason).Inc()
}

func (c *PrometheusCollector) RoomPaired() {
	c.roomsPaired.Inc()
}

func (c *PrometheusCollector) RoomFull() {
	c.roomsFull.Inc()
}

var _ ports.SignalMetrics = (*PrometheusCollector)(nil)

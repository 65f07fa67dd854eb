package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for observer connections.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	RejectedConnections *prometheus.CounterVec
	MessagesPublished   prometheus.Counter
	MessagesReceived    *prometheus.CounterVec
	ObserversByRole     *prometheus.GaugeVec
	SlowClientsEvicted  prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		RejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total number of WebSocket upgrades rejected by a connection limit, by reason.",
		}, []string{"reason"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of WebSocket messages published.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Total number of inbound observer messages, by type.",
		}, []string{"type"}),
		ObserversByRole: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "observers",
			Help:      "Number of registered observers, by role.",
		}, []string{"role"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of observers disconnected because their send buffer was full.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.RejectedConnections, m.MessagesPublished,
		m.MessagesReceived, m.ObserversByRole, m.SlowClientsEvicted)
	return m
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics holds Prometheus metrics for the upstream live-feed session.
type SessionMetrics struct {
	Connected     prometheus.Gauge
	BindAttempts  *prometheus.CounterVec
	ChatEvents    prometheus.Counter
	GiftEvents    prometheus.Counter
	UpstreamDrops prometheus.Counter
}

// NewSessionMetrics creates and registers session metrics on the given registry.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 when an upstream identity is bound, 0 otherwise.",
		}),
		BindAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "bind_attempts_total",
			Help:      "Total number of session bind attempts, by result.",
		}, []string{"result"}),
		ChatEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "chat_events_total",
			Help:      "Total number of chat events received from upstream.",
		}),
		GiftEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "gift_events_total",
			Help:      "Total number of gift events received from upstream.",
		}),
		UpstreamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "upstream_errors_total",
			Help:      "Total number of upstream connection errors that ended a session.",
		}),
	}

	reg.MustRegister(m.Connected, m.BindAttempts, m.ChatEvents, m.GiftEvents, m.UpstreamDrops)
	return m
}

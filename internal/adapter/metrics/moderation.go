package metrics

import "github.com/prometheus/client_golang/prometheus"

// ModerationMetrics holds Prometheus metrics for admission and the comment queues.
type ModerationMetrics struct {
	Admissions       *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	CooldownEntries  prometheus.Gauge
	CooldownsEvicted prometheus.Counter
}

// NewModerationMetrics creates and registers moderation metrics on the given registry.
func NewModerationMetrics(reg prometheus.Registerer) *ModerationMetrics {
	m := &ModerationMetrics{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Total number of chat events evaluated for admission, by result.",
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_transitions_total",
			Help:      "Total number of comment state transitions, by target state.",
		}, []string{"state"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of comments per queue.",
		}, []string{"queue"}),
		CooldownEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "entries",
			Help:      "Number of authors currently tracked by the cooldown tracker.",
		}),
		CooldownsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "swept_total",
			Help:      "Total number of expired cooldown entries removed by the sweeper.",
		}),
	}

	reg.MustRegister(m.Admissions, m.Transitions, m.QueueDepth, m.CooldownEntries, m.CooldownsEvicted)
	return m
}

// ObserveQueues records both queue depths.
func (m *ModerationMetrics) ObserveQueues(moderation, speech int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues("moderation").Set(float64(moderation))
	m.QueueDepth.WithLabelValues("speech").Set(float64(speech))
}

// ObserveAdmission counts one admission decision.
func (m *ModerationMetrics) ObserveAdmission(result string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(result).Inc()
}

// ObserveTransition counts one comment state transition.
func (m *ModerationMetrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

// ObserveCooldowns records tracker size and the number of entries swept.
func (m *ModerationMetrics) ObserveCooldowns(entries, swept int) {
	if m == nil {
		return
	}
	m.CooldownEntries.Set(float64(entries))
	if swept > 0 {
		m.CooldownsEvicted.Add(float64(swept))
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts relay outcomes per event type.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "Outbox rows handled by the publisher by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(dispatched)
	return &OutboxMetrics{dispatched: dispatched}
}

// IncDispatched counts one row outcome (published, retry, dead_letter).
func (m *OutboxMetrics) IncDispatched(eventType, outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

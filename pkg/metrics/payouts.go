package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PayoutMetrics counts settlement and webhook outcomes.
type PayoutMetrics struct {
	settlements *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	enqueued    prometheus.Counter
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_settlements_total",
		Help: "Payout settlement attempts by outcome.",
	}, []string{"outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_webhooks_total",
		Help: "Payout provider webhooks by provider, action and result.",
	}, []string{"provider", "action", "result"})
	enqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_requests_enqueued_total",
		Help: "Payout requests enqueued by the scheduled scan.",
	})
	reg.MustRegister(settlements, webhooks, enqueued)
	return &PayoutMetrics{
		settlements: settlements,
		webhooks:    webhooks,
		enqueued:    enqueued,
	}
}

// IncSettlement counts one settlement attempt.
func (m *PayoutMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWebhook counts one handled webhook.
func (m *PayoutMetrics) IncWebhook(provider, action, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(action), normalizeLabel(result)).Inc()
}

// AddEnqueued adds n to the enqueued payout request counter.
func (m *PayoutMetrics) AddEnqueued(n int) {
	if m == nil || m.enqueued == nil || n <= 0 {
		return
	}
	m.enqueued.Add(float64(n))
}

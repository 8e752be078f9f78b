package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPayoutMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPayoutMetrics(reg)
	metrics.IncSettlement("settled")
	metrics.IncSettlement("settled")
	metrics.IncSettlement("")
	metrics.IncWebhook("stripe", "transfer_succeeded", "processed")
	metrics.AddEnqueued(3)
	metrics.AddEnqueued(-1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "payout_settlements_total", "outcome", "settled"); err != nil {
		t.Fatalf("fetch settled: %v", err)
	} else if got != 2 {
		t.Fatalf("expected settled=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "payout_settlements_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch unknown: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "payout_webhooks_total", "action", "transfer_succeeded"); err != nil {
		t.Fatalf("fetch webhook: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "payout_requests_enqueued_total")
	if mf == nil || len(mf.GetMetric()) != 1 || mf.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected enqueued=3, got %v", mf)
	}
}

func TestPayoutMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewPayoutMetrics(nil)
	metrics.IncSettlement("settled")
	metrics.IncWebhook("stripe", "x", "y")
	metrics.AddEnqueued(1)

	var nilMetrics *PayoutMetrics
	nilMetrics.IncSettlement("settled")
}

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)
	metrics.IncDispatched("payout.requested", "published")
	metrics.IncDispatched("payout.requested", "dead_letter")
	metrics.IncDispatched("transfer.failed", "published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_dispatched_total", "outcome", "dead_letter"); err != nil {
		t.Fatalf("fetch dead_letter: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dead_letter=1, got %f", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.IncDispatched("payout.requested", "published")
}

package enums

import "fmt"

// OutboxAggregateType is the aggregate_type column of outbox_events. Consumers
// partition on (aggregate_type, aggregate_id).
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateTransfer      OutboxAggregateType = "transfer"
	AggregatePayoutAccount OutboxAggregateType = "payout_account"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregateTransfer, AggregatePayoutAccount:
		return true
	}
	return false
}

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventPayoutRequested              OutboxEventType = "payout.requested"
	EventPayoutSucceeded              OutboxEventType = "payout.succeeded"
	EventPayoutFailed                 OutboxEventType = "payout.failed"
	EventTransferSucceeded            OutboxEventType = "transfer.succeeded"
	EventTransferFailed               OutboxEventType = "transfer.failed"
	EventPayoutAccountWebhookReceived OutboxEventType = "payout_account.webhook_received"
)

// eventAggregates fixes the aggregate each event is keyed by. Payout outcomes
// key on the order because a blocked order never gets a payout row.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventPayoutRequested:              AggregateOrder,
	EventPayoutSucceeded:              AggregateOrder,
	EventPayoutFailed:                 AggregateOrder,
	EventTransferSucceeded:            AggregateTransfer,
	EventTransferFailed:               AggregateTransfer,
	EventPayoutAccountWebhookReceived: AggregatePayoutAccount,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is emitted under, or "" when e is
// unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

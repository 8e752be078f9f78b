package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// PayoutRequestedEvent asks the settlement worker to pay out one order.
// Attempt starts at 1 and the worker gives up after MaxAttempts.
type PayoutRequestedEvent struct {
	OrderID     uuid.UUID     `json:"order_id"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay_ns"`
	ScanID      string        `json:"scan_id,omitempty"`
	RequestedAt time.Time     `json:"timestamp"`
}

// PayoutOutcomeEvent is emitted for payout.succeeded and payout.failed.
type PayoutOutcomeEvent struct {
	OrderID      uuid.UUID                `json:"order_id"`
	PayoutID     *uuid.UUID               `json:"payout_id,omitempty"`
	AccountID    *uuid.UUID               `json:"account_id,omitempty"`
	Amount       *decimal.Decimal         `json:"amount,omitempty"`
	CurrencyCode *enums.Currency          `json:"currency_code,omitempty"`
	Reason       *enums.PayoutBlockReason `json:"reason,omitempty"`
	OccurredAt   time.Time                `json:"timestamp"`
}

// TransferOutcomeEvent is emitted for transfer.succeeded and transfer.failed.
type TransferOutcomeEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	TransferID   uuid.UUID       `json:"transfer_id"`
	PayoutID     *uuid.UUID      `json:"payout_id,omitempty"`
	ReferenceID  string          `json:"reference_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode enums.Currency  `json:"currency_code"`
	Reason       string          `json:"reason,omitempty"`
	OccurredAt   time.Time       `json:"timestamp"`
}

// PayoutAccountWebhookEvent records a provider-driven account state change.
type PayoutAccountWebhookEvent struct {
	AccountID      uuid.UUID                 `json:"account_id"`
	SellerID       uuid.UUID                 `json:"seller_id"`
	PreviousStatus enums.PayoutAccountStatus `json:"previous_status"`
	Status         enums.PayoutAccountStatus `json:"status"`
	OccurredAt     time.Time                 `json:"timestamp"`
}

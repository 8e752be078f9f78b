// Package gateway abstracts the external processors that move seller payouts.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/types"
)

// Provider is implemented by every payout processor variant.
type Provider interface {
	Name() enums.PayoutProvider
	CreatePayout(ctx context.Context, req PayoutRequest) (*ProviderRecord, error)
	CreatePayoutAccount(ctx context.Context, seller SellerContext) (*AccountRecord, error)
	InitializeOnboarding(ctx context.Context, account *models.PayoutAccount) (string, error)
	GetWebhookActionAndData(ctx context.Context, payload WebhookPayload) (*WebhookAction, error)
}

// PayoutRequest moves Amount to the provider account AccountRef.
// IdempotencyKey must stay the same for every attempt to pay the same order
// until the provider confirms a failure.
type PayoutRequest struct {
	PayoutID       uuid.UUID
	OrderID        uuid.UUID
	Amount         decimal.Decimal
	Currency       enums.Currency
	AccountRef     string
	IdempotencyKey string
}

// ProviderRecord is what the provider returned for a payout request.
type ProviderRecord struct {
	ReferenceID string
	Data        types.ProviderData
}

// SellerContext carries what a provider needs to open a seller account.
type SellerContext struct {
	SellerID     uuid.UUID
	Email        string
	Country      string
	BusinessName string
}

// AccountRecord is a newly created provider account.
type AccountRecord struct {
	ReferenceID string
	Status      enums.PayoutAccountStatus
	Data        types.ProviderData
}

// WebhookPayload is an undecoded provider callback. RawData is the exact
// request body used for signature checks; Data is used when RawData is empty.
type WebhookPayload struct {
	Data    json.RawMessage
	RawData []byte
	Headers http.Header
}

// Body returns the bytes a provider should verify and decode.
func (p WebhookPayload) Body() []byte {
	if len(p.RawData) > 0 {
		return p.RawData
	}
	return p.Data
}

// ActionType is the typed outcome of a decoded webhook.
type ActionType string

const (
	ActionTransferSucceeded ActionType = "transfer_succeeded"
	ActionTransferFailed    ActionType = "transfer_failed"
	ActionAccountUpdated    ActionType = "account_updated"
	ActionNotSupported      ActionType = "not_supported"
)

// WebhookAction is a provider callback decoded into what it means for settlement.
type WebhookAction struct {
	Action            ActionType
	Provider          enums.PayoutProvider
	EventID           string
	TransferReference string
	PayoutID          *uuid.UUID
	OrderID           *uuid.UUID
	AccountReference  string
	AccountStatus     enums.PayoutAccountStatus
	Amount            decimal.Decimal
	Currency          enums.Currency
	FailureReason     string
	Data              types.ProviderData
}

// DedupKey identifies the side effect of the action. Replays share the key.
func (a *WebhookAction) DedupKey() string {
	switch a.Action {
	case ActionTransferSucceeded, ActionTransferFailed:
		return string(a.Provider) + ":" + a.TransferReference + ":" + string(a.Action)
	case ActionAccountUpdated:
		return string(a.Provider) + ":" + a.AccountReference + ":" + string(a.AccountStatus) + ":" + a.EventID
	default:
		return string(a.Provider) + ":" + a.EventID
	}
}

// Package manual implements an operator-driven payout provider. Money moves
// outside the platform and operators report outcomes through signed webhooks.
package manual

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/types"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Packfinderz-Signature"

const provider = enums.PayoutProviderManual

const (
	eventTransferSucceeded = "transfer.succeeded"
	eventTransferFailed    = "transfer.failed"
	eventAccountUpdated    = "account.updated"
)

// Provider records payouts for operators to execute by hand.
type Provider struct {
	secret        []byte
	onboardingURL string
}

// New builds the manual provider.
func New(webhookSecret, onboardingURL string) (*Provider, error) {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return nil, fmt.Errorf("manual payout webhook secret required")
	}
	return &Provider{
		secret:        []byte(secret),
		onboardingURL: strings.TrimSpace(onboardingURL),
	}, nil
}

func (p *Provider) Name() enums.PayoutProvider {
	return provider
}

// CreatePayout derives the reference from the idempotency key so a retried
// request maps onto the same operator task.
func (p *Provider) CreatePayout(_ context.Context, req gateway.PayoutRequest) (*gateway.ProviderRecord, error) {
	if strings.TrimSpace(req.AccountRef) == "" {
		return nil, gateway.NewError(gateway.KindInvalidAccount, provider, "destination account missing", nil)
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = req.PayoutID.String()
	}
	reference := "manual_" + key
	return &gateway.ProviderRecord{
		ReferenceID: reference,
		Data:        types.NewManualData(types.ManualData{Reference: reference}),
	}, nil
}

func (p *Provider) CreatePayoutAccount(_ context.Context, seller gateway.SellerContext) (*gateway.AccountRecord, error) {
	if seller.SellerID == uuid.Nil {
		return nil, gateway.NewError(gateway.KindInvalidAccount, provider, "seller id required", nil)
	}
	reference := "manual_acct_" + seller.SellerID.String()
	return &gateway.AccountRecord{
		ReferenceID: reference,
		Status:      enums.PayoutAccountPending,
		Data:        types.NewManualData(types.ManualData{Reference: reference}),
	}, nil
}

func (p *Provider) InitializeOnboarding(_ context.Context, account *models.PayoutAccount) (string, error) {
	if account == nil || account.ID == uuid.Nil {
		return "", gateway.NewError(gateway.KindInvalidAccount, provider, "account required", nil)
	}
	if p.onboardingURL == "" {
		return "", gateway.NewError(gateway.KindInvalidAccount, provider, "onboarding url not configured", nil)
	}
	u, err := url.Parse(p.onboardingURL)
	if err != nil {
		return "", gateway.NewError(gateway.KindInvalidAccount, provider, "onboarding url invalid", err)
	}
	q := u.Query()
	q.Set("account", account.ID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type webhookBody struct {
	EventID          string     `json:"event_id"`
	Type             string     `json:"type"`
	TransferID       string     `json:"transfer_id"`
	PayoutID         *uuid.UUID `json:"payout_id"`
	OrderID          *uuid.UUID `json:"order_id"`
	AccountReference string     `json:"account_reference"`
	Status           string     `json:"status"`
	Amount           *string    `json:"amount"`
	CurrencyCode     string     `json:"currency_code"`
	Reason           string     `json:"reason"`
	Operator         string     `json:"operator"`
	Note             string     `json:"note"`
}

func (p *Provider) GetWebhookActionAndData(_ context.Context, payload gateway.WebhookPayload) (*gateway.WebhookAction, error) {
	body := payload.Body()
	if len(body) == 0 {
		return nil, gateway.NewError(gateway.KindDecode, provider, "empty webhook body", nil)
	}
	var signature string
	if payload.Headers != nil {
		signature = strings.TrimSpace(payload.Headers.Get(SignatureHeader))
	}
	if signature == "" {
		return nil, gateway.NewError(gateway.KindSignature, provider, "missing signature header", nil)
	}
	if !p.validSignature(body, signature) {
		return nil, gateway.NewError(gateway.KindSignature, provider, "invalid signature", nil)
	}

	var msg webhookBody
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, gateway.NewError(gateway.KindDecode, provider, "decode body", err)
	}
	if strings.TrimSpace(msg.EventID) == "" {
		return nil, gateway.NewError(gateway.KindDecode, provider, "event_id required", nil)
	}

	data := types.NewManualData(types.ManualData{Reference: msg.TransferID, Operator: msg.Operator, Note: msg.Note})
	switch msg.Type {
	case eventTransferSucceeded, eventTransferFailed:
		if strings.TrimSpace(msg.TransferID) == "" {
			return nil, gateway.NewError(gateway.KindDecode, provider, "transfer_id required", nil)
		}
		action := &gateway.WebhookAction{
			Action:            gateway.ActionTransferSucceeded,
			Provider:          provider,
			EventID:           msg.EventID,
			TransferReference: msg.TransferID,
			PayoutID:          msg.PayoutID,
			OrderID:           msg.OrderID,
			AccountReference:  msg.AccountReference,
			FailureReason:     msg.Reason,
			Data:              data,
		}
		if msg.Type == eventTransferFailed {
			action.Action = gateway.ActionTransferFailed
		}
		if msg.Amount != nil {
			amount, err := decimal.NewFromString(*msg.Amount)
			if err != nil {
				return nil, gateway.NewError(gateway.KindDecode, provider, "amount", err)
			}
			action.Amount = amount
		}
		if msg.CurrencyCode != "" {
			currency, err := enums.ParseCurrency(msg.CurrencyCode)
			if err != nil {
				return nil, gateway.NewError(gateway.KindDecode, provider, "currency_code", err)
			}
			action.Currency = currency
		}
		return action, nil
	case eventAccountUpdated:
		if strings.TrimSpace(msg.AccountReference) == "" {
			return nil, gateway.NewError(gateway.KindDecode, provider, "account_reference required", nil)
		}
		status, err := enums.ParsePayoutAccountStatus(msg.Status)
		if err != nil {
			return nil, gateway.NewError(gateway.KindDecode, provider, "status", err)
		}
		return &gateway.WebhookAction{
			Action:           gateway.ActionAccountUpdated,
			Provider:         provider,
			EventID:          msg.EventID,
			AccountReference: msg.AccountReference,
			AccountStatus:    status,
			Data:             types.NewManualData(types.ManualData{Reference: msg.AccountReference, Operator: msg.Operator, Note: msg.Note}),
		}, nil
	default:
		return &gateway.WebhookAction{
			Action:   gateway.ActionNotSupported,
			Provider: provider,
			EventID:  msg.EventID,
		}, nil
	}
}

// Sign returns the signature operators attach to a webhook body.
func (p *Provider) Sign(body []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *Provider) validSignature(body []byte, signature string) bool {
	expected, err := hex.DecodeString(p.Sign(body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

var _ gateway.Provider = (*Provider)(nil)

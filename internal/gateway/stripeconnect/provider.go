// Package stripeconnect moves seller payouts through Stripe Connect transfers.
package stripeconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/money"
	"github.com/angelmondragon/packfinderz-payouts/pkg/types"
)

const (
	// SignatureHeader carries the Stripe webhook signature.
	SignatureHeader = "Stripe-Signature"

	metadataPayoutID = "payout_id"
	metadataOrderID  = "order_id"
	metadataSellerID = "seller_id"

	codeRateLimit       = "rate_limit"
	codeResourceMissing = "resource_missing"
	paramDestination    = "destination"
)

// Destination account problems only the seller's account state can fix.
var (
	invalidAccountCodes = map[string]struct{}{
		"account_invalid":                 {},
		"account_closed":                  {},
		"account_country_invalid_address": {},
		"no_account":                      {},
	}
	disabledAccountCodes = map[string]struct{}{
		"insufficient_capabilities_for_transfer": {},
		"transfers_not_allowed":                  {},
		"payouts_not_allowed":                    {},
	}
)

const provider = enums.PayoutProviderStripe

// Config wires the provider.
type Config struct {
	Client        ConnectClient
	SigningSecret string
	Country       string
	RefreshURL    string
	ReturnURL     string
}

// Provider implements gateway.Provider on Stripe Connect.
type Provider struct {
	client        ConnectClient
	signingSecret string
	country       string
	refreshURL    string
	returnURL     string
}

// New validates the config and builds the provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("stripe connect client required")
	}
	secret := strings.TrimSpace(cfg.SigningSecret)
	if secret == "" {
		return nil, fmt.Errorf("stripe signing secret required")
	}
	country := strings.ToUpper(strings.TrimSpace(cfg.Country))
	if country == "" {
		country = "US"
	}
	return &Provider{
		client:        cfg.Client,
		signingSecret: secret,
		country:       country,
		refreshURL:    strings.TrimSpace(cfg.RefreshURL),
		returnURL:     strings.TrimSpace(cfg.ReturnURL),
	}, nil
}

func (p *Provider) Name() enums.PayoutProvider {
	return provider
}

// CreatePayout creates a transfer to the connected account. The idempotency
// key makes a retried request return the original transfer.
func (p *Provider) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.ProviderRecord, error) {
	if strings.TrimSpace(req.AccountRef) == "" {
		return nil, gateway.NewError(gateway.KindInvalidAccount, provider, "destination account missing", nil)
	}
	if !req.Amount.IsPositive() {
		return nil, gateway.NewError(gateway.KindInvalidAccount, provider, "transfer amount must be positive", nil)
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(money.ToMinor(req.Amount, req.Currency)),
		Currency:      stripe.String(strings.ToLower(req.Currency.String())),
		Destination:   stripe.String(req.AccountRef),
		TransferGroup: stripe.String(req.OrderID.String()),
	}
	// Retries reuse the idempotency key with a new payout id, so the request
	// carries only values that stay fixed for the order.
	params.AddMetadata(metadataOrderID, req.OrderID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	tr, err := p.client.CreateTransfer(ctx, params)
	if err != nil {
		return nil, classifyStripeError(err, "create transfer")
	}
	if tr == nil || tr.ID == "" {
		return nil, gateway.NewError(gateway.KindNetwork, provider, "create transfer returned no id", nil)
	}

	return &gateway.ProviderRecord{
		ReferenceID: tr.ID,
		Data:        transferData(tr),
	}, nil
}

// CreatePayoutAccount opens an express account able to receive transfers.
func (p *Provider) CreatePayoutAccount(ctx context.Context, seller gateway.SellerContext) (*gateway.AccountRecord, error) {
	if seller.SellerID == uuid.Nil {
		return nil, gateway.NewError(gateway.KindInvalidAccount, provider, "seller id required", nil)
	}
	country := strings.ToUpper(strings.TrimSpace(seller.Country))
	if country == "" {
		country = p.country
	}

	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(country),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email := strings.TrimSpace(seller.Email); email != "" {
		params.Email = stripe.String(email)
	}
	if name := strings.TrimSpace(seller.BusinessName); name != "" {
		params.BusinessProfile = &stripe.AccountBusinessProfileParams{Name: stripe.String(name)}
	}
	params.AddMetadata(metadataSellerID, seller.SellerID.String())
	params.SetIdempotencyKey("acct_" + seller.SellerID.String())

	acct, err := p.client.CreateAccount(ctx, params)
	if err != nil {
		return nil, classifyStripeError(err, "create account")
	}
	if acct == nil || acct.ID == "" {
		return nil, gateway.NewError(gateway.KindNetwork, provider, "create account returned no id", nil)
	}

	return &gateway.AccountRecord{
		ReferenceID: acct.ID,
		Status:      accountStatus(acct),
		Data:        accountData(acct),
	}, nil
}

// InitializeOnboarding returns a hosted onboarding link for the account.
func (p *Provider) InitializeOnboarding(ctx context.Context, account *models.PayoutAccount) (string, error) {
	if account == nil || strings.TrimSpace(account.ReferenceID) == "" {
		return "", gateway.NewError(gateway.KindInvalidAccount, provider, "account reference required", nil)
	}
	params := &stripe.AccountLinkParams{
		Account: stripe.String(account.ReferenceID),
		Type:    stripe.String("account_onboarding"),
	}
	if p.refreshURL != "" {
		params.RefreshURL = stripe.String(p.refreshURL)
	}
	if p.returnURL != "" {
		params.ReturnURL = stripe.String(p.returnURL)
	}

	link, err := p.client.CreateAccountLink(ctx, params)
	if err != nil {
		return "", classifyStripeError(err, "create account link")
	}
	if link == nil || link.URL == "" {
		return "", gateway.NewError(gateway.KindNetwork, provider, "account link returned no url", nil)
	}
	return link.URL, nil
}

// GetWebhookActionAndData verifies the signature and decodes the event.
func (p *Provider) GetWebhookActionAndData(ctx context.Context, payload gateway.WebhookPayload) (*gateway.WebhookAction, error) {
	body := payload.Body()
	if len(body) == 0 {
		return nil, gateway.NewError(gateway.KindDecode, provider, "empty webhook body", nil)
	}
	signature := headerValue(payload.Headers, SignatureHeader)
	if signature == "" {
		return nil, gateway.NewError(gateway.KindSignature, provider, "missing signature header", nil)
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, p.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, gateway.NewError(gateway.KindSignature, provider, "invalid signature", err)
		}
		return nil, gateway.NewError(gateway.KindDecode, provider, "decode event", err)
	}
	if event.Data == nil {
		return nil, gateway.NewError(gateway.KindDecode, provider, "event data missing", nil)
	}

	switch event.Type {
	case stripe.EventTypeTransferCreated, stripe.EventTypeTransferReversed:
		var tr stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
			return nil, gateway.NewError(gateway.KindDecode, provider, "decode transfer", err)
		}
		if tr.ID == "" {
			return nil, gateway.NewError(gateway.KindDecode, provider, "transfer id missing", nil)
		}
		action := &gateway.WebhookAction{
			Action:            gateway.ActionTransferSucceeded,
			Provider:          provider,
			EventID:           event.ID,
			TransferReference: tr.ID,
			PayoutID:          metadataUUID(tr.Metadata, metadataPayoutID),
			OrderID:           metadataUUID(tr.Metadata, metadataOrderID),
			Data:              transferData(&tr),
		}
		if tr.Destination != nil {
			action.AccountReference = tr.Destination.ID
		}
		if tr.Currency != "" {
			currency, err := enums.ParseCurrency(string(tr.Currency))
			if err != nil {
				return nil, gateway.NewError(gateway.KindDecode, provider, "transfer currency", err)
			}
			action.Currency = currency
			action.Amount = money.FromMinor(tr.Amount, currency)
		}
		if event.Type == stripe.EventTypeTransferReversed || tr.Reversed {
			action.Action = gateway.ActionTransferFailed
			action.FailureReason = "transfer reversed"
		}
		return action, nil
	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, gateway.NewError(gateway.KindDecode, provider, "decode account", err)
		}
		if acct.ID == "" {
			return nil, gateway.NewError(gateway.KindDecode, provider, "account id missing", nil)
		}
		return &gateway.WebhookAction{
			Action:           gateway.ActionAccountUpdated,
			Provider:         provider,
			EventID:          event.ID,
			AccountReference: acct.ID,
			AccountStatus:    accountStatus(&acct),
			Data:             accountData(&acct),
		}, nil
	default:
		return &gateway.WebhookAction{
			Action:   gateway.ActionNotSupported,
			Provider: provider,
			EventID:  event.ID,
		}, nil
	}
}

func accountStatus(acct *stripe.Account) enums.PayoutAccountStatus {
	if acct.Requirements != nil && acct.Requirements.DisabledReason != "" {
		return enums.PayoutAccountDisabled
	}
	if acct.PayoutsEnabled && acct.DetailsSubmitted {
		return enums.PayoutAccountActive
	}
	return enums.PayoutAccountPending
}

func accountData(acct *stripe.Account) types.ProviderData {
	data := types.StripeData{
		AccountID:        acct.ID,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		data.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return types.NewStripeData(data)
}

func transferData(tr *stripe.Transfer) types.ProviderData {
	data := types.StripeData{
		TransferID:    tr.ID,
		TransferGroup: tr.TransferGroup,
		Reversed:      tr.Reversed,
		Livemode:      tr.Livemode,
	}
	if tr.Destination != nil {
		data.AccountID = tr.Destination.ID
	}
	return types.NewStripeData(data)
}

func metadataUUID(metadata map[string]string, key string) *uuid.UUID {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func classifyStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return gateway.NewError(gateway.KindNetwork, provider, op, err)
	}
	code := string(stripeErr.Code)
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || code == codeRateLimit:
		return gateway.NewError(gateway.KindRateLimited, provider, op, err)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == 0:
		return gateway.NewError(gateway.KindNetwork, provider, op, err)
	}
	if _, ok := disabledAccountCodes[code]; ok {
		return gateway.NewError(gateway.KindAccountDisabled, provider, op, err)
	}
	if _, ok := invalidAccountCodes[code]; ok {
		return gateway.NewError(gateway.KindInvalidAccount, provider, op, err)
	}
	if code == codeResourceMissing && stripeErr.Param == paramDestination {
		return gateway.NewError(gateway.KindInvalidAccount, provider, op, err)
	}
	// Platform side: balance, amount limits, idempotency conflicts.
	return gateway.NewError(gateway.KindRejected, provider, op, err)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func headerValue(headers http.Header, key string) string {
	if headers == nil {
		return ""
	}
	return strings.TrimSpace(headers.Get(key))
}

var _ gateway.Provider = (*Provider)(nil)

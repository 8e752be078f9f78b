package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// ErrProviderDataDecode marks malformed provider data blobs.
var ErrProviderDataDecode = errors.New("provider data: decode failed")

// ProviderData is the per-provider state attached to payout accounts, payouts
// and transfers. Exactly one variant is populated and it always matches Provider.
type ProviderData struct {
	Provider enums.PayoutProvider
	Stripe   *StripeData
	Manual   *ManualData
}

// StripeData is the Stripe Connect variant.
type StripeData struct {
	AccountID        string `json:"account_id,omitempty"`
	TransferID       string `json:"transfer_id,omitempty"`
	TransferGroup    string `json:"transfer_group,omitempty"`
	DisabledReason   string `json:"disabled_reason,omitempty"`
	PayoutsEnabled   bool   `json:"payouts_enabled,omitempty"`
	DetailsSubmitted bool   `json:"details_submitted,omitempty"`
	Reversed         bool   `json:"reversed,omitempty"`
	Livemode         bool   `json:"livemode,omitempty"`
}

// ManualData is the operator-driven variant.
type ManualData struct {
	Reference string `json:"reference,omitempty"`
	Operator  string `json:"operator,omitempty"`
	Note      string `json:"note,omitempty"`
}

type providerDataEnvelope struct {
	Provider enums.PayoutProvider `json:"provider"`
	Stripe   json.RawMessage      `json:"stripe,omitempty"`
	Manual   json.RawMessage      `json:"manual,omitempty"`
}

// NewStripeData wraps a Stripe variant.
func NewStripeData(data StripeData) ProviderData {
	return ProviderData{Provider: enums.PayoutProviderStripe, Stripe: &data}
}

// NewManualData wraps a manual variant.
func NewManualData(data ManualData) ProviderData {
	return ProviderData{Provider: enums.PayoutProviderManual, Manual: &data}
}

// IsZero reports whether no provider state has been recorded.
func (p ProviderData) IsZero() bool {
	return p.Provider == "" && p.Stripe == nil && p.Manual == nil
}

// Validate ensures the populated variant matches the provider tag.
func (p ProviderData) Validate() error {
	switch p.Provider {
	case enums.PayoutProviderStripe:
		if p.Stripe == nil || p.Manual != nil {
			return fmt.Errorf("%w: stripe provider requires only stripe data", ErrProviderDataDecode)
		}
	case enums.PayoutProviderManual:
		if p.Manual == nil || p.Stripe != nil {
			return fmt.Errorf("%w: manual provider requires only manual data", ErrProviderDataDecode)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrProviderDataDecode, p.Provider)
	}
	return nil
}

func (p ProviderData) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	env := providerDataEnvelope{Provider: p.Provider}
	var err error
	switch p.Provider {
	case enums.PayoutProviderStripe:
		env.Stripe, err = json.Marshal(p.Stripe)
	case enums.PayoutProviderManual:
		env.Manual, err = json.Marshal(p.Manual)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (p *ProviderData) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = ProviderData{}
		return nil
	}

	var env providerDataEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDataDecode, err)
	}

	decoded := ProviderData{Provider: env.Provider}
	switch env.Provider {
	case enums.PayoutProviderStripe:
		if len(env.Stripe) == 0 {
			return fmt.Errorf("%w: stripe payload missing", ErrProviderDataDecode)
		}
		var stripeData StripeData
		if err := json.Unmarshal(env.Stripe, &stripeData); err != nil {
			return fmt.Errorf("%w: stripe: %v", ErrProviderDataDecode, err)
		}
		decoded.Stripe = &stripeData
	case enums.PayoutProviderManual:
		if len(env.Manual) == 0 {
			return fmt.Errorf("%w: manual payload missing", ErrProviderDataDecode)
		}
		var manualData ManualData
		if err := json.Unmarshal(env.Manual, &manualData); err != nil {
			return fmt.Errorf("%w: manual: %v", ErrProviderDataDecode, err)
		}
		decoded.Manual = &manualData
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrProviderDataDecode, env.Provider)
	}

	*p = decoded
	return nil
}

// Value implements driver.Valuer for jsonb columns.
func (p ProviderData) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner for jsonb columns.
func (p *ProviderData) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = ProviderData{}
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrProviderDataDecode, value)
	}
}

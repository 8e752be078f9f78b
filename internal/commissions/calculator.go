package commissions

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// LineAmounts are the totals of the line a commission is charged on.
type LineAmounts struct {
	Subtotal decimal.Decimal
	TaxTotal decimal.Decimal
}

// Base is the commissionable amount for the rate.
func (a LineAmounts) Base(taxInclusive bool) decimal.Decimal {
	if taxInclusive {
		return a.Subtotal.Add(a.TaxTotal)
	}
	return a.Subtotal
}

// Calculate returns the commission owed on one line in currency.
// The result is clamped to the rate bounds and to the line base, then
// rounded half-up to the currency's minor units.
func Calculate(rate *models.CommissionRate, currency enums.Currency, line LineAmounts) (decimal.Decimal, error) {
	if rate == nil {
		return decimal.Zero, nil
	}
	base := line.Base(rate.IsTaxInclusive)
	if base.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "line total cannot be negative")
	}

	var raw decimal.Decimal
	switch rate.Type {
	case enums.CommissionRateFlat:
		amount, err := flatAmount(rate, currency)
		if err != nil {
			return decimal.Zero, err
		}
		raw = amount
	case enums.CommissionRatePercentage:
		raw = base.Mul(rate.Value).Div(hundred)
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unknown commission rate type").
			WithDetails(map[string]any{"type": rate.Type})
	}

	if rate.MinAmount != nil && raw.LessThan(*rate.MinAmount) {
		raw = *rate.MinAmount
	}
	if rate.MaxAmount != nil && raw.GreaterThan(*rate.MaxAmount) {
		raw = *rate.MaxAmount
	}
	if raw.GreaterThan(base) {
		raw = base
	}
	return money.Round(raw, currency), nil
}

func flatAmount(rate *models.CommissionRate, currency enums.Currency) (decimal.Decimal, error) {
	if amount, ok := rate.PriceFor(currency); ok {
		return amount, nil
	}
	if rate.CurrencyCode != nil && *rate.CurrencyCode == currency {
		return rate.Value, nil
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeUnsupportedCurrency, "no flat commission price for currency").
		WithDetails(map[string]any{"rate_id": rate.ID, "currency_code": currency})
}

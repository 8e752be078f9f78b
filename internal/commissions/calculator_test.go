package commissions

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func percentage(value string) *models.CommissionRate {
	return &models.CommissionRate{Type: enums.CommissionRatePercentage, Target: enums.CommissionTargetItem, Value: dec(value), IsEnabled: true}
}

func TestCalculatePercentageRounding(t *testing.T) {
	for i := 0; i < 5; i++ {
		got, err := Calculate(percentage("7.25"), enums.CurrencyUSD, LineAmounts{Subtotal: dec("19.99")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(dec("1.45")) {
			t.Fatalf("expected 1.45, got %s", got)
		}
	}
}

func TestCalculatePercentageBase(t *testing.T) {
	rate := percentage("10")
	line := LineAmounts{Subtotal: dec("100.00"), TaxTotal: dec("8.00")}

	got, _ := Calculate(rate, enums.CurrencyUSD, line)
	if !got.Equal(dec("10.00")) {
		t.Fatalf("expected tax-exclusive 10.00, got %s", got)
	}

	rate.IsTaxInclusive = true
	got, _ = Calculate(rate, enums.CurrencyUSD, line)
	if !got.Equal(dec("10.80")) {
		t.Fatalf("expected tax-inclusive 10.80, got %s", got)
	}
}

func TestCalculateClamps(t *testing.T) {
	rate := percentage("1")
	rate.MinAmount = decPtr("2.50")
	got, _ := Calculate(rate, enums.CurrencyUSD, LineAmounts{Subtotal: dec("20.00")})
	if !got.Equal(dec("2.50")) {
		t.Fatalf("expected min clamp 2.50, got %s", got)
	}

	rate = percentage("50")
	rate.MaxAmount = decPtr("7.00")
	got, _ = Calculate(rate, enums.CurrencyUSD, LineAmounts{Subtotal: dec("20.00")})
	if !got.Equal(dec("7.00")) {
		t.Fatalf("expected max clamp 7.00, got %s", got)
	}

	rate = percentage("1")
	rate.MinAmount = decPtr("5.00")
	got, _ = Calculate(rate, enums.CurrencyUSD, LineAmounts{Subtotal: dec("3.00")})
	if !got.Equal(dec("3.00")) {
		t.Fatalf("expected commission capped at the line total, got %s", got)
	}
}

func TestCalculateCurrencyPrecision(t *testing.T) {
	got, _ := Calculate(percentage("7.25"), enums.CurrencyJPY, LineAmounts{Subtotal: dec("1999")})
	if !got.Equal(dec("145")) {
		t.Fatalf("expected 145 JPY, got %s", got)
	}
	got, _ = Calculate(percentage("7.25"), enums.CurrencyKWD, LineAmounts{Subtotal: dec("19.999")})
	if !got.Equal(dec("1.450")) {
		t.Fatalf("expected 1.450 KWD, got %s", got)
	}
}

func TestCalculateFlat(t *testing.T) {
	usd := enums.CurrencyUSD
	rate := &models.CommissionRate{
		Type:         enums.CommissionRateFlat,
		Value:        dec("3.00"),
		CurrencyCode: &usd,
		Prices:       []models.CommissionRatePrice{{CurrencyCode: enums.CurrencyEUR, Amount: dec("2.75")}},
	}
	line := LineAmounts{Subtotal: dec("40.00")}

	got, err := Calculate(rate, enums.CurrencyUSD, line)
	if err != nil || !got.Equal(dec("3.00")) {
		t.Fatalf("expected 3.00 USD, got %s err=%v", got, err)
	}
	got, err = Calculate(rate, enums.CurrencyEUR, line)
	if err != nil || !got.Equal(dec("2.75")) {
		t.Fatalf("expected 2.75 EUR price, got %s err=%v", got, err)
	}

	_, err = Calculate(rate, enums.CurrencyGBP, line)
	if !pkgerrors.Is(err, pkgerrors.CodeUnsupportedCurrency) {
		t.Fatalf("expected unsupported currency, got %v", err)
	}
}

func TestCalculateNilRateIsZero(t *testing.T) {
	got, err := Calculate(nil, enums.CurrencyUSD, LineAmounts{Subtotal: dec("10")})
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero commission, got %s err=%v", got, err)
	}
}

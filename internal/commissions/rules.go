package commissions

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// CreateRuleInput is a rule plus the rate it owns.
type CreateRuleInput struct {
	Name        string                    `json:"name" validate:"required,max=255"`
	Reference   enums.CommissionReference `json:"reference" validate:"required,oneof=global seller product_category product_type"`
	ReferenceID *uuid.UUID                `json:"reference_id"`
	Rate        RateInput                 `json:"rate"`
}

// RateInput describes a commission rate.
type RateInput struct {
	Type           enums.CommissionRateType `json:"type" validate:"required,oneof=flat percentage"`
	Target         enums.CommissionTarget   `json:"target" validate:"required,oneof=item shipping"`
	Value          decimal.Decimal          `json:"value"`
	MinAmount      *decimal.Decimal         `json:"min_amount"`
	MaxAmount      *decimal.Decimal         `json:"max_amount"`
	IsTaxInclusive bool                     `json:"is_tax_inclusive"`
	IsEnabled      *bool                    `json:"is_enabled"`
	Priority       int                      `json:"priority" validate:"gte=0"`
	CurrencyCode   *string                  `json:"currency_code" validate:"omitempty,len=3"`
	Prices         []PriceInput             `json:"prices" validate:"dive"`
}

// PriceInput is a flat amount for one currency.
type PriceInput struct {
	CurrencyCode string          `json:"currency_code" validate:"required,len=3"`
	Amount       decimal.Decimal `json:"amount"`
}

func (s *service) CreateRule(ctx context.Context, input CreateRuleInput) (*models.CommissionRule, error) {
	rule, err := buildRule(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission rule")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"rule_id":   rule.ID.String(),
		"reference": rule.Reference,
		"target":    rule.Rate.Target,
	}), "commission rule created")
	return rule, nil
}

func buildRule(input CreateRuleInput) (*models.CommissionRule, error) {
	if err := validate.Struct(input); err != nil {
		return nil, formatValidationErrors(err)
	}

	details := map[string]string{}
	rate := input.Rate
	if rate.Value.IsNegative() {
		details["rate.value"] = "must be zero or greater"
	}
	if rate.Type == enums.CommissionRatePercentage && rate.Value.GreaterThan(hundred) {
		details["rate.value"] = "percentage must be between 0 and 100"
	}
	if rate.MinAmount != nil && rate.MinAmount.IsNegative() {
		details["rate.min_amount"] = "must be zero or greater"
	}
	if rate.MaxAmount != nil && rate.MaxAmount.IsNegative() {
		details["rate.max_amount"] = "must be zero or greater"
	}
	if rate.MinAmount != nil && rate.MaxAmount != nil && rate.MinAmount.GreaterThan(*rate.MaxAmount) {
		details["rate.max_amount"] = "must not be below min_amount"
	}

	switch {
	case input.Reference == enums.CommissionReferenceGlobal && input.ReferenceID != nil:
		details["reference_id"] = "must be empty for global rules"
	case input.Reference != enums.CommissionReferenceGlobal && (input.ReferenceID == nil || *input.ReferenceID == uuid.Nil):
		details["reference_id"] = "is required"
	}

	var currency *enums.Currency
	if rate.CurrencyCode != nil {
		parsed, err := enums.ParseCurrency(*rate.CurrencyCode)
		if err != nil {
			details["rate.currency_code"] = "is invalid"
		} else {
			currency = &parsed
		}
	}

	prices := make([]models.CommissionRatePrice, 0, len(rate.Prices))
	seen := map[enums.Currency]bool{}
	for _, price := range rate.Prices {
		code, err := enums.ParseCurrency(price.CurrencyCode)
		if err != nil {
			details["rate.prices"] = "contains an invalid currency"
			continue
		}
		if seen[code] {
			details["rate.prices"] = "contains a duplicate currency"
			continue
		}
		if price.Amount.IsNegative() {
			details["rate.prices"] = "amounts must be zero or greater"
			continue
		}
		seen[code] = true
		prices = append(prices, models.CommissionRatePrice{CurrencyCode: code, Amount: price.Amount})
	}
	if rate.Type == enums.CommissionRateFlat && currency == nil && len(prices) == 0 {
		details["rate.currency_code"] = "flat rates need a currency or per-currency prices"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid commission rule").WithDetails(details)
	}

	enabled := true
	if rate.IsEnabled != nil {
		enabled = *rate.IsEnabled
	}
	return &models.CommissionRule{
		Name:        strings.TrimSpace(input.Name),
		Reference:   input.Reference,
		ReferenceID: input.ReferenceID,
		Rate: &models.CommissionRate{
			Type:           rate.Type,
			Target:         rate.Target,
			Value:          rate.Value,
			MinAmount:      rate.MinAmount,
			MaxAmount:      rate.MaxAmount,
			IsTaxInclusive: rate.IsTaxInclusive,
			IsEnabled:      enabled,
			Priority:       rate.Priority,
			CurrencyCode:   currency,
			Prices:         prices,
		},
	}, nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid commission rule")
	}
	details := map[string]string{}
	for _, fieldErr := range errs {
		details[fieldErr.Namespace()] = fieldErr.Tag()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid commission rule").WithDetails(details)
}

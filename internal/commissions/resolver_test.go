package commissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testRule(ref enums.CommissionReference, refID *uuid.UUID, value string, createdOffset time.Duration) models.CommissionRule {
	return models.CommissionRule{
		ID:          uuid.New(),
		Reference:   ref,
		ReferenceID: refID,
		CreatedAt:   baseTime.Add(createdOffset),
		Rate: &models.CommissionRate{
			Type:      enums.CommissionRatePercentage,
			Target:    enums.CommissionTargetItem,
			Value:     decimal.RequireFromString(value),
			IsEnabled: true,
		},
	}
}

func itemContext(sellerID uuid.UUID, typeID, categoryID *uuid.UUID) LineContext {
	return LineContext{
		Target:            enums.CommissionTargetItem,
		Currency:          enums.CurrencyUSD,
		SellerID:          sellerID,
		ProductTypeID:     typeID,
		ProductCategoryID: categoryID,
	}
}

func TestSelectRuleSpecificityFallback(t *testing.T) {
	sellerID, categoryID, typeID := uuid.New(), uuid.New(), uuid.New()
	lc := itemContext(sellerID, &typeID, &categoryID)

	candidates := []models.CommissionRule{
		testRule(enums.CommissionReferenceGlobal, nil, "1", 0),
		testRule(enums.CommissionReferenceSeller, &sellerID, "2", time.Second),
		testRule(enums.CommissionReferenceProductCategory, &categoryID, "3", 2*time.Second),
		testRule(enums.CommissionReferenceProductType, &typeID, "4", 3*time.Second),
	}

	for i := len(candidates) - 1; i >= 0; i-- {
		got := SelectRule(candidates, lc)
		if got == nil || got.ID != candidates[i].ID {
			t.Fatalf("expected %s rule, got %+v", candidates[i].Reference, got)
		}
		candidates[i].Rate.IsEnabled = false
	}
	if got := SelectRule(candidates, lc); got != nil {
		t.Fatalf("expected no rule once everything is disabled, got %+v", got)
	}
}

func TestSelectRuleTieBreaks(t *testing.T) {
	sellerID := uuid.New()
	lc := itemContext(sellerID, nil, nil)

	older := testRule(enums.CommissionReferenceGlobal, nil, "5", 0)
	newer := testRule(enums.CommissionReferenceGlobal, nil, "6", time.Minute)
	if got := SelectRule([]models.CommissionRule{newer, older}, lc); got.ID != older.ID {
		t.Fatalf("expected earlier rule to win a priority tie")
	}

	newer.Rate.Priority = 10
	if got := SelectRule([]models.CommissionRule{older, newer}, lc); got.ID != newer.ID {
		t.Fatalf("expected higher priority to win")
	}
}

func TestSelectRuleFilters(t *testing.T) {
	sellerID, otherSeller := uuid.New(), uuid.New()
	lc := itemContext(sellerID, nil, nil)

	shipping := testRule(enums.CommissionReferenceGlobal, nil, "1", 0)
	shipping.Rate.Target = enums.CommissionTargetShipping

	eur := enums.CurrencyEUR
	mismatched := testRule(enums.CommissionReferenceGlobal, nil, "1", 0)
	mismatched.Rate.CurrencyCode = &eur

	foreignSeller := testRule(enums.CommissionReferenceSeller, &otherSeller, "1", 0)

	categoryID := uuid.New()
	categoryOnly := testRule(enums.CommissionReferenceProductCategory, &categoryID, "1", 0)

	if got := SelectRule([]models.CommissionRule{shipping, mismatched, foreignSeller, categoryOnly}, lc); got != nil {
		t.Fatalf("expected no applicable rule, got %+v", got)
	}

	usd := enums.CurrencyUSD
	matching := testRule(enums.CommissionReferenceGlobal, nil, "1", 0)
	matching.Rate.CurrencyCode = &usd
	if got := SelectRule([]models.CommissionRule{mismatched, matching}, lc); got == nil || got.ID != matching.ID {
		t.Fatalf("expected currency-matching rule, got %+v", got)
	}
}

func TestSelectRuleShippingIgnoresProductScopes(t *testing.T) {
	sellerID, typeID := uuid.New(), uuid.New()
	typeRule := testRule(enums.CommissionReferenceProductType, &typeID, "9", 0)
	typeRule.Rate.Target = enums.CommissionTargetShipping
	sellerRule := testRule(enums.CommissionReferenceSeller, &sellerID, "3", 0)
	sellerRule.Rate.Target = enums.CommissionTargetShipping

	lc := LineContext{Target: enums.CommissionTargetShipping, Currency: enums.CurrencyUSD, SellerID: sellerID}
	if got := SelectRule([]models.CommissionRule{typeRule, sellerRule}, lc); got == nil || got.ID != sellerRule.ID {
		t.Fatalf("expected seller shipping rule, got %+v", got)
	}
}

type stubRuleSource struct {
	rules []models.CommissionRule
	err   error
	calls int
}

func (s *stubRuleSource) ListCandidateRules(context.Context, enums.CommissionTarget) ([]models.CommissionRule, error) {
	s.calls++
	return s.rules, s.err
}

func TestResolverResolve(t *testing.T) {
	source := &stubRuleSource{rules: []models.CommissionRule{testRule(enums.CommissionReferenceGlobal, nil, "10", 0)}}
	resolver, err := NewResolver(source)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := resolver.Resolve(context.Background(), itemContext(uuid.New(), nil, nil))
	if err != nil || got == nil {
		t.Fatalf("expected rule, got %+v err=%v", got, err)
	}

	source.err = errors.New("db down")
	if _, err := resolver.Resolve(context.Background(), itemContext(uuid.New(), nil, nil)); err == nil {
		t.Fatalf("expected source error")
	}
}

func TestCachedRulesLoadsOncePerTarget(t *testing.T) {
	source := &stubRuleSource{}
	cache := &cachedRules{source: source}
	for i := 0; i < 3; i++ {
		if _, err := cache.ListCandidateRules(context.Background(), enums.CommissionTargetItem); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := cache.ListCandidateRules(context.Background(), enums.CommissionTargetShipping); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected 2 loads, got %d", source.calls)
	}
}

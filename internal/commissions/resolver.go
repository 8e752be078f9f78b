package commissions

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// LineContext describes the order line a commission rule is resolved for.
// Shipping lines carry no product type or category.
type LineContext struct {
	Target            enums.CommissionTarget
	Currency          enums.Currency
	SellerID          uuid.UUID
	ProductTypeID     *uuid.UUID
	ProductCategoryID *uuid.UUID
}

type ruleSource interface {
	ListCandidateRules(ctx context.Context, target enums.CommissionTarget) ([]models.CommissionRule, error)
}

// Resolver picks the single applicable rule for a line.
type Resolver struct {
	rules ruleSource
}

// NewResolver builds a resolver over the rule store.
func NewResolver(rules ruleSource) (*Resolver, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule source required")
	}
	return &Resolver{rules: rules}, nil
}

// Resolve returns the winning rule or nil when nothing applies.
func (r *Resolver) Resolve(ctx context.Context, lc LineContext) (*models.CommissionRule, error) {
	candidates, err := r.rules.ListCandidateRules(ctx, lc.Target)
	if err != nil {
		return nil, err
	}
	return SelectRule(candidates, lc), nil
}

// SelectRule ranks candidates by specificity, then priority, then creation
// order, and returns the first one that matches lc.
func SelectRule(candidates []models.CommissionRule, lc LineContext) *models.CommissionRule {
	matching := make([]models.CommissionRule, 0, len(candidates))
	for _, rule := range candidates {
		if ruleMatches(rule, lc) {
			matching = append(matching, rule)
		}
	}
	if len(matching) == 0 {
		return nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		a, b := matching[i], matching[j]
		if sa, sb := a.Reference.Specificity(), b.Reference.Specificity(); sa != sb {
			return sa > sb
		}
		if a.Rate.Priority != b.Rate.Priority {
			return a.Rate.Priority > b.Rate.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	winner := matching[0]
	return &winner
}

func ruleMatches(rule models.CommissionRule, lc LineContext) bool {
	rate := rule.Rate
	if rate == nil || !rate.IsEnabled || rate.Target != lc.Target {
		return false
	}
	if rate.CurrencyCode != nil && *rate.CurrencyCode != lc.Currency {
		return false
	}

	switch rule.Reference {
	case enums.CommissionReferenceGlobal:
		return true
	case enums.CommissionReferenceSeller:
		return sameID(rule.ReferenceID, &lc.SellerID)
	case enums.CommissionReferenceProductCategory:
		return sameID(rule.ReferenceID, lc.ProductCategoryID)
	case enums.CommissionReferenceProductType:
		return sameID(rule.ReferenceID, lc.ProductTypeID)
	default:
		return false
	}
}

func sameID(ref, want *uuid.UUID) bool {
	if ref == nil || want == nil || *want == uuid.Nil {
		return false
	}
	return *ref == *want
}

package commissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service computes and stores order commissions and manages rules.
type Service interface {
	ComputeOrderCommissions(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error)
	CreateRule(ctx context.Context, input CreateRuleInput) (*models.CommissionRule, error)
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the commission service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commissions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// ComputeOrderCommissions recomputes the commission of every item and
// shipping line of the order in one transaction. Lines whose rule changed are
// replaced and lines with no applicable rule are cleared.
func (s *service) ComputeOrderCommissions(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var computed []models.CommissionLine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		items, err := repo.ListItemLines(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		shipping, err := repo.ListShippingLines(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping lines")
		}

		resolver, err := NewResolver(&cachedRules{source: repo})
		if err != nil {
			return err
		}

		computed = make([]models.CommissionLine, 0, len(items)+len(shipping))
		for _, item := range items {
			lc := LineContext{
				Target:            enums.CommissionTargetItem,
				Currency:          order.CurrencyCode,
				SellerID:          order.SellerID,
				ProductTypeID:     item.ProductTypeID,
				ProductCategoryID: item.ProductCategoryID,
			}
			line, err := s.applyLine(ctx, repo, resolver, order, item.ID, lc, LineAmounts{Subtotal: item.Subtotal, TaxTotal: item.TaxTotal})
			if err != nil {
				return err
			}
			if line != nil {
				computed = append(computed, *line)
			}
		}
		for _, ship := range shipping {
			lc := LineContext{
				Target:   enums.CommissionTargetShipping,
				Currency: order.CurrencyCode,
				SellerID: order.SellerID,
			}
			line, err := s.applyLine(ctx, repo, resolver, order, ship.ID, lc, LineAmounts{Subtotal: ship.Subtotal, TaxTotal: ship.TaxTotal})
			if err != nil {
				return err
			}
			if line != nil {
				computed = append(computed, *line)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "commission_lines", len(computed)), "order commissions computed")
	return computed, nil
}

func (s *service) applyLine(ctx context.Context, repo Repository, resolver *Resolver, order *models.Order, lineID uuid.UUID, lc LineContext, amounts LineAmounts) (*models.CommissionLine, error) {
	rule, err := resolver.Resolve(ctx, lc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rules")
	}
	if rule == nil {
		if err := repo.DeleteLinesExcept(ctx, lineID, nil); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear commission lines")
		}
		return nil, nil
	}

	value, err := Calculate(rule.Rate, order.CurrencyCode, amounts)
	if err != nil {
		return nil, err
	}

	line := &models.CommissionLine{
		OrderID:      order.ID,
		ItemLineID:   lineID,
		RuleID:       rule.ID,
		Target:       lc.Target,
		CurrencyCode: order.CurrencyCode,
		Value:        value,
	}
	if err := repo.UpsertLine(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store commission line")
	}
	if err := repo.DeleteLinesExcept(ctx, lineID, &rule.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear stale commission lines")
	}
	return line, nil
}

// cachedRules loads the candidates for each target once per computation.
type cachedRules struct {
	source ruleSource
	byType map[enums.CommissionTarget][]models.CommissionRule
}

func (c *cachedRules) ListCandidateRules(ctx context.Context, target enums.CommissionTarget) ([]models.CommissionRule, error) {
	if rules, ok := c.byType[target]; ok {
		return rules, nil
	}
	rules, err := c.source.ListCandidateRules(ctx, target)
	if err != nil {
		return nil, err
	}
	if c.byType == nil {
		c.byType = make(map[enums.CommissionTarget][]models.CommissionRule)
	}
	c.byType[target] = rules
	return rules, nil
}

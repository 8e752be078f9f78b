package commissions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// Repository persists commission rules and the lines computed from them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListCandidateRules(ctx context.Context, target enums.CommissionTarget) ([]models.CommissionRule, error)
	CreateRule(ctx context.Context, rule *models.CommissionRule) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListItemLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	ListShippingLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderShippingLine, error)
	UpsertLine(ctx context.Context, line *models.CommissionLine) error
	DeleteLinesExcept(ctx context.Context, itemLineID uuid.UUID, keepRuleID *uuid.UUID) error
	ListLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a commissions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListCandidateRules(ctx context.Context, target enums.CommissionTarget) ([]models.CommissionRule, error) {
	var rules []models.CommissionRule
	err := r.db.WithContext(ctx).
		Joins("JOIN commission_rates ON commission_rates.id = commission_rules.rate_id AND commission_rates.deleted_at IS NULL").
		Where("commission_rates.is_enabled = ? AND commission_rates.target = ?", true, target).
		Preload("Rate.Prices").
		Order("commission_rules.created_at ASC").
		Order("commission_rules.id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) CreateRule(ctx context.Context, rule *models.CommissionRule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rate := rule.Rate
		prices := rate.Prices
		rate.Prices = nil
		if err := tx.Create(rate).Error; err != nil {
			return err
		}
		for i := range prices {
			prices[i].RateID = rate.ID
		}
		if len(prices) > 0 {
			if err := tx.Create(&prices).Error; err != nil {
				return err
			}
		}
		rate.Prices = prices

		rule.RateID = rate.ID
		return tx.Omit(clause.Associations).Create(rule).Error
	})
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListItemLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	var lines []models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) ListShippingLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderShippingLine, error) {
	var lines []models.OrderShippingLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

// UpsertLine writes the active line for (item_line_id, rule_id), replacing
// the value of an existing one, and reloads it so the caller sees the stored row.
func (r *repository) UpsertLine(ctx context.Context, line *models.CommissionLine) error {
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "item_line_id"}, {Name: "rule_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "deleted_at IS NULL"}}},
		DoUpdates:   clause.AssignmentColumns([]string{"order_id", "target", "currency_code", "value", "updated_at"}),
	}).Create(line).Error
	if err != nil {
		return err
	}
	var stored models.CommissionLine
	if err := db.Where("item_line_id = ? AND rule_id = ?", line.ItemLineID, line.RuleID).First(&stored).Error; err != nil {
		return err
	}
	*line = stored
	return nil
}

// DeleteLinesExcept soft deletes the active lines of an order line that were
// produced by any rule other than keepRuleID. A nil keepRuleID clears them all.
func (r *repository) DeleteLinesExcept(ctx context.Context, itemLineID uuid.UUID, keepRuleID *uuid.UUID) error {
	query := r.db.WithContext(ctx).Where("item_line_id = ?", itemLineID)
	if keepRuleID != nil {
		query = query.Where("rule_id <> ?", *keepRuleID)
	}
	return query.Delete(&models.CommissionLine{}).Error
}

func (r *repository) ListLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error) {
	var lines []models.CommissionLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// CommissionRate is a configured fee definition owned by exactly one rule.
type CommissionRate struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Type           enums.CommissionRateType `gorm:"column:type;not null"`
	Target         enums.CommissionTarget   `gorm:"column:target;not null"`
	Value          decimal.Decimal          `gorm:"column:value;type:numeric(20,6);not null"`
	MinAmount      *decimal.Decimal         `gorm:"column:min_amount;type:numeric(20,6)"`
	MaxAmount      *decimal.Decimal         `gorm:"column:max_amount;type:numeric(20,6)"`
	IsTaxInclusive bool                     `gorm:"column:is_tax_inclusive;not null;default:false"`
	IsEnabled      bool                     `gorm:"column:is_enabled;not null"`
	Priority       int                      `gorm:"column:priority;not null;default:0"`
	CurrencyCode   *enums.Currency          `gorm:"column:currency_code"`
	Prices         []CommissionRatePrice    `gorm:"foreignKey:RateID"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      gorm.DeletedAt           `gorm:"column:deleted_at;index"`
}

func (r *CommissionRate) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// PriceFor returns the flat amount configured for currency, if any.
func (r *CommissionRate) PriceFor(currency enums.Currency) (decimal.Decimal, bool) {
	for _, price := range r.Prices {
		if price.CurrencyCode == currency {
			return price.Amount, true
		}
	}
	return decimal.Zero, false
}

// CommissionRatePrice is a per-currency flat amount for a flat rate.
type CommissionRatePrice struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RateID       uuid.UUID       `gorm:"column:rate_id;type:uuid;not null"`
	CurrencyCode enums.Currency  `gorm:"column:currency_code;not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,6);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (p *CommissionRatePrice) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// CommissionRule scopes a rate to the whole marketplace, a seller, a product
// category or a product type.
type CommissionRule struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Name        string                    `gorm:"column:name;not null"`
	Reference   enums.CommissionReference `gorm:"column:reference;not null"`
	ReferenceID *uuid.UUID                `gorm:"column:reference_id;type:uuid"`
	RateID      uuid.UUID                 `gorm:"column:rate_id;type:uuid;not null"`
	Rate        *CommissionRate           `gorm:"foreignKey:RateID"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   gorm.DeletedAt            `gorm:"column:deleted_at;index"`
}

func (r *CommissionRule) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// CommissionLine is the commission charged on one item or shipping line.
type CommissionLine struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID              `gorm:"column:order_id;type:uuid;not null"`
	ItemLineID   uuid.UUID              `gorm:"column:item_line_id;type:uuid;not null"`
	RuleID       uuid.UUID              `gorm:"column:rule_id;type:uuid;not null"`
	Target       enums.CommissionTarget `gorm:"column:target;not null"`
	CurrencyCode enums.Currency         `gorm:"column:currency_code;not null"`
	Value        decimal.Decimal        `gorm:"column:value;type:numeric(20,6);not null"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt         `gorm:"column:deleted_at;index"`
}

func (l *CommissionLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

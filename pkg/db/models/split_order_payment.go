package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// SplitOrderPayment tracks the money captured and refunded for one order.
// Both totals only ever grow.
type SplitOrderPayment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	CurrencyCode   enums.Currency      `gorm:"column:currency_code;not null"`
	CapturedAmount decimal.Decimal     `gorm:"column:captured_amount;type:numeric(20,6);not null"`
	RefundedAmount decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(20,6);not null"`
	Status         enums.PaymentStatus `gorm:"column:status;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

func (p *SplitOrderPayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

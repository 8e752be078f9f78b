package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// AccountTransaction is a signed entry against a payout account. Payouts are
// negative, reversals positive; the account balance is their sum.
type AccountTransaction struct {
	ID           uuid.UUID                         `gorm:"column:id;type:uuid;primaryKey"`
	AccountID    uuid.UUID                         `gorm:"column:account_id;type:uuid;not null"`
	Amount       decimal.Decimal                   `gorm:"column:amount;type:numeric(20,6);not null"`
	CurrencyCode enums.Currency                    `gorm:"column:currency_code;not null"`
	Reference    enums.AccountTransactionReference `gorm:"column:reference;not null"`
	ReferenceID  uuid.UUID                         `gorm:"column:reference_id;type:uuid;not null"`
	CreatedAt    time.Time                         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                         `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt                    `gorm:"column:deleted_at;index"`
}

func (t *AccountTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

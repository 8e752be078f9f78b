package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/types"
)

// PayoutAccount is a seller's account at the payout provider.
type PayoutAccount struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID                 `gorm:"column:seller_id;type:uuid;not null;uniqueIndex"`
	Provider      enums.PayoutProvider      `gorm:"column:provider;not null"`
	Status        enums.PayoutAccountStatus `gorm:"column:status;not null"`
	ReferenceID   string                    `gorm:"column:reference_id;not null"`
	Data          types.ProviderData        `gorm:"column:data;type:jsonb"`
	OnboardingURL *string                   `gorm:"column:onboarding_url"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt     gorm.DeletedAt            `gorm:"column:deleted_at;index"`
}

func (a *PayoutAccount) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Payout is the amount owed to a seller for one order. Immutable once created.
type Payout struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	AccountID    uuid.UUID          `gorm:"column:account_id;type:uuid;not null"`
	OrderID      uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	Amount       decimal.Decimal    `gorm:"column:amount;type:numeric(20,6);not null"`
	CurrencyCode enums.Currency     `gorm:"column:currency_code;not null"`
	Data         types.ProviderData `gorm:"column:data;type:jsonb"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt     `gorm:"column:deleted_at;index"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PayoutReversal claws back a payout whose transfer failed.
type PayoutReversal struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PayoutID     uuid.UUID       `gorm:"column:payout_id;type:uuid;not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,6);not null"`
	CurrencyCode enums.Currency  `gorm:"column:currency_code;not null"`
	Reason       string          `gorm:"column:reason"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (r *PayoutReversal) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// Transfer is one provider-side attempt to move a payout. Terminal rows are
// never mutated; a retry creates a new Transfer.
type Transfer struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	PayoutID      *uuid.UUID           `gorm:"column:payout_id;type:uuid"`
	OrderID       uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	AccountID     uuid.UUID            `gorm:"column:account_id;type:uuid;not null"`
	Provider      enums.PayoutProvider `gorm:"column:provider;not null"`
	ReferenceID   *string              `gorm:"column:reference_id"`
	Status        enums.TransferStatus `gorm:"column:status;not null"`
	Amount        decimal.Decimal      `gorm:"column:amount;type:numeric(20,6);not null"`
	CurrencyCode  enums.Currency       `gorm:"column:currency_code;not null"`
	Data          types.ProviderData   `gorm:"column:data;type:jsonb"`
	FailureReason *string              `gorm:"column:failure_reason"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt     gorm.DeletedAt       `gorm:"column:deleted_at;index"`
}

func (t *Transfer) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// OrderPayoutLink marks an order as settled by a payout. At most one active
// link exists per order.
type OrderPayoutLink struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID      `gorm:"column:order_id;type:uuid;not null"`
	PayoutID  uuid.UUID      `gorm:"column:payout_id;type:uuid;not null"`
	SellerID  uuid.UUID      `gorm:"column:seller_id;type:uuid;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (l *OrderPayoutLink) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// PayoutBlock parks an order that cannot be settled until something changes.
type PayoutBlock struct {
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;primaryKey"`
	Reason    enums.PayoutBlockReason `gorm:"column:reason;not null"`
	Message   string                  `gorm:"column:message"`
	Attempts  int                     `gorm:"column:attempts;not null;default:0"`
	BlockedAt time.Time               `gorm:"column:blocked_at;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

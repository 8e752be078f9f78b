package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// Order is the read model of a seller order owned by the order service.
type Order struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SellerID     uuid.UUID      `gorm:"column:seller_id;type:uuid;not null"`
	CurrencyCode enums.Currency `gorm:"column:currency_code;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// OrderLineItem is a product line on an order.
type OrderLineItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductTypeID     *uuid.UUID      `gorm:"column:product_type_id;type:uuid"`
	ProductCategoryID *uuid.UUID      `gorm:"column:product_category_id;type:uuid"`
	Subtotal          decimal.Decimal `gorm:"column:subtotal;type:numeric(20,6);not null"`
	TaxTotal          decimal.Decimal `gorm:"column:tax_total;type:numeric(20,6);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

// OrderShippingLine is a shipping charge on an order.
type OrderShippingLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(20,6);not null"`
	TaxTotal  decimal.Decimal `gorm:"column:tax_total;type:numeric(20,6);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

func (l *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

func (l *OrderShippingLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

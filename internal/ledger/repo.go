package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
)

// Repository manages persistence for split payments and account transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPayment(ctx context.Context, orderID uuid.UUID) (*models.SplitOrderPayment, error)
	FindPaymentForUpdate(ctx context.Context, orderID uuid.UUID) (*models.SplitOrderPayment, error)
	CreatePayment(ctx context.Context, payment *models.SplitOrderPayment) error
	UpdatePaymentTotals(ctx context.Context, payment *models.SplitOrderPayment) error
	OrderTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
	ListCommissionLines(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error)
	CreateAccountTransaction(ctx context.Context, txn *models.AccountTransaction) error
	DeleteAccountTransaction(ctx context.Context, id uuid.UUID) error
	ListAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]models.AccountTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPayment(ctx context.Context, orderID uuid.UUID) (*models.SplitOrderPayment, error) {
	var payment models.SplitOrderPayment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPaymentForUpdate(ctx context.Context, orderID uuid.UUID) (*models.SplitOrderPayment, error) {
	var payment models.SplitOrderPayment
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.SplitOrderPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) UpdatePaymentTotals(ctx context.Context, payment *models.SplitOrderPayment) error {
	return r.db.WithContext(ctx).
		Model(&models.SplitOrderPayment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"captured_amount": payment.CapturedAmount,
			"refunded_amount": payment.RefundedAmount,
			"status":          payment.Status,
		}).Error
}

// OrderTotal sums item and shipping lines including tax.
func (r *repository) OrderTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	var items []models.OrderLineItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return decimal.Zero, err
	}
	var shipping []models.OrderShippingLine
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&shipping).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal).Add(item.TaxTotal)
	}
	for _, line := range shipping {
		total = total.Add(line.Subtotal).Add(line.TaxTotal)
	}
	return total, nil
}

func (r *repository) ListCommissionLines(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error) {
	var lines []models.CommissionLine
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&lines).Error
	return lines, err
}

func (r *repository) CreateAccountTransaction(ctx context.Context, txn *models.AccountTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) DeleteAccountTransaction(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.AccountTransaction{}).Error
}

func (r *repository) ListAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]models.AccountTransaction, error) {
	var txns []models.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&txns).Error
	return txns, err
}

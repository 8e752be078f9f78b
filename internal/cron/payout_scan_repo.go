package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/pagination"
)

// EligibleOrder is an order with settled funds and no active payout link.
type EligibleOrder struct {
	ID        uuid.UUID `gorm:"column:id"`
	SellerID  uuid.UUID `gorm:"column:seller_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

var payablePaymentStatuses = []enums.PaymentStatus{
	enums.PaymentStatusCaptured,
	enums.PaymentStatusPartiallyRefunded,
}

// PayoutScanRepository reads payout candidates with keyset pagination.
type PayoutScanRepository struct {
	db *gorm.DB
}

// NewPayoutScanRepository binds the scan queries to a connection.
func NewPayoutScanRepository(db *gorm.DB) *PayoutScanRepository {
	return &PayoutScanRepository{db: db}
}

// ListEligibleOrders returns up to params.Limit orders ordered by (created_at, id)
// after params.After, plus the cursor of the next page when more rows exist.
func (r *PayoutScanRepository) ListEligibleOrders(ctx context.Context, params pagination.Page) ([]EligibleOrder, string, error) {
	limit := pagination.ClampLimit(params.Limit)
	cursor, err := pagination.ParseToken(params.After)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Table("orders AS o").
		Select("o.id, o.seller_id, o.created_at").
		Joins("JOIN split_order_payments AS p ON p.order_id = o.id AND p.deleted_at IS NULL").
		Where("o.deleted_at IS NULL").
		Where("p.status IN ?", payablePaymentStatuses).
		Where("NOT EXISTS (SELECT 1 FROM order_payout_links AS l WHERE l.order_id = o.id AND l.deleted_at IS NULL)").
		Where("NOT EXISTS (SELECT 1 FROM payout_blocks AS b WHERE b.order_id = o.id AND b.reason IN ?)", enums.ScanSkippedBlockReasons())
	if cursor != nil {
		query = query.Where("(o.created_at > ? OR (o.created_at = ? AND o.id > ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []EligibleOrder
	if err := query.
		Order("o.created_at ASC").
		Order("o.id ASC").
		Limit(limit + 1).
		Scan(&rows).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.Keyset{CreatedAt: last.CreatedAt, ID: last.ID}.Token()
	}
	return rows, next, nil
}

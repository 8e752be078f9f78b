package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/pagination"
)

func seedPaidOrder(t *testing.T, conn *gorm.DB, createdAt time.Time, status enums.PaymentStatus) uuid.UUID {
	t.Helper()
	order := models.Order{SellerID: uuid.New(), CurrencyCode: enums.CurrencyUSD, CreatedAt: createdAt}
	require.NoError(t, conn.Create(&order).Error)
	require.NoError(t, conn.Create(&models.SplitOrderPayment{
		OrderID:        order.ID,
		CurrencyCode:   enums.CurrencyUSD,
		CapturedAmount: decimal.NewFromInt(100),
		RefundedAmount: decimal.Zero,
		Status:         status,
	}).Error)
	return order.ID
}

func TestListEligibleOrdersAntiJoin(t *testing.T) {
	conn := dbtest.Open(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	eligible := seedPaidOrder(t, conn, base, enums.PaymentStatusCaptured)
	refunded := seedPaidOrder(t, conn, base.Add(time.Minute), enums.PaymentStatusPartiallyRefunded)
	seedPaidOrder(t, conn, base.Add(2*time.Minute), enums.PaymentStatusPartiallyCaptured)

	linked := seedPaidOrder(t, conn, base.Add(3*time.Minute), enums.PaymentStatusCaptured)
	require.NoError(t, conn.Create(&models.OrderPayoutLink{OrderID: linked, PayoutID: uuid.New(), SellerID: uuid.New()}).Error)

	unlinked := seedPaidOrder(t, conn, base.Add(4*time.Minute), enums.PaymentStatusCaptured)
	link := models.OrderPayoutLink{OrderID: unlinked, PayoutID: uuid.New(), SellerID: uuid.New()}
	require.NoError(t, conn.Create(&link).Error)
	require.NoError(t, conn.Delete(&link).Error)

	accountBlocked := seedPaidOrder(t, conn, base.Add(5*time.Minute), enums.PaymentStatusCaptured)
	require.NoError(t, conn.Create(&models.PayoutBlock{OrderID: accountBlocked, Reason: enums.PayoutBlockAccountNotActive, BlockedAt: base}).Error)

	providerBlocked := seedPaidOrder(t, conn, base.Add(6*time.Minute), enums.PaymentStatusCaptured)
	require.NoError(t, conn.Create(&models.PayoutBlock{OrderID: providerBlocked, Reason: enums.PayoutBlockProviderFailed, BlockedAt: base}).Error)

	repo := NewPayoutScanRepository(conn)
	rows, next, err := repo.ListEligibleOrders(context.Background(), pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, next)

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []uuid.UUID{eligible, refunded, unlinked, providerBlocked}, ids)
}

func TestListEligibleOrdersSkipsReviewBlocks(t *testing.T) {
	conn := dbtest.Open(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	blocked := func(offset int, reason enums.PayoutBlockReason) uuid.UUID {
		orderID := seedPaidOrder(t, conn, base.Add(time.Duration(offset)*time.Minute), enums.PaymentStatusCaptured)
		require.NoError(t, conn.Create(&models.PayoutBlock{OrderID: orderID, Reason: reason, BlockedAt: base}).Error)
		return orderID
	}
	blocked(0, enums.PayoutBlockInconsistentLedger)
	blocked(1, enums.PayoutBlockUnsupportedCurrency)
	blocked(2, enums.PayoutBlockTransferUnrecorded)
	blocked(3, enums.PayoutBlockProviderRejected)
	declined := blocked(4, enums.PayoutBlockProviderDeclined)
	failed := blocked(5, enums.PayoutBlockProviderFailed)
	reversed := blocked(6, enums.PayoutBlockTransferFailed)

	rows, _, err := NewPayoutScanRepository(conn).ListEligibleOrders(context.Background(), pagination.Page{Limit: 10})
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []uuid.UUID{declined, failed, reversed}, ids)
}

func TestListEligibleOrdersKeysetPagination(t *testing.T) {
	conn := dbtest.Open(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		want = append(want, seedPaidOrder(t, conn, base.Add(time.Duration(i)*time.Second), enums.PaymentStatusCaptured))
	}

	repo := NewPayoutScanRepository(conn)
	var got []uuid.UUID
	var sizes []int
	cursor := ""
	for {
		rows, next, err := repo.ListEligibleOrders(context.Background(), pagination.Page{Limit: 2, After: cursor})
		require.NoError(t, err)
		sizes = append(sizes, len(rows))
		for _, row := range rows {
			got = append(got, row.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, want, got)
}

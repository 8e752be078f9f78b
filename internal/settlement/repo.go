package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// Repository persists payout accounts, payouts, links, transfers and blocks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

	FindAccountBySeller(ctx context.Context, sellerID uuid.UUID) (*models.PayoutAccount, error)
	LockAccountByReference(ctx context.Context, provider enums.PayoutProvider, referenceID string) (*models.PayoutAccount, error)
	LockAccount(ctx context.Context, accountID uuid.UUID) (*models.PayoutAccount, error)
	CreateAccount(ctx context.Context, account *models.PayoutAccount) error
	UpdateAccountState(ctx context.Context, account *models.PayoutAccount) error
	UpdateOnboardingURL(ctx context.Context, accountID uuid.UUID, url string) error

	FindPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	CreatePayout(ctx context.Context, payout *models.Payout) error
	DeletePayout(ctx context.Context, payoutID uuid.UUID) error

	FindActiveLink(ctx context.Context, orderID uuid.UUID) (*models.OrderPayoutLink, error)
	FindLinkByPayout(ctx context.Context, payoutID uuid.UUID) (*models.OrderPayoutLink, error)
	CreateLink(ctx context.Context, link *models.OrderPayoutLink) error
	DeleteLink(ctx context.Context, linkID uuid.UUID) error

	CreateTransfer(ctx context.Context, transfer *models.Transfer) error
	UpdateTransfer(ctx context.Context, transfer *models.Transfer) error
	RecordTransferReference(ctx context.Context, transfer *models.Transfer) error
	LockTransferByReference(ctx context.Context, provider enums.PayoutProvider, referenceID string) (*models.Transfer, error)
	LockTransferByPayout(ctx context.Context, payoutID uuid.UUID) (*models.Transfer, error)
	LockOpenTransferForOrder(ctx context.Context, provider enums.PayoutProvider, orderID uuid.UUID) (*models.Transfer, error)
	LatestTransferForOrder(ctx context.Context, orderID uuid.UUID) (*models.Transfer, error)

	CreateReversal(ctx context.Context, reversal *models.PayoutReversal) error
	CountReversals(ctx context.Context, orderID uuid.UUID) (int64, error)

	FindBlock(ctx context.Context, orderID uuid.UUID) (*models.PayoutBlock, error)
	UpsertBlock(ctx context.Context, block *models.PayoutBlock) error
	DeleteBlock(ctx context.Context, orderID uuid.UUID) error
	ClearAccountBlocks(ctx context.Context, sellerID uuid.UUID, reasons []enums.PayoutBlockReason) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository backed by gorm.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindAccountBySeller(ctx context.Context, sellerID uuid.UUID) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	if err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) LockAccountByReference(ctx context.Context, provider enums.PayoutProvider, referenceID string) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("provider = ? AND reference_id = ?", provider, referenceID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// LockAccount loads the account under a row lock; call it inside a transaction.
func (r *repository) LockAccount(ctx context.Context, accountID uuid.UUID) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", accountID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) CreateAccount(ctx context.Context, account *models.PayoutAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) UpdateAccountState(ctx context.Context, account *models.PayoutAccount) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"status":     account.Status,
			"data":       account.Data,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateOnboardingURL(ctx context.Context, accountID uuid.UUID, url string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"onboarding_url": url,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *repository) FindPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", payoutID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// DeletePayout removes a payout that never settled. Transfers keep their row
// with the payout reference cleared.
func (r *repository) DeletePayout(ctx context.Context, payoutID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("payout_id = ?", payoutID).
		Update("payout_id", nil).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Unscoped().Where("id = ?", payoutID).Delete(&models.Payout{}).Error
}

func (r *repository) FindActiveLink(ctx context.Context, orderID uuid.UUID) (*models.OrderPayoutLink, error) {
	var link models.OrderPayoutLink
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *repository) FindLinkByPayout(ctx context.Context, payoutID uuid.UUID) (*models.OrderPayoutLink, error) {
	var link models.OrderPayoutLink
	if err := r.db.WithContext(ctx).Where("payout_id = ?", payoutID).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *repository) CreateLink(ctx context.Context, link *models.OrderPayoutLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *repository) DeleteLink(ctx context.Context, linkID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", linkID).Delete(&models.OrderPayoutLink{}).Error
}

func (r *repository) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repository) UpdateTransfer(ctx context.Context, transfer *models.Transfer) error {
	return r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ?", transfer.ID).
		Updates(map[string]any{
			"status":         transfer.Status,
			"reference_id":   transfer.ReferenceID,
			"data":           transfer.Data,
			"failure_reason": transfer.FailureReason,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// RecordTransferReference stores what the provider returned without touching
// the status, which a callback may already have settled.
func (r *repository) RecordTransferReference(ctx context.Context, transfer *models.Transfer) error {
	return r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ?", transfer.ID).
		Updates(map[string]any{
			"reference_id": transfer.ReferenceID,
			"data":         transfer.Data,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *repository) LockTransferByReference(ctx context.Context, provider enums.PayoutProvider, referenceID string) (*models.Transfer, error) {
	var transfer models.Transfer
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("provider = ? AND reference_id = ?", provider, referenceID).
		Order("created_at DESC").
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) LockTransferByPayout(ctx context.Context, payoutID uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("payout_id = ?", payoutID).
		Order("created_at DESC").
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// LockOpenTransferForOrder finds the in-flight transfer whose provider
// reference has not been written back yet.
func (r *repository) LockOpenTransferForOrder(ctx context.Context, provider enums.PayoutProvider, orderID uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("provider = ? AND order_id = ? AND reference_id IS NULL AND status = ?", provider, orderID, enums.TransferStatusCreated).
		Order("created_at DESC").
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) LatestTransferForOrder(ctx context.Context, orderID uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) CreateReversal(ctx context.Context, reversal *models.PayoutReversal) error {
	return r.db.WithContext(ctx).Create(reversal).Error
}

// CountReversals counts confirmed transfer failures for the order's payouts.
func (r *repository) CountReversals(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PayoutReversal{}).
		Joins("JOIN payouts ON payouts.id = payout_reversals.payout_id").
		Where("payouts.order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) FindBlock(ctx context.Context, orderID uuid.UUID) (*models.PayoutBlock, error) {
	var block models.PayoutBlock
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *repository) UpsertBlock(ctx context.Context, block *models.PayoutBlock) error {
	if block.BlockedAt.IsZero() {
		block.BlockedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "message", "attempts", "blocked_at", "updated_at"}),
		}).
		Create(block).Error
}

func (r *repository) DeleteBlock(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.PayoutBlock{}).Error
}

// ClearAccountBlocks drops blocks with the given reasons on every order of the
// seller so the next scan picks them up again.
func (r *repository) ClearAccountBlocks(ctx context.Context, sellerID uuid.UUID, reasons []enums.PayoutBlockReason) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("reason IN ?", reasons).
		Where("order_id IN (?)", r.db.WithContext(ctx).Model(&models.Order{}).Select("id").Where("seller_id = ?", sellerID)).
		Delete(&models.PayoutBlock{})
	return result.RowsAffected, result.Error
}

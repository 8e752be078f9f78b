package payoutwebhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/internal/ledger"
	"github.com/angelmondragon/packfinderz-payouts/internal/settlement"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/idempotency"
)

type scriptedProvider struct {
	action *gateway.WebhookAction
	err    error
}

func (p *scriptedProvider) Name() enums.PayoutProvider { return enums.PayoutProviderManual }

func (p *scriptedProvider) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.ProviderRecord, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) CreatePayoutAccount(ctx context.Context, seller gateway.SellerContext) (*gateway.AccountRecord, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) InitializeOnboarding(ctx context.Context, account *models.PayoutAccount) (string, error) {
	return "", errors.New("not used")
}

func (p *scriptedProvider) GetWebhookActionAndData(ctx context.Context, payload gateway.WebhookPayload) (*gateway.WebhookAction, error) {
	if p.err != nil {
		return nil, p.err
	}
	action := *p.action
	return &action, nil
}

type failingTransferRepo struct {
	settlement.Repository
}

func (r failingTransferRepo) WithTx(tx *gorm.DB) settlement.Repository {
	return failingTransferRepo{Repository: r.Repository.WithTx(tx)}
}

func (r failingTransferRepo) UpdateTransfer(ctx context.Context, transfer *models.Transfer) error {
	return errors.New("connection reset")
}

type fixture struct {
	conn     *gorm.DB
	svc      *Service
	provider *scriptedProvider
	store    *memoryIdempotencyStore
	ledger   ledger.Service

	sellerID uuid.UUID
	orderID  uuid.UUID
	account  models.PayoutAccount
	payout   models.Payout
	link     models.OrderPayoutLink
	transfer models.Transfer
}

func newFixture(t *testing.T, wrap func(settlement.Repository) settlement.Repository) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.FromGorm(conn)
	ctx := context.Background()

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), tx, nil)
	require.NoError(t, err)

	provider := &scriptedProvider{}
	registry, err := gateway.NewRegistry(enums.PayoutProviderManual, provider)
	require.NoError(t, err)

	store := newMemoryIdempotencyStore()
	guard, err := idempotency.NewGuard(store, time.Hour, "payout-webhook")
	require.NoError(t, err)

	repo := settlement.NewRepository(conn)
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		Providers: registry,
		Repo:      repo,
		Tx:        tx,
		Ledger:    ledgerSvc,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil, "payouts-test"),
		Guard:     guard,
	})
	require.NoError(t, err)

	f := &fixture{conn: conn, svc: svc, provider: provider, store: store, ledger: ledgerSvc, sellerID: uuid.New()}

	order := models.Order{SellerID: f.sellerID, CurrencyCode: enums.CurrencyUSD}
	require.NoError(t, conn.Create(&order).Error)
	f.orderID = order.ID

	f.account = models.PayoutAccount{
		SellerID:    f.sellerID,
		Provider:    enums.PayoutProviderManual,
		Status:      enums.PayoutAccountActive,
		ReferenceID: "manual_acct_1",
	}
	require.NoError(t, conn.Create(&f.account).Error)

	f.payout = models.Payout{AccountID: f.account.ID, OrderID: f.orderID, Amount: decimal.RequireFromString("135.00"), CurrencyCode: enums.CurrencyUSD}
	require.NoError(t, conn.Create(&f.payout).Error)
	_, err = ledgerSvc.AppendAccountTransaction(ctx, conn, ledger.AccountTransactionInput{
		AccountID:   f.account.ID,
		Amount:      f.payout.Amount.Neg(),
		Currency:    enums.CurrencyUSD,
		Reference:   enums.AccountTransactionPayout,
		ReferenceID: f.payout.ID,
	})
	require.NoError(t, err)

	f.link = models.OrderPayoutLink{OrderID: f.orderID, PayoutID: f.payout.ID, SellerID: f.sellerID}
	require.NoError(t, conn.Create(&f.link).Error)

	ref := "tr_1"
	f.transfer = models.Transfer{
		PayoutID:     &f.payout.ID,
		OrderID:      f.orderID,
		AccountID:    f.account.ID,
		Provider:     enums.PayoutProviderManual,
		ReferenceID:  &ref,
		Status:       enums.TransferStatusCreated,
		Amount:       f.payout.Amount,
		CurrencyCode: enums.CurrencyUSD,
	}
	require.NoError(t, conn.Create(&f.transfer).Error)
	return f
}

func (f *fixture) transferAction(action gateway.ActionType) *gateway.WebhookAction {
	return &gateway.WebhookAction{
		Action:            action,
		Provider:          enums.PayoutProviderManual,
		EventID:           uuid.NewString(),
		TransferReference: "tr_1",
		Amount:            f.payout.Amount,
		Currency:          enums.CurrencyUSD,
	}
}

func (f *fixture) handle(t *testing.T, action *gateway.WebhookAction) *Result {
	t.Helper()
	f.provider.action = action
	result, err := f.svc.Handle(context.Background(), enums.PayoutProviderManual, gateway.WebhookPayload{RawData: []byte(`{}`)})
	require.NoError(t, err)
	return result
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (f *fixture) reloadTransfer(t *testing.T) models.Transfer {
	t.Helper()
	var transfer models.Transfer
	require.NoError(t, f.conn.Where("id = ?", f.transfer.ID).First(&transfer).Error)
	return transfer
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	balances, err := f.ledger.AccountBalance(context.Background(), f.account.ID)
	require.NoError(t, err)
	return balances[enums.CurrencyUSD]
}

func TestTransferSucceededIsAppliedOnce(t *testing.T) {
	f := newFixture(t, nil)

	first := f.handle(t, f.transferAction(gateway.ActionTransferSucceeded))
	assert.Equal(t, OutcomeProcessed, first.Outcome)
	assert.Equal(t, "manual:tr_1:transfer_succeeded", first.DedupKey)

	second := f.handle(t, f.transferAction(gateway.ActionTransferSucceeded))
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	assert.Equal(t, enums.TransferStatusSucceeded, f.reloadTransfer(t).Status)
	assert.Equal(t, int64(1), f.events(t, enums.EventPayoutSucceeded))
	assert.Equal(t, int64(1), f.events(t, enums.EventTransferSucceeded))
}

func TestTerminalTransferIsNotReappliedAfterGuardExpiry(t *testing.T) {
	f := newFixture(t, nil)
	f.handle(t, f.transferAction(gateway.ActionTransferSucceeded))

	for key := range f.store.values {
		delete(f.store.values, key)
	}
	replay := f.handle(t, f.transferAction(gateway.ActionTransferSucceeded))
	assert.Equal(t, OutcomeDuplicate, replay.Outcome)
	assert.Equal(t, int64(1), f.events(t, enums.EventPayoutSucceeded))

	late := f.handle(t, f.transferAction(gateway.ActionTransferFailed))
	assert.Equal(t, OutcomeProcessed, late.Outcome)
	assert.Equal(t, enums.TransferStatusSucceeded, f.reloadTransfer(t).Status)
	assert.Equal(t, int64(0), f.events(t, enums.EventPayoutFailed))

	block := f.block(t, f.orderID)
	require.NotNil(t, block, "contradicting callback needs review")
	assert.Equal(t, enums.PayoutBlockTransferUnrecorded, block.Reason)
}

func TestSuccessForLocallyFailedTransferNeedsReview(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.conn.Model(&models.Transfer{}).Where("id = ?", f.transfer.ID).Update("status", enums.TransferStatusFailed).Error)

	result := f.handle(t, f.transferAction(gateway.ActionTransferSucceeded))
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, enums.TransferStatusFailed, f.reloadTransfer(t).Status)

	block := f.block(t, f.orderID)
	require.NotNil(t, block)
	assert.Equal(t, enums.PayoutBlockTransferUnrecorded, block.Reason)
	assert.Equal(t, int64(0), f.events(t, enums.EventPayoutSucceeded))
}

func TestTransferFailedReversesPayout(t *testing.T) {
	f := newFixture(t, nil)
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("-135")))

	action := f.transferAction(gateway.ActionTransferFailed)
	action.FailureReason = "account closed"
	result := f.handle(t, action)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	transfer := f.reloadTransfer(t)
	assert.Equal(t, enums.TransferStatusFailed, transfer.Status)
	require.NotNil(t, transfer.FailureReason)
	assert.Equal(t, "account closed", *transfer.FailureReason)

	var reversal models.PayoutReversal
	require.NoError(t, f.conn.Where("payout_id = ?", f.payout.ID).First(&reversal).Error)
	assert.True(t, reversal.Amount.Equal(f.payout.Amount))
	assert.True(t, f.balance(t).IsZero(), "balance restored, got %s", f.balance(t))

	var links int64
	require.NoError(t, f.conn.Model(&models.OrderPayoutLink{}).Where("order_id = ?", f.orderID).Count(&links).Error)
	assert.Equal(t, int64(0), links)

	var block models.PayoutBlock
	require.NoError(t, f.conn.Where("order_id = ?", f.orderID).First(&block).Error)
	assert.Equal(t, enums.PayoutBlockTransferFailed, block.Reason)

	assert.Equal(t, int64(1), f.events(t, enums.EventTransferFailed))
	assert.Equal(t, int64(1), f.events(t, enums.EventPayoutFailed))

	replay := f.handle(t, action)
	assert.Equal(t, OutcomeDuplicate, replay.Outcome)
	var reversals int64
	require.NoError(t, f.conn.Model(&models.PayoutReversal{}).Count(&reversals).Error)
	assert.Equal(t, int64(1), reversals)
}

func TestTransferMatchedByPayoutWhenReferenceMissing(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.conn.Model(&models.Transfer{}).Where("id = ?", f.transfer.ID).Update("reference_id", nil).Error)

	action := f.transferAction(gateway.ActionTransferSucceeded)
	action.TransferReference = "tr_late"
	action.PayoutID = &f.payout.ID
	result := f.handle(t, action)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	transfer := f.reloadTransfer(t)
	require.NotNil(t, transfer.ReferenceID)
	assert.Equal(t, "tr_late", *transfer.ReferenceID)
	assert.Equal(t, enums.TransferStatusSucceeded, transfer.Status)
}

func TestCallbackBeforeReferenceIsRecorded(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.conn.Model(&models.Transfer{}).Where("id = ?", f.transfer.ID).Update("reference_id", nil).Error)

	action := f.transferAction(gateway.ActionTransferSucceeded)
	action.TransferReference = "tr_early"
	action.OrderID = &f.orderID
	result := f.handle(t, action)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Nil(t, f.block(t, f.orderID))

	ref := "tr_early"
	late := f.reloadTransfer(t)
	late.ReferenceID = &ref
	require.NoError(t, settlement.NewRepository(f.conn).RecordTransferReference(context.Background(), &late))

	transfer := f.reloadTransfer(t)
	assert.Equal(t, enums.TransferStatusSucceeded, transfer.Status)
	require.NotNil(t, transfer.ReferenceID)
	assert.Equal(t, "tr_early", *transfer.ReferenceID)
	assert.Equal(t, int64(1), f.events(t, enums.EventPayoutSucceeded))
}

func TestUnknownTransferIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	action := f.transferAction(gateway.ActionTransferSucceeded)
	action.TransferReference = "tr_other"

	result := f.handle(t, action)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Equal(t, enums.TransferStatusCreated, f.reloadTransfer(t).Status)
}

func (f *fixture) block(t *testing.T, orderID uuid.UUID) *models.PayoutBlock {
	t.Helper()
	var block models.PayoutBlock
	err := f.conn.Where("order_id = ?", orderID).First(&block).Error
	if db.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return &block
}

func TestUnrecordedTransferParksOrderForReview(t *testing.T) {
	for _, actionType := range []gateway.ActionType{gateway.ActionTransferSucceeded, gateway.ActionTransferFailed} {
		t.Run(string(actionType), func(t *testing.T) {
			f := newFixture(t, nil)
			action := f.transferAction(actionType)
			action.TransferReference = "tr_unrecorded"
			action.OrderID = &f.orderID

			result := f.handle(t, action)
			assert.Equal(t, OutcomeProcessed, result.Outcome)

			block := f.block(t, f.orderID)
			require.NotNil(t, block)
			assert.Equal(t, enums.PayoutBlockTransferUnrecorded, block.Reason)
			assert.Contains(t, block.Message, "tr_unrecorded")
			assert.Equal(t, enums.TransferStatusCreated, f.reloadTransfer(t).Status)
			assert.True(t, f.balance(t).Equal(decimal.RequireFromString("-135")))
		})
	}
}

func TestUnrecordedTransferForUnknownOrderIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	action := f.transferAction(gateway.ActionTransferSucceeded)
	action.TransferReference = "tr_unrecorded"
	stranger := uuid.New()
	action.OrderID = &stranger

	result := f.handle(t, action)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Nil(t, f.block(t, stranger))
}

func TestSucceededTransferWithoutPayoutNeedsReview(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.conn.Model(&models.Transfer{}).Where("id = ?", f.transfer.ID).Update("payout_id", nil).Error)

	result := f.handle(t, f.transferAction(gateway.ActionTransferSucceeded))
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	block := f.block(t, f.orderID)
	require.NotNil(t, block)
	assert.Equal(t, enums.PayoutBlockTransferUnrecorded, block.Reason)
	assert.True(t, block.Reason.RequiresReview())
	assert.Equal(t, int64(0), f.events(t, enums.EventPayoutSucceeded))
}

func TestConcurrentDeliveriesApplyOnce(t *testing.T) {
	for _, forget := range []bool{false, true} {
		name := "dedup guard"
		if forget {
			name = "expired guard"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.store.forget = forget
			f.provider.action = f.transferAction(gateway.ActionTransferSucceeded)

			const deliveries = 5
			results := make([]*Result, deliveries)
			errs := make([]error, deliveries)
			var wg sync.WaitGroup
			for i := 0; i < deliveries; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = f.svc.Handle(context.Background(), enums.PayoutProviderManual, gateway.WebhookPayload{RawData: []byte(`{}`)})
				}(i)
			}
			wg.Wait()

			processed := 0
			for i := range results {
				require.NoError(t, errs[i])
				switch results[i].Outcome {
				case OutcomeProcessed:
					processed++
				case OutcomeDuplicate:
				default:
					t.Fatalf("unexpected outcome %s", results[i].Outcome)
				}
			}
			assert.Equal(t, 1, processed)
			assert.Equal(t, enums.TransferStatusSucceeded, f.reloadTransfer(t).Status)
			assert.Equal(t, int64(1), f.events(t, enums.EventPayoutSucceeded))
			assert.Equal(t, int64(1), f.events(t, enums.EventTransferSucceeded))
		})
	}
}

func TestAccountActivationClearsAccountBlocks(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.conn.Model(&models.PayoutAccount{}).Where("id = ?", f.account.ID).Update("status", enums.PayoutAccountPending).Error)

	other := models.Order{SellerID: f.sellerID, CurrencyCode: enums.CurrencyUSD}
	require.NoError(t, f.conn.Create(&other).Error)
	now := time.Now().UTC()
	require.NoError(t, f.conn.Create(&models.PayoutBlock{OrderID: f.orderID, Reason: enums.PayoutBlockAccountNotActive, BlockedAt: now}).Error)
	require.NoError(t, f.conn.Create(&models.PayoutBlock{OrderID: other.ID, Reason: enums.PayoutBlockProviderFailed, BlockedAt: now}).Error)

	result := f.handle(t, &gateway.WebhookAction{
		Action:           gateway.ActionAccountUpdated,
		Provider:         enums.PayoutProviderManual,
		EventID:          "evt_1",
		AccountReference: "manual_acct_1",
		AccountStatus:    enums.PayoutAccountActive,
	})
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	var account models.PayoutAccount
	require.NoError(t, f.conn.Where("id = ?", f.account.ID).First(&account).Error)
	assert.Equal(t, enums.PayoutAccountActive, account.Status)

	var reasons []enums.PayoutBlockReason
	require.NoError(t, f.conn.Model(&models.PayoutBlock{}).Pluck("reason", &reasons).Error)
	assert.Equal(t, []enums.PayoutBlockReason{enums.PayoutBlockProviderFailed}, reasons)
	assert.Equal(t, int64(1), f.events(t, enums.EventPayoutAccountWebhookReceived))
}

func TestAccountTransitionNotAllowedIsIgnored(t *testing.T) {
	f := newFixture(t, nil)

	result := f.handle(t, &gateway.WebhookAction{
		Action:           gateway.ActionAccountUpdated,
		Provider:         enums.PayoutProviderManual,
		EventID:          "evt_2",
		AccountReference: "manual_acct_1",
		AccountStatus:    enums.PayoutAccountPending,
	})
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Equal(t, int64(0), f.events(t, enums.EventPayoutAccountWebhookReceived))
}

func TestHandleClassifiesDecodeFailures(t *testing.T) {
	f := newFixture(t, nil)

	f.provider.err = gateway.NewError(gateway.KindSignature, enums.PayoutProviderManual, "bad signature", nil)
	_, err := f.svc.Handle(context.Background(), enums.PayoutProviderManual, gateway.WebhookPayload{})
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	f.provider.err = gateway.NewError(gateway.KindDecode, enums.PayoutProviderManual, "bad json", nil)
	_, err = f.svc.Handle(context.Background(), enums.PayoutProviderManual, gateway.WebhookPayload{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.Handle(context.Background(), enums.PayoutProviderStripe, gateway.WebhookPayload{})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestApplyFailureReleasesDedupKey(t *testing.T) {
	f := newFixture(t, func(repo settlement.Repository) settlement.Repository {
		return failingTransferRepo{Repository: repo}
	})
	f.provider.action = f.transferAction(gateway.ActionTransferSucceeded)

	_, err := f.svc.Handle(context.Background(), enums.PayoutProviderManual, gateway.WebhookPayload{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Empty(t, f.store.values)
	assert.Equal(t, enums.TransferStatusCreated, f.reloadTransfer(t).Status)
	assert.Equal(t, int64(0), f.events(t, enums.EventPayoutSucceeded))
}

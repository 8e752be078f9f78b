package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/internal/ledger"
	"github.com/angelmondragon/packfinderz-payouts/internal/workflow"
	pkgdb "github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

const (
	workflowName = "payout-settlement"

	stepLookupAccount    = "lookup-account"
	stepComputeTotal     = "compute-payout-total"
	stepCreatePayout     = "create-payout"
	stepLinkPayout       = "link-payout"
	stepDispatchTransfer = "dispatch-transfer"

	linkConstraint = "ux_order_payout_links_order"
)

// settlementState is threaded through the steps and snapshotted into the step log.
type settlementState struct {
	OrderID        uuid.UUID            `json:"order_id"`
	SellerID       uuid.UUID            `json:"seller_id,omitempty"`
	AccountID      uuid.UUID            `json:"account_id,omitempty"`
	AccountRef     string               `json:"account_ref,omitempty"`
	Provider       enums.PayoutProvider `json:"provider,omitempty"`
	Currency       enums.Currency       `json:"currency_code,omitempty"`
	Total          decimal.Decimal      `json:"total"`
	PayoutID       uuid.UUID            `json:"payout_id,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	TransactionID  uuid.UUID            `json:"transaction_id,omitempty"`
	LinkID         uuid.UUID            `json:"link_id,omitempty"`
	TransferID     uuid.UUID            `json:"transfer_id,omitempty"`
	TransferRef    string               `json:"transfer_ref,omitempty"`
	AlreadySettled bool                 `json:"already_settled"`
}

func (s *service) steps() []workflow.Step[settlementState] {
	return []workflow.Step[settlementState]{
		{Name: stepLookupAccount, Execute: s.lookupAccount},
		{Name: stepComputeTotal, Execute: s.computeTotal},
		{Name: stepCreatePayout, Execute: s.createPayout, Compensate: s.deletePayout},
		{Name: stepLinkPayout, Execute: s.linkPayout, Compensate: s.unlinkPayout},
		{Name: stepDispatchTransfer, Execute: s.dispatchTransfer},
	}
}

func (s *service) lookupAccount(ctx context.Context, st *settlementState) error {
	order, err := s.repo.FindOrder(ctx, st.OrderID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	st.SellerID = order.SellerID

	if _, err := s.repo.FindActiveLink(ctx, st.OrderID); err == nil {
		st.AlreadySettled = true
		return nil
	} else if !pkgdb.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout link")
	}

	block, err := s.findBlock(ctx, st.OrderID)
	if err != nil {
		return err
	}
	if block != nil && block.Reason.RequiresReview() {
		return ErrHeldForReview
	}

	account, err := s.repo.FindAccountBySeller(ctx, order.SellerID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return blocked(enums.PayoutBlockAccountNotFound, pkgerrors.CodeNotFound, "seller has no payout account")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout account")
	}
	if account.Status != enums.PayoutAccountActive {
		return blocked(enums.PayoutBlockAccountNotActive, pkgerrors.CodeStateConflict, "payout account is "+string(account.Status))
	}
	st.AccountID = account.ID
	st.AccountRef = account.ReferenceID
	st.Provider = account.Provider
	return nil
}

func (s *service) computeTotal(ctx context.Context, st *settlementState) error {
	if st.AlreadySettled {
		return nil
	}
	if _, err := s.commissions.ComputeOrderCommissions(ctx, st.OrderID); err != nil {
		return err
	}
	result, err := s.ledger.ComputePayout(ctx, st.OrderID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return blocked(enums.PayoutBlockNothingToSettle, pkgerrors.CodeStateConflict, "no payment captured for order")
		}
		return err
	}
	if result.Total.IsZero() {
		return blocked(enums.PayoutBlockNothingToSettle, pkgerrors.CodeStateConflict, "payout total is zero")
	}
	st.Total = result.Total
	st.Currency = result.Currency
	return nil
}

func (s *service) createPayout(ctx context.Context, st *settlementState) error {
	if st.AlreadySettled {
		return nil
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.LockAccount(ctx, st.AccountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payout account")
		}
		if account.Status != enums.PayoutAccountActive {
			return blocked(enums.PayoutBlockAccountNotActive, pkgerrors.CodeStateConflict, "payout account is "+string(account.Status))
		}
		if _, err := repo.FindActiveLink(ctx, st.OrderID); err == nil {
			st.AlreadySettled = true
			return nil
		} else if !pkgdb.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout link")
		}

		reversals, err := repo.CountReversals(ctx, st.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payout reversals")
		}

		payout := &models.Payout{
			AccountID:    st.AccountID,
			OrderID:      st.OrderID,
			Amount:       st.Total,
			CurrencyCode: st.Currency,
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		txn, err := s.ledger.AppendAccountTransaction(ctx, tx, ledger.AccountTransactionInput{
			AccountID:   st.AccountID,
			Amount:      st.Total.Neg(),
			Currency:    st.Currency,
			Reference:   enums.AccountTransactionPayout,
			ReferenceID: payout.ID,
		})
		if err != nil {
			return err
		}
		st.PayoutID = payout.ID
		st.TransactionID = txn.ID
		st.IdempotencyKey = payoutIdempotencyKey(st.OrderID, reversals)
		return nil
	})
}

func (s *service) deletePayout(ctx context.Context, st *settlementState) error {
	if st.PayoutID == uuid.Nil {
		return nil
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockAccount(ctx, st.AccountID); err != nil {
			return err
		}
		if st.TransactionID != uuid.Nil {
			if err := s.ledger.DeleteAccountTransaction(ctx, tx, st.TransactionID); err != nil {
				return err
			}
		}
		return repo.DeletePayout(ctx, st.PayoutID)
	})
	if err != nil {
		return err
	}
	st.PayoutID = uuid.Nil
	st.TransactionID = uuid.Nil
	return nil
}

func (s *service) linkPayout(ctx context.Context, st *settlementState) error {
	if st.AlreadySettled {
		return nil
	}
	link := &models.OrderPayoutLink{
		OrderID:  st.OrderID,
		PayoutID: st.PayoutID,
		SellerID: st.SellerID,
	}
	if err := s.repo.CreateLink(ctx, link); err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return ErrAlreadySettled
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payout")
	}
	st.LinkID = link.ID
	return nil
}

func (s *service) unlinkPayout(ctx context.Context, st *settlementState) error {
	if st.LinkID == uuid.Nil {
		return nil
	}
	if err := s.repo.DeleteLink(ctx, st.LinkID); err != nil {
		return err
	}
	st.LinkID = uuid.Nil
	return nil
}

func (s *service) dispatchTransfer(ctx context.Context, st *settlementState) error {
	if st.AlreadySettled {
		return nil
	}
	provider, err := s.providers.Get(st.Provider)
	if err != nil {
		return err
	}

	payoutID := st.PayoutID
	transfer := &models.Transfer{
		PayoutID:     &payoutID,
		OrderID:      st.OrderID,
		AccountID:    st.AccountID,
		Provider:     st.Provider,
		Status:       enums.TransferStatusCreated,
		Amount:       st.Total,
		CurrencyCode: st.Currency,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
	}
	st.TransferID = transfer.ID

	record, err := provider.CreatePayout(ctx, gateway.PayoutRequest{
		PayoutID:       st.PayoutID,
		OrderID:        st.OrderID,
		Amount:         st.Total,
		Currency:       st.Currency,
		AccountRef:     st.AccountRef,
		IdempotencyKey: st.IdempotencyKey,
	})
	if err != nil {
		classified := gateway.Classify(err)
		reason := strings.TrimSpace(err.Error())
		transfer.Status = enums.TransferStatusFailed
		transfer.FailureReason = &reason
		if updateErr := s.repo.UpdateTransfer(context.WithoutCancel(ctx), transfer); updateErr != nil {
			return multierr.Append(classified, pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "mark transfer failed"))
		}
		return classified
	}

	reference := record.ReferenceID
	transfer.ReferenceID = &reference
	transfer.Data = record.Data
	st.TransferRef = reference
	// The provider already holds the money; a failed write must not compensate.
	if err := s.repo.RecordTransferReference(context.WithoutCancel(ctx), transfer); err != nil {
		s.flagUnrecorded(ctx, st, reference, err)
	}
	return nil
}

// payoutIdempotencyKey is shared by every attempt to pay the order. It only
// advances once a confirmed transfer failure has been reversed.
func payoutIdempotencyKey(orderID uuid.UUID, reversals int64) string {
	return fmt.Sprintf("payout:%s:%d", orderID, reversals)
}

// flagUnrecorded parks the order for operator review when a transfer the
// provider accepted could not be written back.
func (s *service) flagUnrecorded(ctx context.Context, st *settlementState, reference string, cause error) {
	logCtx := s.logg.WithField(ctx, "transfer_ref", reference)
	s.logg.Error(logCtx, "failed to record transfer reference", cause)
	block := &models.PayoutBlock{
		OrderID:   st.OrderID,
		Reason:    enums.PayoutBlockTransferUnrecorded,
		Message:   fmt.Sprintf("provider transfer %s accepted but not recorded: %v", reference, cause),
		Attempts:  1,
		BlockedAt: s.now().UTC(),
	}
	if err := s.repo.UpsertBlock(context.WithoutCancel(ctx), block); err != nil {
		s.logg.Error(logCtx, "failed to flag unrecorded transfer", err)
	}
}

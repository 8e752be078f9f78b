// Package settlement pays sellers for captured orders through the configured
// payout provider and parks orders it cannot settle.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/internal/ledger"
	"github.com/angelmondragon/packfinderz-payouts/internal/workflow"
	pkgdb "github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type commissionComputer interface {
	ComputeOrderCommissions(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLine, error)
}

type ledgerService interface {
	ComputePayout(ctx context.Context, orderID uuid.UUID) (*ledger.PayoutComputation, error)
	AppendAccountTransaction(ctx context.Context, tx *gorm.DB, input ledger.AccountTransactionInput) (*models.AccountTransaction, error)
	DeleteAccountTransaction(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service settles orders and reports their payout state.
type Service interface {
	Settle(ctx context.Context, orderID uuid.UUID) (*Outcome, error)
	RecordFailure(ctx context.Context, orderID uuid.UUID, reason enums.PayoutBlockReason, cause error, attempts int) error
	ClearBlock(ctx context.Context, orderID uuid.UUID) error
	ReleaseBlock(ctx context.Context, orderID uuid.UUID) error
	PayoutStatus(ctx context.Context, orderID uuid.UUID) (enums.SellerPayoutStatus, error)
	OperatorStatus(ctx context.Context, orderID uuid.UUID) (string, error)
}

// Outcome describes a completed settlement run.
type Outcome struct {
	RunID          uuid.UUID
	OrderID        uuid.UUID
	PayoutID       uuid.UUID
	TransferID     uuid.UUID
	TransferRef    string
	Amount         decimal.Decimal
	Currency       enums.Currency
	AlreadySettled bool
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Commissions commissionComputer
	Ledger      ledgerService
	Providers   *gateway.Registry
	Outbox      outboxPublisher
	StepLog     workflow.Repository
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	tx          txRunner
	commissions commissionComputer
	ledger      ledgerService
	providers   *gateway.Registry
	outbox      outboxPublisher
	logg        *logger.Logger
	executor    *workflow.Executor[settlementState]
	now         func() time.Time
}

// NewService validates dependencies and builds the settlement workflow.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Commissions == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("payout provider registry required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	svc := &service{
		repo:        params.Repo,
		tx:          params.Tx,
		commissions: params.Commissions,
		ledger:      params.Ledger,
		providers:   params.Providers,
		outbox:      params.Outbox,
		logg:        logg,
		now:         time.Now,
	}
	executor, err := workflow.NewExecutor(workflowName, params.StepLog, logg, svc.steps()...)
	if err != nil {
		return nil, err
	}
	svc.executor = executor
	return svc, nil
}

// Settle runs the settlement workflow for one order. An order that already
// has an active payout is reported with AlreadySettled and no error.
func (s *service) Settle(ctx context.Context, orderID uuid.UUID) (*Outcome, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	state := &settlementState{OrderID: orderID}
	result, err := s.executor.Run(ctx, orderID.String(), state)
	outcome := &Outcome{
		OrderID:        orderID,
		PayoutID:       state.PayoutID,
		TransferID:     state.TransferID,
		TransferRef:    state.TransferRef,
		Amount:         state.Total,
		Currency:       state.Currency,
		AlreadySettled: state.AlreadySettled,
	}
	if result != nil {
		outcome.RunID = result.RunID
	}
	if err != nil {
		if IsAlreadySettled(err) {
			outcome.AlreadySettled = true
			s.logg.Info(ctx, "order settled by a concurrent run")
			return outcome, nil
		}
		return outcome, err
	}

	if outcome.AlreadySettled {
		s.logg.Info(ctx, "order already settled")
		return outcome, nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payout_id":     outcome.PayoutID.String(),
		"transfer_ref":  outcome.TransferRef,
		"amount":        outcome.Amount.String(),
		"currency_code": outcome.Currency,
	}), "payout dispatched")
	return outcome, nil
}

// RecordFailure parks the order and emits payout.failed in one transaction. A
// block waiting for operator review keeps its reason.
func (s *service) RecordFailure(ctx context.Context, orderID uuid.UUID, reason enums.PayoutBlockReason, cause error, attempts int) error {
	message := string(reason)
	if cause != nil {
		message = cause.Error()
	}
	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindBlock(ctx, orderID)
		if err != nil && !pkgdb.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout block")
		}
		if existing != nil && existing.Reason.RequiresReview() && existing.Reason != reason {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"block_reason": string(existing.Reason),
				"failure":      string(reason),
			}), "payout block kept for operator review")
			return nil
		}
		block := &models.PayoutBlock{
			OrderID:   orderID,
			Reason:    reason,
			Message:   message,
			Attempts:  attempts,
			BlockedAt: now,
		}
		if err := repo.UpsertBlock(ctx, block); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout block")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.PayoutOutcomeEvent{
				OrderID:    orderID,
				Reason:     &reason,
				OccurredAt: now,
			},
		})
	})
}

// ClearBlock drops a retryable block after a successful run. Blocks that need
// operator review are left in place.
func (s *service) ClearBlock(ctx context.Context, orderID uuid.UUID) error {
	block, err := s.findBlock(ctx, orderID)
	if err != nil || block == nil {
		return err
	}
	if block.Reason.RequiresReview() {
		s.logg.Warn(s.logg.WithField(ctx, "block_reason", string(block.Reason)), "payout block kept for operator review")
		return nil
	}
	if err := s.repo.DeleteBlock(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear payout block")
	}
	return nil
}

// ReleaseBlock is the operator action that clears any block so the next scan
// picks the order up again.
func (s *service) ReleaseBlock(ctx context.Context, orderID uuid.UUID) error {
	block, err := s.findBlock(ctx, orderID)
	if err != nil {
		return err
	}
	if block == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout block not found")
	}
	if err := s.repo.DeleteBlock(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release payout block")
	}
	s.logg.Info(s.logg.WithField(ctx, "block_reason", string(block.Reason)), "payout block released")
	return nil
}

// PayoutStatus is the coarse status sellers see.
func (s *service) PayoutStatus(ctx context.Context, orderID uuid.UUID) (enums.SellerPayoutStatus, error) {
	block, err := s.findBlock(ctx, orderID)
	if err != nil {
		return "", err
	}
	if block != nil {
		return enums.SellerPayoutBlocked, nil
	}
	paid, err := s.isPaid(ctx, orderID)
	if err != nil {
		return "", err
	}
	if paid {
		return enums.SellerPayoutPaid, nil
	}
	return enums.SellerPayoutPending, nil
}

// OperatorStatus explains a blocked order to operators.
func (s *service) OperatorStatus(ctx context.Context, orderID uuid.UUID) (string, error) {
	block, err := s.findBlock(ctx, orderID)
	if err != nil {
		return "", err
	}
	if block != nil {
		return "payout blocked: " + string(block.Reason), nil
	}
	status, err := s.PayoutStatus(ctx, orderID)
	if err != nil {
		return "", err
	}
	return string(status), nil
}

func (s *service) findBlock(ctx context.Context, orderID uuid.UUID) (*models.PayoutBlock, error) {
	block, err := s.repo.FindBlock(ctx, orderID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout block")
	}
	return block, nil
}

func (s *service) isPaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if _, err := s.repo.FindActiveLink(ctx, orderID); err != nil {
		if pkgdb.IsNotFound(err) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout link")
	}
	transfer, err := s.repo.LatestTransferForOrder(ctx, orderID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transfer")
	}
	return transfer.Status == enums.TransferStatusSucceeded, nil
}

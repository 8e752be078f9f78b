// Package payoutwebhook applies payout provider callbacks to transfers,
// payouts and payout accounts.
package payoutwebhook

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/internal/ledger"
	"github.com/angelmondragon/packfinderz-payouts/internal/settlement"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/metrics"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/payloads"
)

// Outcome is what handling a delivery did.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Result describes a handled delivery.
type Result struct {
	Action   gateway.ActionType
	Outcome  Outcome
	DedupKey string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dedupGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type ledgerWriter interface {
	AppendAccountTransaction(ctx context.Context, tx *gorm.DB, input ledger.AccountTransactionInput) (*models.AccountTransaction, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the webhook service.
type ServiceParams struct {
	Providers *gateway.Registry
	Repo      settlement.Repository
	Tx        txRunner
	Ledger    ledgerWriter
	Outbox    outboxPublisher
	Guard     dedupGuard
	Metrics   *metrics.PayoutMetrics
	Logger    *logger.Logger
}

// Service reconciles provider callbacks.
type Service struct {
	providers *gateway.Registry
	repo      settlement.Repository
	tx        txRunner
	ledger    ledgerWriter
	outbox    outboxPublisher
	guard     dedupGuard
	metrics   *metrics.PayoutMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Providers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout provider registry required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		providers: params.Providers,
		repo:      params.Repo,
		tx:        params.Tx,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Handle decodes one delivery and applies it. Malformed and unsigned payloads
// return validation or unauthorized errors; storage failures return retryable
// errors and release the dedup key so the provider's redelivery is applied.
func (s *Service) Handle(ctx context.Context, provider enums.PayoutProvider, payload gateway.WebhookPayload) (*Result, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	action, err := p.GetWebhookActionAndData(ctx, payload)
	if err != nil {
		s.metrics.IncWebhook(string(provider), "unknown", "rejected")
		return nil, gateway.Classify(err)
	}
	if action.Provider == "" {
		action.Provider = provider
	}

	result := &Result{Action: action.Action, DedupKey: action.DedupKey()}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider":  provider,
		"action":    action.Action,
		"event_id":  action.EventID,
		"dedup_key": result.DedupKey,
	})

	if action.Action == gateway.ActionNotSupported {
		s.logg.Debug(logCtx, "ignoring unsupported webhook event")
		result.Outcome = OutcomeIgnored
		s.observe(action, result.Outcome)
		return result, nil
	}

	duplicate, err := s.guard.Claim(ctx, result.DedupKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook dedup key")
	}
	if duplicate {
		s.logg.Info(logCtx, "webhook already applied")
		result.Outcome = OutcomeDuplicate
		s.observe(action, result.Outcome)
		return result, nil
	}

	var outcome Outcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var applyErr error
		switch action.Action {
		case gateway.ActionTransferSucceeded:
			outcome, applyErr = s.transferSucceeded(logCtx, tx, action)
		case gateway.ActionTransferFailed:
			outcome, applyErr = s.transferFailed(logCtx, tx, action)
		case gateway.ActionAccountUpdated:
			outcome, applyErr = s.accountUpdated(logCtx, tx, action)
		default:
			outcome = OutcomeIgnored
		}
		return applyErr
	})
	if err != nil {
		if relErr := s.guard.Release(context.WithoutCancel(ctx), result.DedupKey); relErr != nil {
			err = multierr.Append(err, relErr)
		}
		s.logg.Error(logCtx, "webhook apply failed", err)
		s.metrics.IncWebhook(string(provider), string(action.Action), "failed")
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payout webhook")
		}
		return nil, err
	}

	result.Outcome = outcome
	s.observe(action, outcome)
	s.logg.Info(s.logg.WithField(logCtx, "outcome", outcome), "webhook handled")
	return result, nil
}

func (s *Service) observe(action *gateway.WebhookAction, outcome Outcome) {
	s.metrics.IncWebhook(string(action.Provider), string(action.Action), string(outcome))
}

// lockTransfer finds the transfer by provider reference. When the reference
// was never stored it falls back to the payout id, then to the order's
// in-flight transfer, both taken from the provider metadata.
func (s *Service) lockTransfer(ctx context.Context, repo settlement.Repository, action *gateway.WebhookAction) (*models.Transfer, error) {
	if action.TransferReference != "" {
		transfer, err := repo.LockTransferByReference(ctx, action.Provider, action.TransferReference)
		if err == nil {
			return transfer, nil
		}
		if !db.IsNotFound(err) {
			return nil, err
		}
	}
	if action.PayoutID != nil {
		transfer, err := repo.LockTransferByPayout(ctx, *action.PayoutID)
		if err == nil {
			return transfer, nil
		}
		if !db.IsNotFound(err) {
			return nil, err
		}
	}
	if action.OrderID == nil {
		return nil, nil
	}
	transfer, err := repo.LockOpenTransferForOrder(ctx, action.Provider, *action.OrderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return transfer, nil
}

func (s *Service) transferSucceeded(ctx context.Context, tx *gorm.DB, action *gateway.WebhookAction) (Outcome, error) {
	repo := s.repo.WithTx(tx)
	transfer, err := s.lockTransfer(ctx, repo, action)
	if err != nil {
		return "", err
	}
	if transfer == nil {
		return s.unmatched(ctx, repo, action)
	}
	if transfer.Status.IsTerminal() {
		return s.terminal(ctx, repo, transfer, enums.TransferStatusSucceeded)
	}

	s.finalizeTransfer(transfer, action, enums.TransferStatusSucceeded, nil)
	if err := repo.UpdateTransfer(ctx, transfer); err != nil {
		return "", err
	}
	if err := s.emitTransfer(ctx, tx, enums.EventTransferSucceeded, transfer, ""); err != nil {
		return "", err
	}

	if transfer.PayoutID == nil {
		// Money moved for a payout that was already compensated.
		if err := repo.UpsertBlock(ctx, &models.PayoutBlock{
			OrderID:  transfer.OrderID,
			Reason:   enums.PayoutBlockTransferUnrecorded,
			Message:  fmt.Sprintf("transfer %s succeeded without a payout", transfer.ID),
			Attempts: 1,
		}); err != nil {
			return "", err
		}
		s.logg.Error(ctx, "transfer succeeded without payout", pkgerrors.New(pkgerrors.CodeInconsistentLedger, "orphan transfer"))
		return OutcomeProcessed, nil
	}

	amount := transfer.Amount
	currency := transfer.CurrencyCode
	accountID := transfer.AccountID
	return OutcomeProcessed, s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutSucceeded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   transfer.OrderID,
		Data: payloads.PayoutOutcomeEvent{
			OrderID:      transfer.OrderID,
			PayoutID:     transfer.PayoutID,
			AccountID:    &accountID,
			Amount:       &amount,
			CurrencyCode: &currency,
			OccurredAt:   s.now().UTC(),
		},
	})
}

func (s *Service) transferFailed(ctx context.Context, tx *gorm.DB, action *gateway.WebhookAction) (Outcome, error) {
	repo := s.repo.WithTx(tx)
	transfer, err := s.lockTransfer(ctx, repo, action)
	if err != nil {
		return "", err
	}
	if transfer == nil {
		return s.unmatched(ctx, repo, action)
	}
	if transfer.Status.IsTerminal() {
		return s.terminal(ctx, repo, transfer, enums.TransferStatusFailed)
	}

	reason := action.FailureReason
	if reason == "" {
		reason = "transfer failed"
	}
	s.finalizeTransfer(transfer, action, enums.TransferStatusFailed, &reason)
	if err := repo.UpdateTransfer(ctx, transfer); err != nil {
		return "", err
	}
	if err := s.emitTransfer(ctx, tx, enums.EventTransferFailed, transfer, reason); err != nil {
		return "", err
	}
	if transfer.PayoutID == nil {
		return OutcomeProcessed, nil
	}

	payout, err := repo.FindPayout(ctx, *transfer.PayoutID)
	if err != nil {
		if db.IsNotFound(err) {
			return OutcomeProcessed, nil
		}
		return "", err
	}
	if err := s.reverse(ctx, tx, repo, payout, reason); err != nil {
		return "", err
	}

	blockReason := enums.PayoutBlockTransferFailed
	return OutcomeProcessed, s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   payout.OrderID,
		Data: payloads.PayoutOutcomeEvent{
			OrderID:      payout.OrderID,
			PayoutID:     &payout.ID,
			AccountID:    &payout.AccountID,
			Amount:       &payout.Amount,
			CurrencyCode: &payout.CurrencyCode,
			Reason:       &blockReason,
			OccurredAt:   s.now().UTC(),
		},
	})
}

// unmatched parks the order named in the provider metadata when no stored
// transfer matches the callback. The provider moved money this service never
// recorded, so an operator has to reconcile it before the order is paid again.
func (s *Service) unmatched(ctx context.Context, repo settlement.Repository, action *gateway.WebhookAction) (Outcome, error) {
	if action.OrderID == nil {
		s.logg.Warn(ctx, "no transfer matches webhook")
		return OutcomeIgnored, nil
	}
	orderCtx := s.logg.WithOrderID(ctx, action.OrderID.String())
	if _, err := repo.FindOrder(ctx, *action.OrderID); err != nil {
		if db.IsNotFound(err) {
			s.logg.Warn(orderCtx, "webhook names an unknown order")
			return OutcomeIgnored, nil
		}
		return "", err
	}
	if err := repo.UpsertBlock(ctx, &models.PayoutBlock{
		OrderID:   *action.OrderID,
		Reason:    enums.PayoutBlockTransferUnrecorded,
		Message:   fmt.Sprintf("provider reported %s for unrecorded transfer %s", action.Action, action.TransferReference),
		Attempts:  1,
		BlockedAt: s.now().UTC(),
	}); err != nil {
		return "", err
	}
	s.logg.Error(orderCtx, "webhook for unrecorded transfer", pkgerrors.New(pkgerrors.CodeInconsistentLedger, "unrecorded provider transfer"))
	return OutcomeProcessed, nil
}

// reverse restores the seller balance and unlinks the order so the next scan
// pays it again.
func (s *Service) reverse(ctx context.Context, tx *gorm.DB, repo settlement.Repository, payout *models.Payout, reason string) error {
	if _, err := repo.LockAccount(ctx, payout.AccountID); err != nil {
		return err
	}
	reversal := &models.PayoutReversal{
		PayoutID:     payout.ID,
		Amount:       payout.Amount,
		CurrencyCode: payout.CurrencyCode,
		Reason:       reason,
	}
	if err := repo.CreateReversal(ctx, reversal); err != nil {
		return err
	}
	if _, err := s.ledger.AppendAccountTransaction(ctx, tx, ledger.AccountTransactionInput{
		AccountID:   payout.AccountID,
		Amount:      payout.Amount,
		Currency:    payout.CurrencyCode,
		Reference:   enums.AccountTransactionPayoutReversal,
		ReferenceID: reversal.ID,
	}); err != nil {
		return err
	}

	link, err := repo.FindLinkByPayout(ctx, payout.ID)
	switch {
	case err == nil:
		if err := repo.DeleteLink(ctx, link.ID); err != nil {
			return err
		}
	case !db.IsNotFound(err):
		return err
	}

	return repo.UpsertBlock(ctx, &models.PayoutBlock{
		OrderID:  payout.OrderID,
		Reason:   enums.PayoutBlockTransferFailed,
		Message:  reason,
		Attempts: 1,
	})
}

func (s *Service) accountUpdated(ctx context.Context, tx *gorm.DB, action *gateway.WebhookAction) (Outcome, error) {
	repo := s.repo.WithTx(tx)
	account, err := repo.LockAccountByReference(ctx, action.Provider, action.AccountReference)
	if err != nil {
		if db.IsNotFound(err) {
			s.logg.Warn(ctx, "no payout account matches webhook")
			return OutcomeIgnored, nil
		}
		return "", err
	}

	previous := account.Status
	next := action.AccountStatus
	logCtx := s.logg.WithAccountID(ctx, account.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": previous, "to": next})
	if !previous.CanTransitionTo(next) {
		s.logg.Warn(logCtx, "payout account transition not allowed")
		return OutcomeIgnored, nil
	}

	account.Status = next
	if !action.Data.IsZero() {
		account.Data = action.Data
	}
	if err := repo.UpdateAccountState(ctx, account); err != nil {
		return "", err
	}

	if next == enums.PayoutAccountActive && previous != next {
		cleared, err := repo.ClearAccountBlocks(ctx, account.SellerID, enums.AccountBlockReasons())
		if err != nil {
			return "", err
		}
		s.logg.Info(s.logg.WithField(logCtx, "blocks_cleared", cleared), "payout account activated")
	}

	return OutcomeProcessed, s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutAccountWebhookReceived,
		AggregateType: enums.AggregatePayoutAccount,
		AggregateID:   account.ID,
		Data: payloads.PayoutAccountWebhookEvent{
			AccountID:      account.ID,
			SellerID:       account.SellerID,
			PreviousStatus: previous,
			Status:         next,
			OccurredAt:     s.now().UTC(),
		},
	})
}

func (s *Service) finalizeTransfer(transfer *models.Transfer, action *gateway.WebhookAction, status enums.TransferStatus, reason *string) {
	transfer.Status = status
	transfer.FailureReason = reason
	if transfer.ReferenceID == nil && action.TransferReference != "" {
		ref := action.TransferReference
		transfer.ReferenceID = &ref
	}
	if !action.Data.IsZero() {
		transfer.Data = action.Data
	}
}

func (s *Service) emitTransfer(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, transfer *models.Transfer, reason string) error {
	ref := ""
	if transfer.ReferenceID != nil {
		ref = *transfer.ReferenceID
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransfer,
		AggregateID:   transfer.ID,
		Data: payloads.TransferOutcomeEvent{
			OrderID:      transfer.OrderID,
			TransferID:   transfer.ID,
			PayoutID:     transfer.PayoutID,
			ReferenceID:  ref,
			Amount:       transfer.Amount,
			CurrencyCode: transfer.CurrencyCode,
			Reason:       reason,
			OccurredAt:   s.now().UTC(),
		},
	})
}

// terminal leaves a settled transfer unchanged. A callback that contradicts
// the stored outcome parks the order for operator review.
func (s *Service) terminal(ctx context.Context, repo settlement.Repository, transfer *models.Transfer, wanted enums.TransferStatus) (Outcome, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transfer_id": transfer.ID.String(),
		"status":      transfer.Status,
		"wanted":      wanted,
	})
	if transfer.Status == wanted {
		s.logg.Info(logCtx, "transfer already in requested state")
		return OutcomeDuplicate, nil
	}
	if err := repo.UpsertBlock(ctx, &models.PayoutBlock{
		OrderID:   transfer.OrderID,
		Reason:    enums.PayoutBlockTransferUnrecorded,
		Message:   fmt.Sprintf("provider reported %s for %s transfer %s", wanted, transfer.Status, transfer.ID),
		Attempts:  1,
		BlockedAt: s.now().UTC(),
	}); err != nil {
		return "", err
	}
	s.logg.Warn(logCtx, "terminal transfer left unchanged, needs operator review")
	return OutcomeProcessed, nil
}

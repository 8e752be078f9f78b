package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records payment movements and derives what a seller is owed.
type Service interface {
	RecordCapture(ctx context.Context, orderID uuid.UUID, currency enums.Currency, amount decimal.Decimal) (*models.SplitOrderPayment, error)
	RecordRefund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*models.SplitOrderPayment, error)
	ComputePayout(ctx context.Context, orderID uuid.UUID) (*PayoutComputation, error)
	AppendAccountTransaction(ctx context.Context, tx *gorm.DB, input AccountTransactionInput) (*models.AccountTransaction, error)
	DeleteAccountTransaction(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	AccountBalance(ctx context.Context, accountID uuid.UUID) (map[enums.Currency]decimal.Decimal, error)
}

// PayoutComputation breaks down the payout owed for one order.
type PayoutComputation struct {
	OrderID    uuid.UUID
	Currency   enums.Currency
	Captured   decimal.Decimal
	Refunded   decimal.Decimal
	Commission decimal.Decimal
	Total      decimal.Decimal
}

// AccountTransactionInput is a signed entry against a payout account.
type AccountTransactionInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    enums.Currency
	Reference   enums.AccountTransactionReference
	ReferenceID uuid.UUID
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) RecordCapture(ctx context.Context, orderID uuid.UUID, currency enums.Currency, amount decimal.Decimal) (*models.SplitOrderPayment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is invalid")
	}
	if err := validateAmount(amount, currency); err != nil {
		return nil, err
	}

	var result *models.SplitOrderPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPaymentForUpdate(ctx, orderID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			payment = &models.SplitOrderPayment{
				OrderID:        orderID,
				CurrencyCode:   currency,
				CapturedAmount: decimal.Zero,
				RefundedAmount: decimal.Zero,
			}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load split payment")
		case payment.CurrencyCode != currency:
			return pkgerrors.New(pkgerrors.CodeValidation, "capture currency does not match payment").
				WithDetails(map[string]any{"expected": payment.CurrencyCode, "got": currency})
		}

		payment.CapturedAmount = payment.CapturedAmount.Add(amount)
		orderTotal, err := repo.OrderTotal(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order total")
		}
		payment.Status = paymentStatus(payment.CapturedAmount, payment.RefundedAmount, orderTotal)

		if payment.ID == uuid.Nil {
			if err := repo.CreatePayment(ctx, payment); err != nil {
				if pkgdb.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent capture for order")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create split payment")
			}
		} else if err := repo.UpdatePaymentTotals(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update split payment")
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"amount":          amount.String(),
		"captured_amount": result.CapturedAmount.String(),
		"status":          result.Status,
	}), "payment capture recorded")
	return result, nil
}

func (s *service) RecordRefund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*models.SplitOrderPayment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var result *models.SplitOrderPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPaymentForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds captured amount").
					WithDetails(map[string]any{"captured_amount": "0"})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load split payment")
		}
		if err := validateAmount(amount, payment.CurrencyCode); err != nil {
			return err
		}

		refunded := payment.RefundedAmount.Add(amount)
		if refunded.GreaterThan(payment.CapturedAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds captured amount").
				WithDetails(map[string]any{
					"captured_amount": payment.CapturedAmount.String(),
					"refunded_amount": payment.RefundedAmount.String(),
				})
		}
		payment.RefundedAmount = refunded
		orderTotal, err := repo.OrderTotal(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order total")
		}
		payment.Status = paymentStatus(payment.CapturedAmount, payment.RefundedAmount, orderTotal)
		if err := repo.UpdatePaymentTotals(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update split payment")
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"amount":          amount.String(),
		"refunded_amount": result.RefundedAmount.String(),
		"status":          result.Status,
	}), "payment refund recorded")
	return result, nil
}

// ComputePayout returns captured minus refunded minus every active
// commission line of the order. A negative result is never clamped.
func (s *service) ComputePayout(ctx context.Context, orderID uuid.UUID) (*PayoutComputation, error) {
	payment, err := s.repo.FindPayment(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment recorded for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load split payment")
	}
	lines, err := s.repo.ListCommissionLines(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission lines")
	}

	commission := decimal.Zero
	for _, line := range lines {
		if line.CurrencyCode != payment.CurrencyCode {
			return nil, pkgerrors.New(pkgerrors.CodeInconsistentLedger, "commission currency differs from payment currency").
				WithDetails(map[string]any{"line_id": line.ID, "currency_code": line.CurrencyCode})
		}
		commission = commission.Add(line.Value)
	}

	total := payment.CapturedAmount.Sub(payment.RefundedAmount).Sub(commission)
	result := &PayoutComputation{
		OrderID:    orderID,
		Currency:   payment.CurrencyCode,
		Captured:   payment.CapturedAmount,
		Refunded:   payment.RefundedAmount,
		Commission: commission,
		Total:      money.Round(total, payment.CurrencyCode),
	}
	if result.Total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInconsistentLedger, "payout total is negative").
			WithDetails(map[string]any{
				"order_id":        orderID,
				"captured_amount": result.Captured.String(),
				"refunded_amount": result.Refunded.String(),
				"commission":      result.Commission.String(),
			})
	}
	return result, nil
}

func (s *service) AppendAccountTransaction(ctx context.Context, tx *gorm.DB, input AccountTransactionInput) (*models.AccountTransaction, error) {
	if input.AccountID == uuid.Nil || input.ReferenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account and reference ids are required")
	}
	if !input.Reference.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction reference")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is invalid")
	}

	txn := &models.AccountTransaction{
		AccountID:    input.AccountID,
		Amount:       input.Amount,
		CurrencyCode: input.Currency,
		Reference:    input.Reference,
		ReferenceID:  input.ReferenceID,
	}
	if err := s.repo.WithTx(tx).CreateAccountTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append account transaction")
	}
	return txn, nil
}

func (s *service) DeleteAccountTransaction(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if err := s.repo.WithTx(tx).DeleteAccountTransaction(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete account transaction")
	}
	return nil
}

// AccountBalance sums the active signed entries per currency.
func (s *service) AccountBalance(ctx context.Context, accountID uuid.UUID) (map[enums.Currency]decimal.Decimal, error) {
	txns, err := s.repo.ListAccountTransactions(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account transactions")
	}
	balance := make(map[enums.Currency]decimal.Decimal)
	for _, txn := range txns {
		balance[txn.CurrencyCode] = balance[txn.CurrencyCode].Add(txn.Amount)
	}
	return balance, nil
}

func validateAmount(amount decimal.Decimal, currency enums.Currency) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !amount.Equal(money.Round(amount, currency)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount has more precision than the currency allows").
			WithDetails(map[string]any{"currency_code": currency, "minor_units": money.MinorUnits(currency)})
	}
	return nil
}

func paymentStatus(captured, refunded, orderTotal decimal.Decimal) enums.PaymentStatus {
	switch {
	case captured.IsZero():
		return enums.PaymentStatusNotPaid
	case refunded.GreaterThanOrEqual(captured):
		return enums.PaymentStatusRefunded
	case refunded.IsPositive():
		return enums.PaymentStatusPartiallyRefunded
	case orderTotal.IsPositive() && captured.LessThan(orderTotal):
		return enums.PaymentStatusPartiallyCaptured
	default:
		return enums.PaymentStatusCaptured
	}
}

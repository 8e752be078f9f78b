package enums

import "fmt"

// PaymentStatus tracks the captured/refunded state of an order's split payment.
type PaymentStatus string

const (
	PaymentStatusNotPaid           PaymentStatus = "not_paid"
	PaymentStatusPartiallyCaptured PaymentStatus = "partially_captured"
	PaymentStatusCaptured          PaymentStatus = "captured"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusNotPaid,
	PaymentStatusPartiallyCaptured,
	PaymentStatusCaptured,
	PaymentStatusPartiallyRefunded,
	PaymentStatusRefunded,
}

func (s PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// PayoutAccountStatus is the onboarding state of a seller's payout account.
type PayoutAccountStatus string

const (
	PayoutAccountPending  PayoutAccountStatus = "pending"
	PayoutAccountActive   PayoutAccountStatus = "active"
	PayoutAccountDisabled PayoutAccountStatus = "disabled"
)

var payoutAccountTransitions = map[PayoutAccountStatus][]PayoutAccountStatus{
	PayoutAccountPending:  {PayoutAccountActive, PayoutAccountDisabled},
	PayoutAccountActive:   {PayoutAccountDisabled},
	PayoutAccountDisabled: {PayoutAccountActive},
}

func (s PayoutAccountStatus) IsValid() bool {
	_, ok := payoutAccountTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed. Staying in
// the same state is always allowed.
func (s PayoutAccountStatus) CanTransitionTo(next PayoutAccountStatus) bool {
	if s == next {
		return next.IsValid()
	}
	for _, candidate := range payoutAccountTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func ParsePayoutAccountStatus(value string) (PayoutAccountStatus, error) {
	s := PayoutAccountStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid payout account status %q", value)
	}
	return s, nil
}

// TransferStatus is the provider-side state of a payout transfer.
type TransferStatus string

const (
	TransferStatusCreated   TransferStatus = "created"
	TransferStatusSucceeded TransferStatus = "succeeded"
	TransferStatusFailed    TransferStatus = "failed"
)

func (s TransferStatus) IsValid() bool {
	switch s {
	case TransferStatusCreated, TransferStatusSucceeded, TransferStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusSucceeded || s == TransferStatusFailed
}

// PayoutProvider names a gateway variant.
type PayoutProvider string

const (
	PayoutProviderStripe PayoutProvider = "stripe"
	PayoutProviderManual PayoutProvider = "manual"
)

func (p PayoutProvider) IsValid() bool {
	return p == PayoutProviderStripe || p == PayoutProviderManual
}

func ParsePayoutProvider(value string) (PayoutProvider, error) {
	p := PayoutProvider(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payout provider %q", value)
	}
	return p, nil
}

// PayoutBlockReason explains why an order was parked instead of settled.
type PayoutBlockReason string

const (
	PayoutBlockAccountNotFound     PayoutBlockReason = "account_not_found"
	PayoutBlockAccountNotActive    PayoutBlockReason = "account_not_active"
	PayoutBlockNothingToSettle     PayoutBlockReason = "nothing_to_settle"
	PayoutBlockUnsupportedCurrency PayoutBlockReason = "unsupported_currency"
	PayoutBlockInconsistentLedger  PayoutBlockReason = "inconsistent_ledger_state"
	PayoutBlockProviderRejected    PayoutBlockReason = "provider_rejected"
	PayoutBlockProviderDeclined    PayoutBlockReason = "provider_declined"
	PayoutBlockProviderFailed      PayoutBlockReason = "provider_failed"
	PayoutBlockTransferFailed      PayoutBlockReason = "transfer_failed"
	PayoutBlockTransferUnrecorded  PayoutBlockReason = "transfer_unrecorded"
)

// AccountBlockReasons are the block reasons only an account state change can
// resolve. Scans skip orders carrying them.
func AccountBlockReasons() []PayoutBlockReason {
	return []PayoutBlockReason{
		PayoutBlockAccountNotFound,
		PayoutBlockAccountNotActive,
		PayoutBlockProviderRejected,
	}
}

// ManualReviewBlockReasons park an order until an operator releases it.
func ManualReviewBlockReasons() []PayoutBlockReason {
	return []PayoutBlockReason{
		PayoutBlockUnsupportedCurrency,
		PayoutBlockInconsistentLedger,
		PayoutBlockTransferUnrecorded,
	}
}

// RequiresReview reports whether only an operator may clear the block.
func (r PayoutBlockReason) RequiresReview() bool {
	for _, reason := range ManualReviewBlockReasons() {
		if r == reason {
			return true
		}
	}
	return false
}

// ScanSkippedBlockReasons are the reasons the payout scan never re-enqueues.
func ScanSkippedBlockReasons() []PayoutBlockReason {
	return append(AccountBlockReasons(), ManualReviewBlockReasons()...)
}

// SellerPayoutStatus is the coarse status exposed to sellers.
type SellerPayoutStatus string

const (
	SellerPayoutPending SellerPayoutStatus = "pending"
	SellerPayoutPaid    SellerPayoutStatus = "paid"
	SellerPayoutBlocked SellerPayoutStatus = "blocked"
)

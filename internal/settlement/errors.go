package settlement

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

// ErrAlreadySettled reports that another run linked the order first.
var ErrAlreadySettled = pkgerrors.New(pkgerrors.CodeConflict, "order already settled")

// ErrHeldForReview reports that the order carries a block only an operator
// may clear.
var ErrHeldForReview = pkgerrors.New(pkgerrors.CodeStateConflict, "payout held for operator review")

// BlockedError parks an order with an operator-facing reason.
type BlockedError struct {
	Reason enums.PayoutBlockReason
	Err    error
}

func blocked(reason enums.PayoutBlockReason, code pkgerrors.Code, message string) error {
	return &BlockedError{Reason: reason, Err: pkgerrors.New(code, message)}
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("payout blocked (%s): %v", e.Reason, e.Err)
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

// BlockReason maps a settlement failure to the reason the order is parked
// with. It reports false for failures worth retrying.
func BlockReason(err error) (enums.PayoutBlockReason, bool) {
	if err == nil {
		return "", false
	}
	var blockedErr *BlockedError
	if errors.As(err, &blockedErr) {
		return blockedErr.Reason, true
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeUnsupportedCurrency:
		return enums.PayoutBlockUnsupportedCurrency, true
	case pkgerrors.CodeInconsistentLedger:
		return enums.PayoutBlockInconsistentLedger, true
	case pkgerrors.CodeProviderTerminal:
		if gateway.IsAccountRejection(err) {
			return enums.PayoutBlockProviderRejected, true
		}
		return enums.PayoutBlockProviderDeclined, true
	}
	if pkgerrors.IsRetryable(err) {
		return "", false
	}
	return enums.PayoutBlockInconsistentLedger, true
}

// IsHeldForReview reports whether err means the order waits for an operator.
func IsHeldForReview(err error) bool {
	return errors.Is(err, ErrHeldForReview)
}

// IsAlreadySettled reports whether err means the order has an active payout.
func IsAlreadySettled(err error) bool {
	return errors.Is(err, ErrAlreadySettled)
}

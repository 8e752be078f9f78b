package gateway

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

// Kind classifies provider failures.
type Kind string

const (
	KindRateLimited     Kind = "rate_limited"
	KindNetwork         Kind = "network_error"
	KindInvalidAccount  Kind = "invalid_account"
	KindAccountDisabled Kind = "account_disabled"
	KindRejected        Kind = "rejected"
	KindDecode          Kind = "decode"
	KindSignature       Kind = "signature"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider enums.PayoutProvider
	Message  string
	Err      error
}

// NewError builds a classified provider error.
func NewError(kind Kind, provider enums.PayoutProvider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same call may succeed.
func (e *Error) Transient() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNetwork
}

// IsAccountRejection reports whether the provider refused the payout because
// of the destination account. Only an account update can clear it.
func IsAccountRejection(err error) bool {
	switch KindOf(err) {
	case KindInvalidAccount, KindAccountDisabled:
		return true
	}
	return false
}

// KindOf returns the provider error kind in err's chain, or "".
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Transient()
}

// Classify maps a provider failure onto the service error codes.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch KindOf(err) {
	case KindRateLimited, KindNetwork:
		return pkgerrors.Wrap(pkgerrors.CodeProviderTransient, err, "payout provider unavailable")
	case KindInvalidAccount, KindAccountDisabled:
		return pkgerrors.Wrap(pkgerrors.CodeProviderTerminal, err, "payout provider rejected the account")
	case KindRejected:
		return pkgerrors.Wrap(pkgerrors.CodeProviderTerminal, err, "payout provider declined the payout")
	case KindDecode:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed provider payload")
	case KindSignature:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "provider signature rejected")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeProviderTransient, err, "payout provider call failed")
	}
}

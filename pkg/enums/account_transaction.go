package enums

import "fmt"

// AccountTransactionReference identifies what produced a payout account ledger entry.
type AccountTransactionReference string

const (
	AccountTransactionPayout         AccountTransactionReference = "payout"
	AccountTransactionPayoutReversal AccountTransactionReference = "payout_reversal"
	AccountTransactionAdjustment     AccountTransactionReference = "adjustment"
)

var validAccountTransactionReferences = []AccountTransactionReference{
	AccountTransactionPayout,
	AccountTransactionPayoutReversal,
	AccountTransactionAdjustment,
}

// IsValid reports whether the value matches a known transaction reference.
func (r AccountTransactionReference) IsValid() bool {
	for _, candidate := range validAccountTransactionReferences {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseAccountTransactionReference converts raw input into AccountTransactionReference.
func ParseAccountTransactionReference(value string) (AccountTransactionReference, error) {
	for _, candidate := range validAccountTransactionReferences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account transaction reference %q", value)
}

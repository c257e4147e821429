package enums

import "fmt"

// PayoutStatus tracks a payout ledger entry owed to the store.
type PayoutStatus string

const (
	PayoutStatusPending          PayoutStatus = "pending"
	PayoutStatusLocked           PayoutStatus = "locked"
	PayoutStatusEligible         PayoutStatus = "eligible"
	PayoutStatusReversalRequired PayoutStatus = "reversal_required"
	PayoutStatusReversed         PayoutStatus = "reversed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusLocked,
	PayoutStatusEligible,
	PayoutStatusReversalRequired,
	PayoutStatusReversed,
}

func (s PayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}

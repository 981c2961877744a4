package enums

import "fmt"

// WithdrawalDecision is the admin verdict on a pending withdrawal.
type WithdrawalDecision string

const (
	WithdrawalDecisionApprove WithdrawalDecision = "approve"
	WithdrawalDecisionReject  WithdrawalDecision = "reject"
)

var validWithdrawalDecisions = []WithdrawalDecision{
	WithdrawalDecisionApprove,
	WithdrawalDecisionReject,
}

// String implements fmt.Stringer.
func (d WithdrawalDecision) String() string {
	return string(d)
}

// IsValid reports whether the value is a known WithdrawalDecision.
func (d WithdrawalDecision) IsValid() bool {
	for _, candidate := range validWithdrawalDecisions {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseWithdrawalDecision converts raw input into a WithdrawalDecision.
func ParseWithdrawalDecision(value string) (WithdrawalDecision, error) {
	for _, candidate := range validWithdrawalDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid withdrawal decision %q", value)
}

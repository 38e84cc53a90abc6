package enums

// PayoutHoldReason explains why a payout was parked in on_hold.
type PayoutHoldReason string

const (
	PayoutHoldMissingBankDetails PayoutHoldReason = "missing_bank_details"
	PayoutHoldBelowMinimum       PayoutHoldReason = "below_minimum"
)

var validPayoutHoldReasons = []PayoutHoldReason{
	PayoutHoldMissingBankDetails,
	PayoutHoldBelowMinimum,
}

func (p PayoutHoldReason) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutHoldReason.
func (p PayoutHoldReason) IsValid() bool {
	return member(validPayoutHoldReasons, p)
}

// ParsePayoutHoldReason converts raw input into a PayoutHoldReason.
func ParsePayoutHoldReason(value string) (PayoutHoldReason, error) {
	return parse("payout hold reason", validPayoutHoldReasons, value)
}

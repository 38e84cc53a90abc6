package enums

// PayoutLinkState records progress of linking orders to a payout.
type PayoutLinkState string

const (
	PayoutLinkLinking PayoutLinkState = "linking"
	PayoutLinkLinked  PayoutLinkState = "linked"
)

var validPayoutLinkStates = []PayoutLinkState{
	PayoutLinkLinking,
	PayoutLinkLinked,
}

func (p PayoutLinkState) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutLinkState.
func (p PayoutLinkState) IsValid() bool {
	return member(validPayoutLinkStates, p)
}

// ParsePayoutLinkState converts raw input into a PayoutLinkState.
func ParsePayoutLinkState(value string) (PayoutLinkState, error) {
	return parse("payout link state", validPayoutLinkStates, value)
}

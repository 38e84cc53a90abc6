package enums

// PayoutSchedule is the payout batching cadence.
type PayoutSchedule string

const (
	PayoutScheduleWeekly   PayoutSchedule = "weekly"
	PayoutScheduleBiweekly PayoutSchedule = "biweekly"
	PayoutScheduleMonthly  PayoutSchedule = "monthly"
)

var validPayoutSchedules = []PayoutSchedule{
	PayoutScheduleWeekly,
	PayoutScheduleBiweekly,
	PayoutScheduleMonthly,
}

func (p PayoutSchedule) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutSchedule.
func (p PayoutSchedule) IsValid() bool {
	return member(validPayoutSchedules, p)
}

// ParsePayoutSchedule converts raw input into a PayoutSchedule.
func ParsePayoutSchedule(value string) (PayoutSchedule, error) {
	return parse("payout schedule", validPayoutSchedules, value)
}

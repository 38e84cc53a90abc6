package enums

// OrderPayoutStatus tracks whether an order has been swept into a seller payout.
type OrderPayoutStatus string

const (
	OrderPayoutStatusPending  OrderPayoutStatus = "pending"
	OrderPayoutStatusIncluded OrderPayoutStatus = "included_in_payout"
	OrderPayoutStatusPaid     OrderPayoutStatus = "paid"
)

var validOrderPayoutStatuses = []OrderPayoutStatus{
	OrderPayoutStatusPending,
	OrderPayoutStatusIncluded,
	OrderPayoutStatusPaid,
}

func (o OrderPayoutStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderPayoutStatus.
func (o OrderPayoutStatus) IsValid() bool {
	return member(validOrderPayoutStatuses, o)
}

// ParseOrderPayoutStatus converts raw input into a OrderPayoutStatus.
func ParseOrderPayoutStatus(value string) (OrderPayoutStatus, error) {
	return parse("order payout status", validOrderPayoutStatuses, value)
}

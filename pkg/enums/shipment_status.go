package enums

// ShipmentStatus is the internal shipment lifecycle derived from carrier codes.
type ShipmentStatus string

const (
	ShipmentStatusCreated         ShipmentStatus = "created"
	ShipmentStatusPickupScheduled ShipmentStatus = "pickup_scheduled"
	ShipmentStatusPickedUp        ShipmentStatus = "picked_up"
	ShipmentStatusInTransit       ShipmentStatus = "in_transit"
	ShipmentStatusOutForDelivery  ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered       ShipmentStatus = "delivered"
	ShipmentStatusRTO             ShipmentStatus = "rto"
	ShipmentStatusCancelled       ShipmentStatus = "cancelled"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusCreated,
	ShipmentStatusPickupScheduled,
	ShipmentStatusPickedUp,
	ShipmentStatusInTransit,
	ShipmentStatusOutForDelivery,
	ShipmentStatusDelivered,
	ShipmentStatusRTO,
	ShipmentStatusCancelled,
}

func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	return member(validShipmentStatuses, s)
}

// ParseShipmentStatus converts raw input into a ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	return parse("shipment status", validShipmentStatuses, value)
}

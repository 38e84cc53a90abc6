package shipments

import "github.com/angelmondragon/settlement-backend/pkg/enums"

// rank orders the forward lifecycle. Statuses missing here are absorbing.
var rank = map[enums.ShipmentStatus]int{
	enums.ShipmentStatusCreated:         0,
	enums.ShipmentStatusPickupScheduled: 1,
	enums.ShipmentStatusPickedUp:        2,
	enums.ShipmentStatusInTransit:       3,
	enums.ShipmentStatusOutForDelivery:  4,
	enums.ShipmentStatusDelivered:       5,
}

var absorbing = map[enums.ShipmentStatus]bool{
	enums.ShipmentStatusRTO:       true,
	enums.ShipmentStatusCancelled: true,
}

// IsAbsorbing reports whether the status ends tracking regardless of order.
func IsAbsorbing(status enums.ShipmentStatus) bool {
	return absorbing[status]
}

// CanAdvance reports whether a shipment may move from one status to another.
// Absorbing statuses win over any ranked status and never leave.
func CanAdvance(from, to enums.ShipmentStatus) bool {
	if absorbing[from] {
		return false
	}
	if absorbing[to] {
		return true
	}
	fromRank, okFrom := rank[from]
	toRank, okTo := rank[to]
	return okFrom && okTo && toRank > fromRank
}

// predecessors lists every status from which to is reachable.
func predecessors(to enums.ShipmentStatus) []enums.ShipmentStatus {
	var out []enums.ShipmentStatus
	for from := range rank {
		if CanAdvance(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// isInFlight reports statuses that put the order into shipped.
func isInFlight(status enums.ShipmentStatus) bool {
	switch status {
	case enums.ShipmentStatusPickupScheduled,
		enums.ShipmentStatusPickedUp,
		enums.ShipmentStatusInTransit,
		enums.ShipmentStatusOutForDelivery:
		return true
	}
	return false
}

// Mapping is what a carrier status code means locally.
type Mapping struct {
	Status enums.ShipmentStatus
	// NDR marks a failed delivery attempt. It never moves the status.
	NDR bool
}

// Known reports whether the code affects anything beyond scan history.
func (m Mapping) Known() bool { return m.Status != "" || m.NDR }

var carrierCodes = map[int]Mapping{
	27: {Status: enums.ShipmentStatusPickupScheduled},
	19: {Status: enums.ShipmentStatusPickupScheduled},
	15: {Status: enums.ShipmentStatusPickupScheduled},
	42: {Status: enums.ShipmentStatusPickedUp},
	6:  {Status: enums.ShipmentStatusPickedUp},
	18: {Status: enums.ShipmentStatusInTransit},
	22: {Status: enums.ShipmentStatusInTransit},
	38: {Status: enums.ShipmentStatusInTransit},
	48: {Status: enums.ShipmentStatusInTransit},
	17: {Status: enums.ShipmentStatusOutForDelivery},
	7:  {Status: enums.ShipmentStatusDelivered},
	9:  {Status: enums.ShipmentStatusRTO},
	10: {Status: enums.ShipmentStatusRTO},
	14: {Status: enums.ShipmentStatusRTO},
	8:  {Status: enums.ShipmentStatusCancelled},
	21: {NDR: true},
}

// MapCarrierStatus translates a carrier status code. Unknown codes map to the zero Mapping.
func MapCarrierStatus(code int) Mapping {
	return carrierCodes[code]
}

// orderLags reports whether an order still sits where a shipment in status
// would already have moved it. Delivered orders never follow a later return.
func orderLags(status enums.ShipmentStatus, order enums.OrderStatus) bool {
	preShip := order == enums.OrderStatusConfirmed || order == enums.OrderStatusProcessing
	switch {
	case isInFlight(status):
		return preShip
	case status == enums.ShipmentStatusDelivered:
		return preShip || order == enums.OrderStatusShipped
	case IsAbsorbing(status):
		return preShip || order == enums.OrderStatusShipped
	}
	return false
}

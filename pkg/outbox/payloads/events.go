package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

// OrderPaidEvent is emitted once per order when its payment is confirmed.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	SellerID         uuid.UUID `json:"seller_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	TotalAmount      int64     `json:"total_amount"`
	SellerNetAmount  int64     `json:"seller_net_amount"`
	PaidAt           time.Time `json:"paid_at"`
}

// OrderStatusChangedEvent mirrors every applied order transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	SellerID      uuid.UUID           `json:"seller_id"`
	From          enums.OrderStatus   `json:"from"`
	To            enums.OrderStatus   `json:"to"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ActorRole     enums.ActorRole     `json:"actor_role"`
	Note          string              `json:"note,omitempty"`
}

// OrderRefundedEvent records the outcome of a refund attempt.
type OrderRefundedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	RefundID      string              `json:"refund_id,omitempty"`
	Amount        int64               `json:"amount"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// ShipmentStatusChangedEvent is emitted when a carrier event advances a shipment.
type ShipmentStatusChangedEvent struct {
	ShipmentID uuid.UUID            `json:"shipment_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	AWB        string               `json:"awb,omitempty"`
	From       enums.ShipmentStatus `json:"from"`
	To         enums.ShipmentStatus `json:"to"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// PayoutCreatedEvent is emitted for every payout the batch engine writes.
type PayoutCreatedEvent struct {
	PayoutID    uuid.UUID               `json:"payout_id"`
	SellerID    uuid.UUID               `json:"seller_id"`
	PeriodStart time.Time               `json:"period_start"`
	PeriodEnd   time.Time               `json:"period_end"`
	OrderCount  int                     `json:"order_count"`
	NetPayout   int64                   `json:"net_payout"`
	Status      enums.PayoutStatus      `json:"status"`
	HoldReason  *enums.PayoutHoldReason `json:"hold_reason,omitempty"`
}

// PayoutPaidEvent is emitted when an admin records the bank transfer.
type PayoutPaidEvent struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	TransactionID string    `json:"transaction_id"`
	NetPayout     int64     `json:"net_payout"`
	PaidAt        time.Time `json:"paid_at"`
}

// PayoutFailedEvent is emitted when a transfer is marked failed.
type PayoutFailedEvent struct {
	PayoutID   uuid.UUID `json:"payout_id"`
	SellerID   uuid.UUID `json:"seller_id"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count"`
}

// NotificationRequestedEvent asks the delivery pipeline to notify a user.
type NotificationRequestedEvent struct {
	UserID   uuid.UUID              `json:"user_id"`
	Role     enums.ActorRole        `json:"role"`
	Type     enums.NotificationType `json:"type"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Link     string                 `json:"link,omitempty"`
	Metadata map[string]string      `json:"metadata,omitempty"`
}

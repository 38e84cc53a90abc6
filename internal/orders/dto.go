package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// ListParams describe the admin and seller order list filters.
type ListParams struct {
	SellerID      *uuid.UUID
	BuyerID       *uuid.UUID
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	PayoutStatus  *enums.OrderPayoutStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Cursor        string
}

// ListResult wraps a page of orders plus the next cursor.
type ListResult struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderSummary is the list view of an order and its financial split.
type OrderSummary struct {
	ID               uuid.UUID               `json:"id"`
	OrderNumber      string                  `json:"order_number"`
	BuyerID          uuid.UUID               `json:"buyer_id"`
	SellerID         uuid.UUID               `json:"seller_id"`
	GatewayOrderID   string                  `json:"gateway_order_id"`
	ItemTotal        int64                   `json:"item_total"`
	ShippingCost     int64                   `json:"shipping_cost"`
	TotalAmount      int64                   `json:"total_amount"`
	CommissionRate   decimal.Decimal         `json:"commission_rate"`
	CommissionAmount int64                   `json:"commission_amount"`
	GatewayFeeAmount int64                   `json:"gateway_fee_amount"`
	SellerNetAmount  int64                   `json:"seller_net_amount"`
	PaymentStatus    enums.PaymentStatus     `json:"payment_status"`
	OrderStatus      enums.OrderStatus       `json:"order_status"`
	PayoutStatus     enums.OrderPayoutStatus `json:"payout_status"`
	PayoutID         *uuid.UUID              `json:"payout_id,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// OrderDetail adds line items, addresses and the audit trail.
type OrderDetail struct {
	OrderSummary
	GatewayPaymentID     *string             `json:"gateway_payment_id,omitempty"`
	RefundID             *string             `json:"refund_id,omitempty"`
	CouponCode           *string             `json:"coupon_code,omitempty"`
	SellerShippingCharge int64               `json:"seller_shipping_charge"`
	ShippingAddress      types.Address       `json:"shipping_address"`
	Items                []OrderItemView     `json:"items"`
	PaidAt               *time.Time          `json:"paid_at,omitempty"`
	ShippedAt            *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt          *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt          *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason         *string             `json:"cancel_reason,omitempty"`
	AllowedTransitions   []enums.OrderStatus `json:"allowed_transitions"`
	History              []HistoryEntry      `json:"history"`
}

type OrderItemView struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	LineTotal int64     `json:"line_total"`
}

type HistoryEntry struct {
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ActorID       *uuid.UUID          `json:"actor_id,omitempty"`
	ActorRole     enums.ActorRole     `json:"actor_role"`
	Note          *string             `json:"note,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toSummary(o models.Order) OrderSummary {
	return OrderSummary{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		BuyerID:          o.BuyerID,
		SellerID:         o.SellerID,
		GatewayOrderID:   o.GatewayOrderID,
		ItemTotal:        o.ItemTotal,
		ShippingCost:     o.ShippingCost,
		TotalAmount:      o.TotalAmount,
		CommissionRate:   o.CommissionRate,
		CommissionAmount: o.CommissionAmount,
		GatewayFeeAmount: o.GatewayFeeAmount,
		SellerNetAmount:  o.SellerNetAmount,
		PaymentStatus:    o.PaymentStatus,
		OrderStatus:      o.OrderStatus,
		PayoutStatus:     o.PayoutStatus,
		PayoutID:         o.PayoutID,
		CreatedAt:        o.CreatedAt,
	}
}

func toDetail(o models.Order, history []models.OrderStatusEvent) OrderDetail {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		})
	}
	entries := make([]HistoryEntry, 0, len(history))
	for _, h := range history {
		entries = append(entries, HistoryEntry{
			Status:        h.Status,
			PaymentStatus: h.PaymentStatus,
			ActorID:       h.ActorID,
			ActorRole:     h.ActorRole,
			Note:          h.Note,
			CreatedAt:     h.CreatedAt,
		})
	}
	return OrderDetail{
		OrderSummary:         toSummary(o),
		GatewayPaymentID:     o.GatewayPaymentID,
		RefundID:             o.RefundID,
		CouponCode:           o.CouponCode,
		SellerShippingCharge: o.SellerShippingCharge,
		ShippingAddress:      o.ShippingAddress,
		Items:                items,
		PaidAt:               o.PaidAt,
		ShippedAt:            o.ShippedAt,
		DeliveredAt:          o.DeliveredAt,
		CancelledAt:          o.CancelledAt,
		CancelReason:         o.CancelReason,
		AllowedTransitions:   AllowedTransitions(o.OrderStatus),
		History:              entries,
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// Order is a single-seller order. Sibling orders from one checkout share GatewayOrderID.
type Order struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber          string                  `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID              uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID             uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	CheckoutID           uuid.UUID               `gorm:"column:checkout_id;type:uuid;not null"`
	GatewayOrderID       string                  `gorm:"column:gateway_order_id;not null;index"`
	GatewayPaymentID     *string                 `gorm:"column:gateway_payment_id"`
	RefundID             *string                 `gorm:"column:refund_id"`
	CouponCode           *string                 `gorm:"column:coupon_code"`
	ShippingAddress      types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ItemTotal            int64                   `gorm:"column:item_total;not null"`
	ShippingCost         int64                   `gorm:"column:shipping_cost;not null;default:0"`
	TotalAmount          int64                   `gorm:"column:total_amount;not null"`
	CommissionRate       decimal.Decimal         `gorm:"column:commission_rate;type:numeric(6,3);not null"`
	CommissionAmount     int64                   `gorm:"column:commission_amount;not null"`
	GatewayFeeAmount     int64                   `gorm:"column:gateway_fee_amount;not null"`
	SellerNetAmount      int64                   `gorm:"column:seller_net_amount;not null"`
	SellerShippingCharge int64                   `gorm:"column:seller_shipping_charge;not null;default:0"`
	PaymentStatus        enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	OrderStatus          enums.OrderStatus       `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PayoutStatus         enums.OrderPayoutStatus `gorm:"column:payout_status;type:text;not null;default:'pending'"`
	PayoutID             *uuid.UUID              `gorm:"column:payout_id;type:uuid"`
	PaidAt               *time.Time              `gorm:"column:paid_at"`
	ShippedAt            *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt          *time.Time              `gorm:"column:delivered_at"`
	CancelledAt          *time.Time              `gorm:"column:cancelled_at"`
	CancelReason         *string                 `gorm:"column:cancel_reason"`
	Items                []OrderItem             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

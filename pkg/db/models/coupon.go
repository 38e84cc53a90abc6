package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coupon is a discount code with an optional global usage cap.
type Coupon struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code       string    `gorm:"column:code;not null;uniqueIndex"`
	UsageLimit *int      `gorm:"column:usage_limit"`
	UsedCount  int       `gorm:"column:used_count;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CouponRedemption records one use per checkout. (coupon_id, gateway_order_id) is unique.
type CouponRedemption struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CouponID       uuid.UUID `gorm:"column:coupon_id;type:uuid;not null;uniqueIndex:ux_coupon_redemptions_checkout,priority:1"`
	BuyerID        uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`
	GatewayOrderID string    `gorm:"column:gateway_order_id;not null;uniqueIndex:ux_coupon_redemptions_checkout,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *CouponRedemption) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

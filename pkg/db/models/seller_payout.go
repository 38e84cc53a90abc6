package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// SellerPayout aggregates one seller's delivered orders for a period.
type SellerPayout struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SellerID            uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	PeriodStart         time.Time               `gorm:"column:period_start;not null"`
	PeriodEnd           time.Time               `gorm:"column:period_end;not null"`
	OrderRefs           []uuid.UUID             `gorm:"column:order_refs;type:jsonb;serializer:json"`
	TotalSales          int64                   `gorm:"column:total_sales;not null"`
	CommissionDeducted  int64                   `gorm:"column:commission_deducted;not null"`
	GatewayFeesDeducted int64                   `gorm:"column:gateway_fees_deducted;not null"`
	ShippingDeducted    int64                   `gorm:"column:shipping_deducted;not null"`
	NetPayout           int64                   `gorm:"column:net_payout;not null"`
	Status              enums.PayoutStatus      `gorm:"column:status;type:text;not null;default:'pending'"`
	HoldReason          *enums.PayoutHoldReason `gorm:"column:hold_reason;type:text"`
	BankDetailsSnapshot *types.BankDetails      `gorm:"column:bank_details_snapshot;type:jsonb;serializer:json"`
	TransactionID       *string                 `gorm:"column:transaction_id"`
	PaidAt              *time.Time              `gorm:"column:paid_at"`
	FailureReason       *string                 `gorm:"column:failure_reason"`
	RetryCount          int                     `gorm:"column:retry_count;not null;default:0"`
	LinkState           enums.PayoutLinkState   `gorm:"column:link_state;type:text;not null;default:'linked'"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *SellerPayout) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

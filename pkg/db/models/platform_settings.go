package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

// PlatformSettingsID is the primary key of the singleton settings row.
const PlatformSettingsID = 1

// PlatformSettings holds the marketplace-wide financial configuration.
type PlatformSettings struct {
	ID                      int                  `gorm:"column:id;primaryKey"`
	CommissionRate          decimal.Decimal      `gorm:"column:commission_rate;type:numeric(6,3);not null"`
	NewSellerCommissionRate decimal.NullDecimal  `gorm:"column:new_seller_commission_rate;type:numeric(6,3)"`
	GrandfatherDate         *time.Time           `gorm:"column:grandfather_date"`
	GatewayFeeRate          decimal.Decimal      `gorm:"column:gateway_fee_rate;type:numeric(6,3);not null"`
	PayoutSchedule          enums.PayoutSchedule `gorm:"column:payout_schedule;type:text;not null;default:'weekly'"`
	MinimumPayoutAmount     int64                `gorm:"column:minimum_payout_amount;not null;default:0"`
	UpdatedAt               time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (PlatformSettings) TableName() string { return "platform_settings" }

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// Seller is a marketplace merchant.
type Seller struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Name               string              `gorm:"column:name;not null"`
	CommissionOverride decimal.NullDecimal `gorm:"column:commission_override;type:numeric(6,3)"`
	Bank               types.BankDetails   `gorm:"embedded;embeddedPrefix:bank_"`
	TotalSales         int64               `gorm:"column:total_sales;not null;default:0"`
	TotalOrders        int64               `gorm:"column:total_orders;not null;default:0"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Seller) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

// OrderStatusEvent is an append-only history row written alongside every order mutation.
type OrderStatusEvent struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	ActorID       *uuid.UUID          `gorm:"column:actor_id;type:uuid"`
	ActorRole     enums.ActorRole     `gorm:"column:actor_role;type:text;not null"`
	Note          *string             `gorm:"column:note"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (e *OrderStatusEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

// Shipment is the carrier-side record for exactly one order.
type Shipment struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	SellerID          uuid.UUID            `gorm:"column:seller_id;type:uuid;not null"`
	CarrierShipmentID *string              `gorm:"column:carrier_shipment_id"`
	CarrierOrderID    *string              `gorm:"column:carrier_order_id;index"`
	AWB               *string              `gorm:"column:awb;uniqueIndex"`
	CourierName       *string              `gorm:"column:courier_name"`
	Status            enums.ShipmentStatus `gorm:"column:status;type:text;not null;default:'created'"`
	LabelURL          *string              `gorm:"column:label_url"`
	EstimatedDelivery *time.Time           `gorm:"column:estimated_delivery"`
	PickupScheduledAt *time.Time           `gorm:"column:pickup_scheduled_at"`
	PickedUpAt        *time.Time           `gorm:"column:picked_up_at"`
	DeliveredAt       *time.Time           `gorm:"column:delivered_at"`
	RTOAt             *time.Time           `gorm:"column:rto_at"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shipment) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ShipmentScan is one carrier tracking entry. (shipment_id, occurred_at, description) is unique.
type ShipmentScan struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID  uuid.UUID `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex:ux_shipment_scans_dedupe,priority:1"`
	Status      string    `gorm:"column:status;not null"`
	Description string    `gorm:"column:description;not null;uniqueIndex:ux_shipment_scans_dedupe,priority:3"`
	Location    string    `gorm:"column:location"`
	OccurredAt  time.Time `gorm:"column:occurred_at;not null;uniqueIndex:ux_shipment_scans_dedupe,priority:2"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *ShipmentScan) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

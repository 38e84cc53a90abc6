package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

type shipmentResponse struct {
	ID                uuid.UUID            `json:"id"`
	OrderID           uuid.UUID            `json:"order_id"`
	AWB               *string              `json:"awb,omitempty"`
	CourierName       *string              `json:"courier_name,omitempty"`
	Status            enums.ShipmentStatus `json:"status"`
	LabelURL          *string              `json:"label_url,omitempty"`
	EstimatedDelivery *time.Time           `json:"estimated_delivery,omitempty"`
	PickedUpAt        *time.Time           `json:"picked_up_at,omitempty"`
	DeliveredAt       *time.Time           `json:"delivered_at,omitempty"`
	RTOAt             *time.Time           `json:"rto_at,omitempty"`
	Scans             []scanResponse       `json:"scans,omitempty"`
}

type scanResponse struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func newShipmentResponse(s models.Shipment, scans []models.ShipmentScan) shipmentResponse {
	resp := shipmentResponse{
		ID:                s.ID,
		OrderID:           s.OrderID,
		AWB:               s.AWB,
		CourierName:       s.CourierName,
		Status:            s.Status,
		LabelURL:          s.LabelURL,
		EstimatedDelivery: s.EstimatedDelivery,
		PickedUpAt:        s.PickedUpAt,
		DeliveredAt:       s.DeliveredAt,
		RTOAt:             s.RTOAt,
	}
	for _, scan := range scans {
		resp.Scans = append(resp.Scans, scanResponse{
			Status:      scan.Status,
			Description: scan.Description,
			Location:    scan.Location,
			OccurredAt:  scan.OccurredAt,
		})
	}
	return resp
}

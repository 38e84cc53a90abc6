package shipments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/pkg/carrier"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type carrierBooking interface {
	CreateShipment(ctx context.Context, req carrier.CreateShipmentRequest) (*carrier.CreatedShipment, error)
	AssignCourier(ctx context.Context, carrierShipmentID string) (*carrier.CourierAssignment, error)
	SchedulePickup(ctx context.Context, carrierShipmentID string) (*carrier.PickupSchedule, error)
	GenerateLabel(ctx context.Context, carrierShipmentID string) (string, error)
}

type orderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
}

// Parcel is the packed size the seller declares.
type Parcel struct {
	WeightKG  float64 `json:"weight_kg" validate:"required,gt=0"`
	LengthCM  float64 `json:"length_cm" validate:"required,gt=0"`
	BreadthCM float64 `json:"breadth_cm" validate:"required,gt=0"`
	HeightCM  float64 `json:"height_cm" validate:"required,gt=0"`
}

// BookInput asks the carrier to collect one order.
type BookInput struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
	ActorID  uuid.UUID
	Parcel   Parcel
}

// Booker hands confirmed orders to the carrier.
type Booker struct {
	repo       Repository
	ordersRepo orders.Repository
	orders     orderTransitioner
	carrier    carrierBooking
	tx         txRunner
	logg       *logger.Logger
}

func NewBooker(repo Repository, ordersRepo orders.Repository, ordersSvc orderTransitioner, carrierClient carrierBooking, tx txRunner, logg *logger.Logger) (*Booker, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("shipments repository required")
	case ordersRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case ordersSvc == nil:
		return nil, fmt.Errorf("orders service required")
	case carrierClient == nil:
		return nil, fmt.Errorf("carrier client required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Booker{repo: repo, ordersRepo: ordersRepo, orders: ordersSvc, carrier: carrierClient, tx: tx, logg: logg}, nil
}

// Book creates the carrier order, allocates an AWB and records the shipment.
// Pickup scheduling and the label are best-effort; the carrier webhook
// reports pickup either way.
func (b *Booker) Book(ctx context.Context, input BookInput) (*models.Shipment, error) {
	ctx = b.logg.WithOrderID(ctx, input.OrderID.String())
	order, err := b.ordersRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, lookupError(err, "order not found", "load order")
	}
	if order.SellerID != input.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another seller")
	}
	if order.PaymentStatus != enums.PaymentStatusPaid || order.OrderStatus != enums.OrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "only paid, confirmed orders can be booked").
			WithDetails(map[string]any{"order_status": order.OrderStatus, "payment_status": order.PaymentStatus})
	}
	if _, err := b.repo.FindByOrderID(ctx, order.ID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a shipment")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing shipment")
	}

	items := make([]carrier.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, carrier.ShipmentItem{
			Name:         item.Name,
			SKU:          item.ProductID.String(),
			Units:        item.Quantity,
			SellingPrice: item.UnitPrice,
		})
	}
	created, err := b.carrier.CreateShipment(ctx, carrier.CreateShipmentRequest{
		OrderNumber: order.OrderNumber,
		OrderDate:   order.CreatedAt,
		Address:     order.ShippingAddress,
		Items:       items,
		SubTotal:    order.ItemTotal,
		WeightKG:    input.Parcel.WeightKG,
		LengthCM:    input.Parcel.LengthCM,
		BreadthCM:   input.Parcel.BreadthCM,
		HeightCM:    input.Parcel.HeightCM,
	})
	if err != nil {
		return nil, err
	}
	assigned, err := b.carrier.AssignCourier(ctx, created.CarrierShipmentID)
	if err != nil {
		return nil, err
	}

	shipment := &models.Shipment{
		OrderID:           order.ID,
		SellerID:          order.SellerID,
		CarrierShipmentID: strPtr(created.CarrierShipmentID),
		CarrierOrderID:    strPtr(created.CarrierOrderID),
		AWB:               strPtr(assigned.AWB),
		CourierName:       strPtr(assigned.CourierName),
		Status:            enums.ShipmentStatusCreated,
	}
	if pickup, err := b.carrier.SchedulePickup(ctx, created.CarrierShipmentID); err != nil {
		b.logg.Error(ctx, "schedule pickup failed; seller can retry from the carrier panel", err)
	} else if pickup.ScheduledAt != nil {
		shipment.PickupScheduledAt = pickup.ScheduledAt
	}
	if label, err := b.carrier.GenerateLabel(ctx, created.CarrierShipmentID); err != nil {
		b.logg.Error(ctx, "generate label failed", err)
	} else {
		shipment.LabelURL = strPtr(label)
	}

	actorID := input.ActorID
	err = b.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := b.repo.WithTx(tx).Create(ctx, shipment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
		}
		_, err := b.orders.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: order.ID,
			To:      enums.OrderStatusProcessing,
			Actor:   orders.Actor{ID: &actorID, Role: enums.ActorRoleSeller},
			Note:    "shipment booked",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

package shipments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

// Repository defines persistence for shipments and their scan history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shipment *models.Shipment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error)
	FindByAWB(ctx context.Context, awb string) (*models.Shipment, error)
	FindByCarrierOrderID(ctx context.Context, carrierOrderID string) (*models.Shipment, error)
	Advance(ctx context.Context, id uuid.UUID, to enums.ShipmentStatus, at time.Time) (bool, error)
	SetEstimatedDelivery(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertScans(ctx context.Context, shipmentID uuid.UUID, scans []Scan) (int64, error)
	Scans(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentScan, error)
	FindSeller(ctx context.Context, id uuid.UUID) (*models.Seller, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, shipment *models.Shipment) error {
	return r.DB(ctx).Create(shipment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error) {
	return r.first(ctx, "order_id = ?", orderID)
}

func (r *repository) FindByAWB(ctx context.Context, awb string) (*models.Shipment, error) {
	return r.first(ctx, "awb = ?", awb)
}

func (r *repository) FindByCarrierOrderID(ctx context.Context, carrierOrderID string) (*models.Shipment, error) {
	return r.first(ctx, "carrier_order_id = ?", carrierOrderID)
}

func (r *repository) first(ctx context.Context, query string, arg any) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.DB(ctx).Where(query, arg).First(&shipment).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

// Advance moves the shipment only while its current status still precedes to.
// Milestone timestamps are written once.
func (r *repository) Advance(ctx context.Context, id uuid.UUID, to enums.ShipmentStatus, at time.Time) (bool, error) {
	from := predecessors(to)
	if len(from) == 0 {
		return false, nil
	}
	updates := map[string]any{"status": to}
	if column := milestoneColumn(to); column != "" {
		updates[column] = gorm.Expr("COALESCE("+column+", ?)", at)
	}
	return r.UpdateGuarded(ctx, &models.Shipment{}, repo.Guard{Query: "id = ? AND status IN ?", Args: []any{id, from}}, updates)
}

func milestoneColumn(status enums.ShipmentStatus) string {
	switch status {
	case enums.ShipmentStatusPickupScheduled:
		return "pickup_scheduled_at"
	case enums.ShipmentStatusPickedUp:
		return "picked_up_at"
	case enums.ShipmentStatusDelivered:
		return "delivered_at"
	case enums.ShipmentStatusRTO:
		return "rto_at"
	}
	return ""
}

func (r *repository) SetEstimatedDelivery(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Update("estimated_delivery", at).Error
}

// InsertScans appends history, skipping entries already recorded, and
// returns how many rows were new.
func (r *repository) InsertScans(ctx context.Context, shipmentID uuid.UUID, scans []Scan) (int64, error) {
	var inserted int64
	for _, s := range scans {
		row := models.ShipmentScan{
			ShipmentID:  shipmentID,
			Status:      s.Status,
			Description: s.Description,
			Location:    s.Location,
			OccurredAt:  s.OccurredAt.UTC(),
		}
		result := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return inserted, result.Error
		}
		inserted += result.RowsAffected
	}
	return inserted, nil
}

func (r *repository) Scans(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentScan, error) {
	var rows []models.ShipmentScan
	err := r.DB(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("occurred_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindSeller(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.DB(ctx).Where("id = ?", id).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

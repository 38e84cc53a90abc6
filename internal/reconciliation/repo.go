package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

// Repository runs the read-only audit queries.
type Repository interface {
	OrderTotals(ctx context.Context) ([]StatusTotal, error)
	PayoutTotals(ctx context.Context) ([]StatusTotal, error)
	OrphanOrders(ctx context.Context) ([]orphanRow, error)
	SettledOrders(ctx context.Context) ([]models.Order, error)
	Payouts(ctx context.Context) ([]models.SellerPayout, error)
	StuckOrders(ctx context.Context) ([]models.Order, error)
	DivergentShipments(ctx context.Context) ([]divergenceRow, error)
}

type orphanRow struct {
	ID           uuid.UUID
	OrderNumber  string
	SellerID     uuid.UUID
	PayoutID     *uuid.UUID
	PayoutStatus enums.OrderPayoutStatus
}

type divergenceRow struct {
	ShipmentID     uuid.UUID
	OrderID        uuid.UUID
	ShipmentStatus enums.ShipmentStatus
	OrderStatus    enums.OrderStatus
	UpdatedAt      time.Time
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) OrderTotals(ctx context.Context) ([]StatusTotal, error) {
	var rows []StatusTotal
	err := r.DB(ctx).
		Model(&models.Order{}).
		Select("payout_status AS status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount, COALESCE(SUM(seller_net_amount), 0) AS net").
		Group("payout_status").
		Order("payout_status").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) PayoutTotals(ctx context.Context) ([]StatusTotal, error) {
	var rows []StatusTotal
	err := r.DB(ctx).
		Model(&models.SellerPayout{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_sales), 0) AS amount, COALESCE(SUM(net_payout), 0) AS net").
		Group("status").
		Order("status").
		Scan(&rows).Error
	return rows, err
}

// OrphanOrders returns swept orders whose payout reference is missing or dangling.
func (r *repository) OrphanOrders(ctx context.Context) ([]orphanRow, error) {
	var rows []orphanRow
	err := r.DB(ctx).
		Table("orders AS o").
		Select("o.id, o.order_number, o.seller_id, o.payout_id, o.payout_status").
		Joins("LEFT JOIN seller_payouts AS p ON p.id = o.payout_id").
		Where("o.payout_status IN ?", []enums.OrderPayoutStatus{enums.OrderPayoutStatusIncluded, enums.OrderPayoutStatusPaid}).
		Where("o.payout_id IS NULL OR p.id IS NULL").
		Order("o.created_at ASC, o.id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) SettledOrders(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Select("id", "order_number", "seller_id", "payout_id", "payout_status", "total_amount",
			"commission_amount", "gateway_fee_amount", "seller_net_amount", "seller_shipping_charge").
		Where("payout_id IS NOT NULL").
		Order("payout_id ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Payouts(ctx context.Context) ([]models.SellerPayout, error) {
	var rows []models.SellerPayout
	err := r.DB(ctx).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// StuckOrders returns orders parked in refund_pending and cancelled orders still holding money.
func (r *repository) StuckOrders(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("payment_status = ? OR (order_status = ? AND payment_status = ?)",
			enums.PaymentStatusRefundPending, enums.OrderStatusCancelled, enums.PaymentStatusPaid).
		Order("updated_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// DivergentShipments returns shipments whose status was not projected onto the order.
func (r *repository) DivergentShipments(ctx context.Context) ([]divergenceRow, error) {
	var rows []divergenceRow
	err := r.DB(ctx).
		Table("shipments AS s").
		Select("s.id AS shipment_id, s.order_id, s.status AS shipment_status, o.order_status, s.updated_at").
		Joins("JOIN orders AS o ON o.id = s.order_id").
		Where("(s.status = ? AND o.order_status <> ?)", enums.ShipmentStatusDelivered, enums.OrderStatusDelivered).
		Or("(s.status IN ? AND o.order_status NOT IN ?)",
			[]enums.ShipmentStatus{enums.ShipmentStatusRTO, enums.ShipmentStatusCancelled},
			[]enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusRefunded}).
		Or("(s.status IN ? AND o.order_status IN ?)",
			[]enums.ShipmentStatus{enums.ShipmentStatusPickedUp, enums.ShipmentStatusInTransit, enums.ShipmentStatusOutForDelivery},
			[]enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusProcessing}).
		Order("s.updated_at ASC, s.id ASC").
		Scan(&rows).Error
	return rows, err
}

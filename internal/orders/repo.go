package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]models.Order, error)
	FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	List(ctx context.Context, params listParams) ([]models.Order, *pagination.Cursor, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateIfPaymentStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, updates map[string]any) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error)
}

type listParams struct {
	SellerID      *uuid.UUID
	BuyerID       *uuid.UUID
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	PayoutStatus  *enums.OrderPayoutStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Cursor        *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Preload("Items").
		Where("gateway_order_id = ?", gatewayOrderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// FindUnpaidBefore returns pending orders created before cutoff whose payment never landed.
func (r *repository) FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("order_status = ?", enums.OrderStatusPending).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Where("created_at < ?", cutoff).
		Order("gateway_order_id ASC, created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Order, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.Order{})
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if params.BuyerID != nil {
		query = query.Where("buyer_id = ?", *params.BuyerID)
	}
	if params.OrderStatus != nil {
		query = query.Where("order_status = ?", *params.OrderStatus)
	}
	if params.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *params.PaymentStatus)
	}
	if params.PayoutStatus != nil {
		query = query.Where("payout_status = ?", *params.PayoutStatus)
	}
	if params.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *params.CreatedFrom)
	}
	if params.CreatedTo != nil {
		query = query.Where("created_at <= ?", *params.CreatedTo)
	}
	var rows []models.Order
	if err := pagination.Seek(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(row models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	return r.UpdateGuarded(ctx, &models.Order{}, repo.Guard{Query: "id = ? AND order_status = ?", Args: []any{id, from}}, updates)
}

func (r *repository) UpdateIfPaymentStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, updates map[string]any) (bool, error) {
	return r.UpdateGuarded(ctx, &models.Order{}, repo.Guard{Query: "id = ? AND payment_status IN ?", Args: []any{id, from}}, updates)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.DB(ctx).Create(event).Error
}

func (r *repository) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error) {
	var rows []models.OrderStatusEvent
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

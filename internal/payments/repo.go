package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
)

// Repository covers the seller-side writes of a payment confirmation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSeller(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	IncrementSellerCounters(ctx context.Context, sellerID uuid.UUID, sales int64) error
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

func (r *repository) FindSeller(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.DB(ctx).Where("id = ?", id).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

// IncrementSellerCounters bumps the aggregate counters in place.
func (r *repository) IncrementSellerCounters(ctx context.Context, sellerID uuid.UUID, sales int64) error {
	return r.DB(ctx).
		Model(&models.Seller{}).
		Where("id = ?", sellerID).
		UpdateColumns(map[string]any{
			"total_sales":  gorm.Expr("total_sales + ?", sales),
			"total_orders": gorm.Expr("total_orders + 1"),
		}).Error
}

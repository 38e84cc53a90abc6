package sellers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// Repository defines persistence operations for sellers.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
	UpdateBankDetails(ctx context.Context, id uuid.UUID, bank types.BankDetails) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a sellers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.DB(ctx).Where("id = ?", id).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *repository) UpdateBankDetails(ctx context.Context, id uuid.UUID, bank types.BankDetails) error {
	result := r.DB(ctx).
		Model(&models.Seller{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"bank_account_holder": bank.AccountHolder,
			"bank_account_number": bank.AccountNumber,
			"bank_routing_code":   bank.RoutingCode,
			"bank_bank_name":      bank.BankName,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

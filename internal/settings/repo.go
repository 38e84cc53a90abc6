package settings

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
)

// Repository reads and writes the singleton settings row.
type Repository interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
	Save(ctx context.Context, row *models.PlatformSettings) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var row models.PlatformSettings
	if err := r.DB(ctx).Where("id = ?", models.PlatformSettingsID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Save(ctx context.Context, row *models.PlatformSettings) error {
	row.ID = models.PlatformSettingsID
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
}

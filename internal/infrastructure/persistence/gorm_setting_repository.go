package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/persistence/models"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// GormSettingRepository is the GORM-backed settings store.
type GormSettingRepository struct {
	db *gorm.DB
}

// NewGormSettingRepository creates the GORM setting repository.
func NewGormSettingRepository(db *gorm.DB) repository.SettingRepository {
	return &GormSettingRepository{
		db: db,
	}
}

// Get returns the setting or a not-found error.
func (r *GormSettingRepository) Get(ctx context.Context, key string) (*entity.Setting, error) {
	var model models.SettingModel
	if err := r.db.WithContext(ctx).First(&model, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("setting not found")
		}
		return nil, domainErrors.NewInternalError("failed to find setting: " + err.Error())
	}

	return r.toEntity(&model), nil
}

// GetAll returns every setting ordered by key.
func (r *GormSettingRepository) GetAll(ctx context.Context) ([]*entity.Setting, error) {
	var modelList []models.SettingModel
	if err := r.db.WithContext(ctx).Order("key").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find settings: " + err.Error())
	}

	settings := make([]*entity.Setting, 0, len(modelList))
	for i := range modelList {
		settings = append(settings, r.toEntity(&modelList[i]))
	}

	return settings, nil
}

// Set upserts one key.
func (r *GormSettingRepository) Set(ctx context.Context, key, value string) error {
	model := &models.SettingModel{Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to set setting: " + err.Error())
	}
	return nil
}

func (r *GormSettingRepository) toEntity(model *models.SettingModel) *entity.Setting {
	return &entity.Setting{
		Key:       model.Key,
		Value:     model.Value,
		UpdatedAt: model.UpdatedAt,
	}
}

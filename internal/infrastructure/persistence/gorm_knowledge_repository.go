package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/persistence/models"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// GormKnowledgeRepository is the GORM-backed knowledge base store.
type GormKnowledgeRepository struct {
	db *gorm.DB
}

// NewGormKnowledgeRepository creates the GORM knowledge repository.
func NewGormKnowledgeRepository(db *gorm.DB) repository.KnowledgeRepository {
	return &GormKnowledgeRepository{
		db: db,
	}
}

// Create inserts a new knowledge base.
func (r *GormKnowledgeRepository) Create(ctx context.Context, kb *entity.KnowledgeBase) error {
	model := r.toModel(kb)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainErrors.NewAlreadyExistsError("database already exists")
		}
		return domainErrors.NewInternalError("failed to create database: " + err.Error())
	}
	return nil
}

// FindByID returns the knowledge base or a not-found error.
func (r *GormKnowledgeRepository) FindByID(ctx context.Context, id string) (*entity.KnowledgeBase, error) {
	var model models.KnowledgeModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("database not found")
		}
		return nil, domainErrors.NewInternalError("failed to find database: " + err.Error())
	}

	return r.toEntity(&model), nil
}

// FindAll returns every knowledge base ordered by creation time.
func (r *GormKnowledgeRepository) FindAll(ctx context.Context) ([]*entity.KnowledgeBase, error) {
	var modelList []models.KnowledgeModel
	if err := r.db.WithContext(ctx).Order("created_at").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find databases: " + err.Error())
	}

	bases := make([]*entity.KnowledgeBase, 0, len(modelList))
	for i := range modelList {
		bases = append(bases, r.toEntity(&modelList[i]))
	}

	return bases, nil
}

// Update persists all mutable fields.
func (r *GormKnowledgeRepository) Update(ctx context.Context, kb *entity.KnowledgeBase) error {
	model := r.toModel(kb)
	result := r.db.WithContext(ctx).Model(&models.KnowledgeModel{}).Where("id = ?", kb.ID).
		Select("*").Omit("id", "created_at").Updates(model)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to update database: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("database not found")
	}
	return nil
}

// Delete removes the knowledge base. Callers must check for
// referencing bots first.
func (r *GormKnowledgeRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.KnowledgeModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to delete database: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("database not found")
	}
	return nil
}

func (r *GormKnowledgeRepository) toModel(kb *entity.KnowledgeBase) *models.KnowledgeModel {
	return &models.KnowledgeModel{
		ID:          kb.ID,
		Name:        kb.Name,
		Type:        kb.Type,
		Description: kb.Description,
		Content:     kb.Content,
		CreatedAt:   kb.CreatedAt,
		UpdatedAt:   kb.UpdatedAt,
	}
}

func (r *GormKnowledgeRepository) toEntity(model *models.KnowledgeModel) *entity.KnowledgeBase {
	return &entity.KnowledgeBase{
		ID:          model.ID,
		Name:        model.Name,
		Type:        model.Type,
		Description: model.Description,
		Content:     model.Content,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

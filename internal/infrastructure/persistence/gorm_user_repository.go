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

// GormUserRepository is the GORM-backed admin account store.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates the GORM user repository.
func NewGormUserRepository(db *gorm.DB) repository.UserRepository {
	return &GormUserRepository{
		db: db,
	}
}

// Create inserts a new admin user.
func (r *GormUserRepository) Create(ctx context.Context, user *entity.AdminUser) error {
	model := r.toModel(user)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainErrors.NewAlreadyExistsError("user already exists")
		}
		return domainErrors.NewInternalError("failed to create user: " + err.Error())
	}
	return nil
}

// FindByEmail returns the user or a not-found error.
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*entity.AdminUser, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("user not found")
		}
		return nil, domainErrors.NewInternalError("failed to find user: " + err.Error())
	}

	return r.toEntity(&model), nil
}

// Count reports how many admin users exist.
func (r *GormUserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count users: " + err.Error())
	}
	return count, nil
}

func (r *GormUserRepository) toModel(user *entity.AdminUser) *models.UserModel {
	return &models.UserModel{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func (r *GormUserRepository) toEntity(model *models.UserModel) *entity.AdminUser {
	return &entity.AdminUser{
		ID:           model.ID,
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

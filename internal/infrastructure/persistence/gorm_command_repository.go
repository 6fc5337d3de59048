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

// GormCommandRepository is the GORM-backed command store.
type GormCommandRepository struct {
	db *gorm.DB
}

// NewGormCommandRepository creates the GORM command repository.
func NewGormCommandRepository(db *gorm.DB) repository.CommandRepository {
	return &GormCommandRepository{
		db: db,
	}
}

// Create inserts a new command. Name must be unique within the bot.
func (r *GormCommandRepository) Create(ctx context.Context, cmd *entity.Command) error {
	model := r.toModel(cmd)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainErrors.NewAlreadyExistsError("command with this name already exists for this bot")
		}
		return domainErrors.NewInternalError("failed to create command: " + err.Error())
	}
	return nil
}

// FindByID returns the command or a not-found error.
func (r *GormCommandRepository) FindByID(ctx context.Context, id string) (*entity.Command, error) {
	var model models.CommandModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("command not found")
		}
		return nil, domainErrors.NewInternalError("failed to find command: " + err.Error())
	}

	return r.toEntity(&model), nil
}

// FindByBot returns all commands of a bot, active or not.
func (r *GormCommandRepository) FindByBot(ctx context.Context, botID string) ([]*entity.Command, error) {
	var modelList []models.CommandModel
	if err := r.db.WithContext(ctx).Where("bot_id = ?", botID).Order("created_at").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find commands: " + err.Error())
	}

	commands := make([]*entity.Command, 0, len(modelList))
	for i := range modelList {
		commands = append(commands, r.toEntity(&modelList[i]))
	}

	return commands, nil
}

// FindByBotAndName returns the command with that exact name.
func (r *GormCommandRepository) FindByBotAndName(ctx context.Context, botID, name string) (*entity.Command, error) {
	var model models.CommandModel
	if err := r.db.WithContext(ctx).First(&model, "bot_id = ? AND name = ?", botID, name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("command not found")
		}
		return nil, domainErrors.NewInternalError("failed to find command: " + err.Error())
	}

	return r.toEntity(&model), nil
}

// FindNested returns the commands belonging to a multi-command.
func (r *GormCommandRepository) FindNested(ctx context.Context, parentID string) ([]*entity.Command, error) {
	var modelList []models.CommandModel
	if err := r.db.WithContext(ctx).Where("parent_multi_command_id = ?", parentID).Order("created_at").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find nested commands: " + err.Error())
	}

	commands := make([]*entity.Command, 0, len(modelList))
	for i := range modelList {
		commands = append(commands, r.toEntity(&modelList[i]))
	}

	return commands, nil
}

// Update persists all mutable fields of the command.
func (r *GormCommandRepository) Update(ctx context.Context, cmd *entity.Command) error {
	model := r.toModel(cmd)
	result := r.db.WithContext(ctx).Model(&models.CommandModel{}).Where("id = ?", cmd.ID).
		Select("*").Omit("id", "created_at").Updates(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domainErrors.NewAlreadyExistsError("command with this name already exists for this bot")
		}
		return domainErrors.NewInternalError("failed to update command: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("command not found")
	}
	return nil
}

// Delete removes the command.
func (r *GormCommandRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.CommandModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to delete command: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("command not found")
	}
	return nil
}

func (r *GormCommandRepository) toModel(cmd *entity.Command) *models.CommandModel {
	return &models.CommandModel{
		ID:                    cmd.ID,
		BotID:                 cmd.BotID,
		Name:                  cmd.Name,
		Description:           cmd.Description,
		JSONCode:              cmd.JSONCode,
		IsActive:              cmd.IsActive,
		IsMultiCommand:        cmd.IsMultiCommand,
		ParentMultiCommandID:  cmd.ParentMultiCommandID,
		AllowExternalCommands: cmd.AllowExternalCommands,
		CreatedAt:             cmd.CreatedAt,
		UpdatedAt:             cmd.UpdatedAt,
	}
}

func (r *GormCommandRepository) toEntity(model *models.CommandModel) *entity.Command {
	return &entity.Command{
		ID:                    model.ID,
		BotID:                 model.BotID,
		Name:                  model.Name,
		Description:           model.Description,
		JSONCode:              model.JSONCode,
		IsActive:              model.IsActive,
		IsMultiCommand:        model.IsMultiCommand,
		ParentMultiCommandID:  model.ParentMultiCommandID,
		AllowExternalCommands: model.AllowExternalCommands,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
}

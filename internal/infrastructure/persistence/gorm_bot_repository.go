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

// GormBotRepository is the GORM-backed bot store.
type GormBotRepository struct {
	db *gorm.DB
}

// NewGormBotRepository creates the GORM bot repository.
func NewGormBotRepository(db *gorm.DB) repository.BotRepository {
	return &GormBotRepository{
		db: db,
	}
}

// Create inserts a new bot.
func (r *GormBotRepository) Create(ctx context.Context, bot *entity.Bot) error {
	model := r.toModel(bot)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainErrors.NewAlreadyExistsError("bot already exists")
		}
		return domainErrors.NewInternalError("failed to create bot: " + err.Error())
	}
	return nil
}

// FindByID returns the bot or a not-found error.
func (r *GormBotRepository) FindByID(ctx context.Context, id string) (*entity.Bot, error) {
	var model models.BotModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("bot not found")
		}
		return nil, domainErrors.NewInternalError("failed to find bot: " + err.Error())
	}

	return r.toEntity(&model), nil
}

// FindAll returns every bot ordered by creation time.
func (r *GormBotRepository) FindAll(ctx context.Context) ([]*entity.Bot, error) {
	var modelList []models.BotModel
	if err := r.db.WithContext(ctx).Order("created_at").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find bots: " + err.Error())
	}

	bots := make([]*entity.Bot, 0, len(modelList))
	for i := range modelList {
		bots = append(bots, r.toEntity(&modelList[i]))
	}

	return bots, nil
}

// FindRunning returns bots whose persisted running flag is set.
func (r *GormBotRepository) FindRunning(ctx context.Context) ([]*entity.Bot, error) {
	var modelList []models.BotModel
	if err := r.db.WithContext(ctx).Where("is_running = ?", true).Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find running bots: " + err.Error())
	}

	bots := make([]*entity.Bot, 0, len(modelList))
	for i := range modelList {
		bots = append(bots, r.toEntity(&modelList[i]))
	}

	return bots, nil
}

// FindByDatabaseID returns bots bound to a knowledge base.
func (r *GormBotRepository) FindByDatabaseID(ctx context.Context, databaseID string) ([]*entity.Bot, error) {
	var modelList []models.BotModel
	if err := r.db.WithContext(ctx).Where("database_id = ?", databaseID).Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find bots by database: " + err.Error())
	}

	bots := make([]*entity.Bot, 0, len(modelList))
	for i := range modelList {
		bots = append(bots, r.toEntity(&modelList[i]))
	}

	return bots, nil
}

// Update persists all mutable fields of the bot.
func (r *GormBotRepository) Update(ctx context.Context, bot *entity.Bot) error {
	model := r.toModel(bot)
	result := r.db.WithContext(ctx).Model(&models.BotModel{}).Where("id = ?", bot.ID).
		Select("*").Omit("id", "created_at").Updates(model)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to update bot: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("bot not found")
	}
	return nil
}

// UpdateRunning flips only the persisted running flag.
func (r *GormBotRepository) UpdateRunning(ctx context.Context, id string, running bool) error {
	result := r.db.WithContext(ctx).Model(&models.BotModel{}).Where("id = ?", id).
		Update("is_running", running)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to update running flag: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("bot not found")
	}
	return nil
}

// UpdateTelegramInfo stores identity discovered via getMe.
func (r *GormBotRepository) UpdateTelegramInfo(ctx context.Context, id, username, firstName string, telegramBotID int64) error {
	result := r.db.WithContext(ctx).Model(&models.BotModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"telegram_username":   username,
			"telegram_first_name": firstName,
			"telegram_bot_id":     telegramBotID,
		})
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to update telegram info: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("bot not found")
	}
	return nil
}

// Delete removes the bot together with its commands and history in one
// transaction.
func (r *GormBotRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.CommandModel{}, "bot_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.HistoryModel{}, "bot_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.BotModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainErrors.NewNotFoundError("bot not found")
		}
		return domainErrors.NewInternalError("failed to delete bot: " + err.Error())
	}
	return nil
}

// Counts reports fleet totals for the dashboard.
func (r *GormBotRepository) Counts(ctx context.Context) (repository.BotCounts, error) {
	var counts repository.BotCounts

	if err := r.db.WithContext(ctx).Model(&models.BotModel{}).Count(&counts.Total).Error; err != nil {
		return counts, domainErrors.NewInternalError("failed to count bots: " + err.Error())
	}
	if err := r.db.WithContext(ctx).Model(&models.BotModel{}).Where("is_active = ?", true).Count(&counts.Active).Error; err != nil {
		return counts, domainErrors.NewInternalError("failed to count active bots: " + err.Error())
	}
	if err := r.db.WithContext(ctx).Model(&models.BotModel{}).Where("is_running = ?", true).Count(&counts.Running).Error; err != nil {
		return counts, domainErrors.NewInternalError("failed to count running bots: " + err.Error())
	}

	return counts, nil
}

func (r *GormBotRepository) toModel(bot *entity.Bot) *models.BotModel {
	return &models.BotModel{
		ID:                  bot.ID,
		Name:                bot.Name,
		Description:         bot.Description,
		Token:               bot.Token,
		APIURL:              bot.APIURL,
		APIKey:              bot.APIKey,
		AIModel:             bot.AIModel,
		SystemPrompt:        bot.SystemPrompt,
		DatabaseID:          bot.DatabaseID,
		IsActive:            bot.IsActive,
		IsRunning:           bot.IsRunning,
		MemoryEnabled:       bot.MemoryEnabled,
		MemoryMessagesCount: bot.MemoryMessagesCount,
		TelegramUsername:    bot.TelegramUsername,
		TelegramFirstName:   bot.TelegramFirstName,
		TelegramBotID:       bot.TelegramBotID,
		CreatedAt:           bot.CreatedAt,
		UpdatedAt:           bot.UpdatedAt,
	}
}

func (r *GormBotRepository) toEntity(model *models.BotModel) *entity.Bot {
	return &entity.Bot{
		ID:                  model.ID,
		Name:                model.Name,
		Description:         model.Description,
		Token:               model.Token,
		APIURL:              model.APIURL,
		APIKey:              model.APIKey,
		AIModel:             model.AIModel,
		SystemPrompt:        model.SystemPrompt,
		DatabaseID:          model.DatabaseID,
		IsActive:            model.IsActive,
		IsRunning:           model.IsRunning,
		MemoryEnabled:       model.MemoryEnabled,
		MemoryMessagesCount: model.MemoryMessagesCount,
		TelegramUsername:    model.TelegramUsername,
		TelegramFirstName:   model.TelegramFirstName,
		TelegramBotID:       model.TelegramBotID,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
}

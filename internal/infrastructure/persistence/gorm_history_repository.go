package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/persistence/models"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// historyRetention is how many entries are kept per bot+chat pair.
// Older rows are deleted on each append.
const historyRetention = 100

// GormHistoryRepository is the GORM-backed chat history store.
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates the GORM history repository.
func NewGormHistoryRepository(db *gorm.DB) repository.HistoryRepository {
	return &GormHistoryRepository{
		db: db,
	}
}

// Append stores one exchange and prunes the bot+chat pair down to the
// retention window. Insert and prune run in one transaction so readers
// never observe more than the window plus the row being written.
func (r *GormHistoryRepository) Append(ctx context.Context, entry *entity.ChatHistoryEntry) error {
	model := r.toModel(entry)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}

		keep := tx.Model(&models.HistoryModel{}).Select("id").
			Where("bot_id = ? AND chat_id = ?", entry.BotID, entry.ChatID).
			Order("timestamp DESC").Limit(historyRetention)
		return tx.
			Where("bot_id = ? AND chat_id = ? AND id NOT IN (?)", entry.BotID, entry.ChatID, keep).
			Delete(&models.HistoryModel{}).Error
	})
	if err != nil {
		return domainErrors.NewInternalError("failed to append history: " + err.Error())
	}
	return nil
}

// FindRecent returns up to limit most recent entries for the bot+chat
// pair in chronological order.
func (r *GormHistoryRepository) FindRecent(ctx context.Context, botID, chatID string, limit int) ([]*entity.ChatHistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var modelList []models.HistoryModel
	if err := r.db.WithContext(ctx).
		Where("bot_id = ? AND chat_id = ?", botID, chatID).
		Order("timestamp DESC").Limit(limit).
		Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find history: " + err.Error())
	}

	// Query is newest first; callers want oldest first.
	entries := make([]*entity.ChatHistoryEntry, len(modelList))
	for i := range modelList {
		entries[len(modelList)-1-i] = r.toEntity(&modelList[i])
	}

	return entries, nil
}

// FindByBot returns a page of a bot's history, newest first.
func (r *GormHistoryRepository) FindByBot(ctx context.Context, botID string, limit, offset int) ([]*entity.ChatHistoryEntry, error) {
	query := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var modelList []models.HistoryModel
	if err := query.Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find history: " + err.Error())
	}

	entries := make([]*entity.ChatHistoryEntry, 0, len(modelList))
	for i := range modelList {
		entries = append(entries, r.toEntity(&modelList[i]))
	}

	return entries, nil
}

// CountByBot reports the bot's stored entry count.
func (r *GormHistoryRepository) CountByBot(ctx context.Context, botID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.HistoryModel{}).
		Where("bot_id = ?", botID).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count history: " + err.Error())
	}
	return count, nil
}

// FindSince returns all entries newer than the cutoff, any bot, in
// chronological order.
func (r *GormHistoryRepository) FindSince(ctx context.Context, since time.Time) ([]*entity.ChatHistoryEntry, error) {
	var modelList []models.HistoryModel
	if err := r.db.WithContext(ctx).
		Where("timestamp > ?", since).
		Order("timestamp").
		Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to find history: " + err.Error())
	}

	entries := make([]*entity.ChatHistoryEntry, 0, len(modelList))
	for i := range modelList {
		entries = append(entries, r.toEntity(&modelList[i]))
	}

	return entries, nil
}

// DeleteByBot removes a bot's entire history.
func (r *GormHistoryRepository) DeleteByBot(ctx context.Context, botID string) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&models.HistoryModel{}, "bot_id = ?", botID)
	if result.Error != nil {
		return 0, domainErrors.NewInternalError("failed to delete history: " + result.Error.Error())
	}
	return result.RowsAffected, nil
}

// DeleteByID removes a single entry.
func (r *GormHistoryRepository) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.HistoryModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to delete history entry: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("history entry not found")
	}
	return nil
}

func (r *GormHistoryRepository) toModel(entry *entity.ChatHistoryEntry) *models.HistoryModel {
	return &models.HistoryModel{
		ID:          entry.ID,
		BotID:       entry.BotID,
		ChatID:      entry.ChatID,
		UserMessage: entry.UserMessage,
		AIResponse:  entry.AIResponse,
		Timestamp:   entry.Timestamp,
	}
}

func (r *GormHistoryRepository) toEntity(model *models.HistoryModel) *entity.ChatHistoryEntry {
	return &entity.ChatHistoryEntry{
		ID:          model.ID,
		BotID:       model.BotID,
		ChatID:      model.ChatID,
		UserMessage: model.UserMessage,
		AIResponse:  model.AIResponse,
		Timestamp:   model.Timestamp,
	}
}

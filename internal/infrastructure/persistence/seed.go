package persistence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/infrastructure/persistence/models"
)

// Seed inserts the first-start defaults: one admin account, two example
// knowledge bases and the support assistant settings. Everything is
// written only when missing, so repeated startups never overwrite
// operator changes.
func Seed(db *gorm.DB, logger *zap.Logger) error {
	if err := seedAdminUser(db, logger); err != nil {
		return err
	}
	if err := seedExampleKnowledge(db, logger); err != nil {
		return err
	}
	return seedSupportSettings(db, logger)
}

func seedAdminUser(db *gorm.DB, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&models.UserModel{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.UserModel{
		ID:           uuid.NewString(),
		Email:        "admin@admin.com",
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.Create(user).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	logger.Info("Seeded default admin account", zap.String("email", user.Email))
	return nil
}

func seedExampleKnowledge(db *gorm.DB, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&models.KnowledgeModel{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count databases: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	examples := []models.KnowledgeModel{
		{
			ID:          uuid.NewString(),
			Name:        "Пример текстовой базы",
			Type:        entity.KnowledgeTypeText,
			Description: "Справочная информация, которую бот добавляет к системному промпту",
			Content: "Часы работы: пн-пт с 9:00 до 18:00.\n" +
				"Доставка по городу занимает 1-2 дня.\n" +
				"Телефон поддержки: +7 (900) 000-00-00.",
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          uuid.NewString(),
			Name:        "Пример JSON базы",
			Type:        entity.KnowledgeTypeJSON,
			Description: "Структурированные данные, помеченные для модели как JSON",
			Content: `{"товары":[` +
				`{"название":"Чай зелёный","цена":250,"в_наличии":true},` +
				`{"название":"Кофе зерновой","цена":900,"в_наличии":false}]}`,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := db.Create(&examples).Error; err != nil {
		return fmt.Errorf("create example databases: %w", err)
	}

	logger.Info("Seeded example knowledge bases", zap.Int("count", len(examples)))
	return nil
}

func seedSupportSettings(db *gorm.DB, logger *zap.Logger) error {
	// Connection settings stay empty until the operator fills them in;
	// the support endpoint reports that state as a clear 400 instead of
	// failing against a half-configured provider.
	now := time.Now().UTC()
	defaults := []models.SettingModel{
		{Key: entity.SettingSupportAIAPIURL, Value: "", UpdatedAt: now},
		{Key: entity.SettingSupportAIAPIKey, Value: "", UpdatedAt: now},
		{Key: entity.SettingSupportAIModel, Value: "", UpdatedAt: now},
		{
			Key: entity.SettingSupportAISystemPrompt,
			Value: "Ты — помощник технической поддержки панели управления ботами. " +
				"Помогай операторам настраивать ботов, команды и базы знаний. " +
				"Отвечай кратко и по делу.",
			UpdatedAt: now,
		},
	}

	// Existing rows win; only missing keys are inserted.
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&defaults).Error
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	logger.Debug("Support assistant settings present", zap.Int("keys", len(defaults)))
	return nil
}

package models

import "time"

// BotModel is the bots table row.
type BotModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:128;not null"`
	Description  string `gorm:"type:text"`
	Token        string `gorm:"size:128;not null"`
	APIURL       string `gorm:"column:api_url;size:512"`
	APIKey       string `gorm:"column:api_key;size:256"`
	AIModel      string `gorm:"column:ai_model;size:128"`
	SystemPrompt string `gorm:"type:text"`
	DatabaseID   string `gorm:"size:64;index"`

	IsActive  bool `gorm:"index:idx_bots_active_running,priority:1"`
	IsRunning bool `gorm:"index:idx_bots_active_running,priority:2"`

	MemoryEnabled       bool
	MemoryMessagesCount int

	TelegramUsername  string `gorm:"size:128"`
	TelegramFirstName string `gorm:"size:128"`
	TelegramBotID     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BotModel) TableName() string {
	return "bots"
}

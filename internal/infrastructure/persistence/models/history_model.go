package models

import "time"

// HistoryModel is the chat_history table row. The composite index keeps
// the per-chat window query (bot, chat, newest first) on the index.
type HistoryModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	BotID       string    `gorm:"size:64;not null;index:idx_history_bot_chat_time,priority:1"`
	ChatID      string    `gorm:"size:32;not null;index:idx_history_bot_chat_time,priority:2"`
	UserMessage string    `gorm:"type:text"`
	AIResponse  string    `gorm:"type:text"`
	Timestamp   time.Time `gorm:"index:idx_history_bot_chat_time,priority:3,sort:desc"`
}

func (HistoryModel) TableName() string {
	return "chat_history"
}

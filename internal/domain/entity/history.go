package entity

import "time"

// ChatHistoryEntry is one stored exchange: the user's message and the
// reply the bot produced for it. History is kept per bot+chat and
// pruned to a fixed window by the repository.
type ChatHistoryEntry struct {
	ID          string    `json:"id"`
	BotID       string    `json:"bot_id"`
	ChatID      string    `json:"chat_id"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Timestamp   time.Time `json:"timestamp"`
}

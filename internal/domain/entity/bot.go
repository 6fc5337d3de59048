package entity

import "time"

// Bot is the tenant unit: one Telegram identity, its LLM binding and
// its runtime flags. IsActive records operator intent; IsRunning is the
// supervisor's persisted truth and may briefly drift until the
// reconciler repairs it.
type Bot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Token        string `json:"token"`
	APIURL       string `json:"api_url"`
	APIKey       string `json:"api_key"`
	AIModel      string `json:"ai_model"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	DatabaseID   string `json:"database_id,omitempty"`

	IsActive  bool `json:"is_active"`
	IsRunning bool `json:"is_running"`

	MemoryEnabled       bool `json:"memory_enabled"`
	MemoryMessagesCount int  `json:"memory_messages_count"`

	// Discovered from Telegram getMe; empty until the first start or
	// an explicit refresh.
	TelegramUsername  string `json:"telegram_username,omitempty"`
	TelegramFirstName string `json:"telegram_first_name,omitempty"`
	TelegramBotID     int64  `json:"telegram_bot_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBot validates the required fields of a fresh bot.
func NewBot(id, name, token string) (*Bot, error) {
	if id == "" {
		return nil, ErrInvalidBotID
	}
	if name == "" {
		return nil, ErrInvalidBotName
	}
	if token == "" {
		return nil, ErrInvalidBotToken
	}
	now := time.Now().UTC()
	return &Bot{
		ID:        id,
		Name:      name,
		Token:     token,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const maxMemoryWindow = 50

// MemoryWindow returns the usable history depth: zero when memory is
// off, otherwise the configured count clamped to [0, 50].
func (b *Bot) MemoryWindow() int {
	if !b.MemoryEnabled {
		return 0
	}
	n := b.MemoryMessagesCount
	if n < 0 {
		return 0
	}
	if n > maxMemoryWindow {
		return maxMemoryWindow
	}
	return n
}

package repository

import (
	"context"

	"github.com/botforge/botforge/internal/domain/entity"
)

// BotCounts is the dashboard summary of the fleet.
type BotCounts struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Running int64 `json:"running"`
}

// BotRepository is the persistence port for bots. Defined in the
// domain layer, implemented in infrastructure.
type BotRepository interface {
	// Create inserts a new bot.
	Create(ctx context.Context, bot *entity.Bot) error

	// FindByID returns the bot or a not-found error.
	FindByID(ctx context.Context, id string) (*entity.Bot, error)

	// FindAll returns every bot ordered by creation time.
	FindAll(ctx context.Context) ([]*entity.Bot, error)

	// FindRunning returns bots whose persisted running flag is set.
	FindRunning(ctx context.Context) ([]*entity.Bot, error)

	// FindByDatabaseID returns bots bound to a knowledge base.
	FindByDatabaseID(ctx context.Context, databaseID string) ([]*entity.Bot, error)

	// Update persists all mutable fields of the bot.
	Update(ctx context.Context, bot *entity.Bot) error

	// UpdateRunning flips only the persisted running flag.
	UpdateRunning(ctx context.Context, id string, running bool) error

	// UpdateTelegramInfo stores identity discovered via getMe.
	UpdateTelegramInfo(ctx context.Context, id, username, firstName string, telegramBotID int64) error

	// Delete removes the bot; commands and history cascade.
	Delete(ctx context.Context, id string) error

	// Counts reports fleet totals for the dashboard.
	Counts(ctx context.Context) (BotCounts, error)
}

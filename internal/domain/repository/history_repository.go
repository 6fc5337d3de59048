package repository

import (
	"context"
	"time"

	"github.com/botforge/botforge/internal/domain/entity"
)

// HistoryRepository is the persistence port for chat history.
type HistoryRepository interface {
	// Append stores one exchange and prunes the bot+chat pair down to
	// its retention window, oldest rows first.
	Append(ctx context.Context, entry *entity.ChatHistoryEntry) error

	// FindRecent returns up to limit most recent entries for the
	// bot+chat pair in chronological order.
	FindRecent(ctx context.Context, botID, chatID string, limit int) ([]*entity.ChatHistoryEntry, error)

	// FindByBot returns a page of a bot's history, newest first.
	FindByBot(ctx context.Context, botID string, limit, offset int) ([]*entity.ChatHistoryEntry, error)

	// CountByBot reports the bot's stored entry count.
	CountByBot(ctx context.Context, botID string) (int64, error)

	// FindSince returns all entries newer than the cutoff, any bot.
	// Used by the dashboard to bucket message volume over time.
	FindSince(ctx context.Context, since time.Time) ([]*entity.ChatHistoryEntry, error)

	// DeleteByBot removes a bot's entire history, reporting how many
	// rows went away.
	DeleteByBot(ctx context.Context, botID string) (int64, error)

	// DeleteByID removes a single entry.
	DeleteByID(ctx context.Context, id string) error
}

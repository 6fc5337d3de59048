package repository

import (
	"context"

	"github.com/botforge/botforge/internal/domain/entity"
)

// CommandRepository is the persistence port for bot commands.
type CommandRepository interface {
	// Create inserts a new command. Name must be unique within the bot.
	Create(ctx context.Context, cmd *entity.Command) error

	// FindByID returns the command or a not-found error.
	FindByID(ctx context.Context, id string) (*entity.Command, error)

	// FindByBot returns all commands of a bot, active or not.
	FindByBot(ctx context.Context, botID string) ([]*entity.Command, error)

	// FindByBotAndName returns the command with that exact name.
	FindByBotAndName(ctx context.Context, botID, name string) (*entity.Command, error)

	// FindNested returns the commands belonging to a multi-command.
	FindNested(ctx context.Context, parentID string) ([]*entity.Command, error)

	// Update persists all mutable fields of the command.
	Update(ctx context.Context, cmd *entity.Command) error

	// Delete removes the command.
	Delete(ctx context.Context, id string) error
}

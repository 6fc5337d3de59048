package repository

import (
	"context"

	"github.com/botforge/botforge/internal/domain/entity"
)

// UserRepository is the persistence port for admin accounts.
type UserRepository interface {
	// Create inserts a new admin user.
	Create(ctx context.Context, user *entity.AdminUser) error

	// FindByEmail returns the user or a not-found error.
	FindByEmail(ctx context.Context, email string) (*entity.AdminUser, error)

	// Count reports how many admin users exist. Used at seed time.
	Count(ctx context.Context) (int64, error)
}

package repository

import (
	"context"

	"github.com/botforge/botforge/internal/domain/entity"
)

// SettingRepository is the persistence port for global settings.
type SettingRepository interface {
	// Get returns the setting or a not-found error.
	Get(ctx context.Context, key string) (*entity.Setting, error)

	// GetAll returns every setting ordered by key.
	GetAll(ctx context.Context) ([]*entity.Setting, error)

	// Set upserts one key.
	Set(ctx context.Context, key, value string) error
}

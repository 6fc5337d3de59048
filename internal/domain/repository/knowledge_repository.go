package repository

import (
	"context"

	"github.com/botforge/botforge/internal/domain/entity"
)

// KnowledgeRepository is the persistence port for knowledge bases
// (the `databases` table).
type KnowledgeRepository interface {
	// Create inserts a new knowledge base.
	Create(ctx context.Context, kb *entity.KnowledgeBase) error

	// FindByID returns the knowledge base or a not-found error.
	FindByID(ctx context.Context, id string) (*entity.KnowledgeBase, error)

	// FindAll returns every knowledge base ordered by creation time.
	FindAll(ctx context.Context) ([]*entity.KnowledgeBase, error)

	// Update persists all mutable fields.
	Update(ctx context.Context, kb *entity.KnowledgeBase) error

	// Delete removes the knowledge base. Callers must check for
	// referencing bots first.
	Delete(ctx context.Context, id string) error
}

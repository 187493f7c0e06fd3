// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides the narrow view of accounts the core needs.
// Account lifecycle belongs to the surrounding CRUD layer.
type UserRepository interface {
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// SetOnline flips the online flag and stamps last_seen_at.
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

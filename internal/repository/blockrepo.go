package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// BlockRepository stores directed block edges.
type BlockRepository interface {
	// Insert creates the edge if absent. Returns true if a new edge was created.
	Insert(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error)
	// Delete removes the edge. Returns true if an edge existed.
	Delete(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error)
	// EitherDirection reports whether an edge exists in either direction.
	EitherDirection(ctx context.Context, a, b uuid.UUID) (bool, error)
	// ListBlocked returns ids blocked by blockerID.
	ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error)
}

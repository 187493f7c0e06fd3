package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/repository"
)

// BlockNotifier is told about block edge changes after they are stored.
// The real-time gateway implements it to push you-are-blocked/unblocked events.
type BlockNotifier interface {
	NotifyBlocked(ctx context.Context, blockerID, blockedID uuid.UUID)
	NotifyUnblocked(ctx context.Context, blockerID, blockedID uuid.UUID)
}

// BlockService is the directed block registry.
type BlockService interface {
	// Block creates blockerID -> blockedID if absent.
	Block(ctx context.Context, blockerID, blockedID uuid.UUID) error
	// Unblock removes the edge and reports whether it existed.
	Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error)
	// IsEitherDirectionBlocked reports whether any edge exists between a and b.
	IsEitherDirectionBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
	// ListBlocked returns ids blocked by blockerID.
	ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error)
}

type BlockServiceImpl struct {
	repo     repository.BlockRepository
	notifier BlockNotifier
}

// NewBlockService constructs BlockService. notifier may be nil.
func NewBlockService(repo repository.BlockRepository, notifier BlockNotifier) *BlockServiceImpl {
	return &BlockServiceImpl{repo: repo, notifier: notifier}
}

// Block is idempotent; the counterpart is notified only when a new edge appears.
// Matches and messages are left untouched: blocking filters, it never destroys.
func (s *BlockServiceImpl) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	if blockerID == uuid.Nil || blockedID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if blockerID == blockedID {
		return fmt.Errorf("block self: %w", errs.ErrInvalidOperation)
	}
	created, err := s.repo.Insert(ctx, blockerID, blockedID)
	if err != nil {
		return err
	}
	if created && s.notifier != nil {
		s.notifier.NotifyBlocked(ctx, blockerID, blockedID)
	}
	return nil
}

// Unblock is idempotent.
func (s *BlockServiceImpl) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	if blockerID == uuid.Nil || blockedID == uuid.Nil {
		return false, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	existed, err := s.repo.Delete(ctx, blockerID, blockedID)
	if err != nil {
		return false, err
	}
	if existed && s.notifier != nil {
		s.notifier.NotifyUnblocked(ctx, blockerID, blockedID)
	}
	return existed, nil
}

// IsEitherDirectionBlocked delegates to the repository.
func (s *BlockServiceImpl) IsEitherDirectionBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.repo.EitherDirection(ctx, a, b)
}

// ListBlocked returns the caller's outgoing edges.
func (s *BlockServiceImpl) ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error) {
	if blockerID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	return s.repo.ListBlocked(ctx, blockerID)
}

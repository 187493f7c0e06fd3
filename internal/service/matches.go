package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/and161185/matchchat/internal/repository"
)

// DefaultMinLikeTier is the lowest tier allowed to like (top two tiers).
const DefaultMinLikeTier = model.TierPremium

// maxLikeAttempts bounds the re-read loop after a lost insert race. One retry
// always suffices with a unique pair constraint; the extra one covers a
// concurrent accept observed between reads.
const maxLikeAttempts = 3

// MatchService owns the like -> match state machine.
type MatchService interface {
	// Like records fromID's interest in toID and reports whether it completed a match.
	Like(ctx context.Context, fromID uuid.UUID, tier model.Tier, toID uuid.UUID) (matched bool, err error)
	// Dislike is advisory: validated, never mutates a record.
	Dislike(ctx context.Context, fromID, toID uuid.UUID) error
	// Status returns outgoing/incoming PENDING ids and ACCEPTED counterparts.
	Status(ctx context.Context, userID uuid.UUID) (model.MatchStatusSets, error)
	// ListAcceptedMatches returns the annotated conversation list.
	ListAcceptedMatches(ctx context.Context, userID uuid.UUID, includeBlockedByMe bool) ([]model.MatchSummary, error)
	// Peers returns the counterparts that should observe userID's presence.
	Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type MatchServiceImpl struct {
	matches repository.MatchRepository
	blocks  repository.BlockRepository
	minTier model.Tier
	newID   func() (uuid.UUID, error)
}

// NewMatchService constructs MatchService. Tiers below minTier may not like.
func NewMatchService(matches repository.MatchRepository, blocks repository.BlockRepository, minTier model.Tier) *MatchServiceImpl {
	return &MatchServiceImpl{matches: matches, blocks: blocks, minTier: minTier, newID: uuid.NewV4}
}

func (s *MatchServiceImpl) validatePair(fromID, toID uuid.UUID) error {
	if fromID == uuid.Nil || toID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if fromID == toID {
		return fmt.Errorf("like self: %w", errs.ErrForbidden)
	}
	return nil
}

// Like runs the state machine for the unordered pair {fromID, toID}:
//   - reverse PENDING -> flipped to ACCEPTED in place, matched=true
//   - no record       -> PENDING fromID -> toID, matched=false
//   - anything else   -> no-op, matched=false
//
// A conflicting insert means another request created the pair first;
// the loop re-reads and resolves against the winner's record.
func (s *MatchServiceImpl) Like(ctx context.Context, fromID uuid.UUID, tier model.Tier, toID uuid.UUID) (bool, error) {
	if tier < s.minTier {
		return false, fmt.Errorf("tier %s cannot like: %w", tier, errs.ErrForbidden)
	}
	if err := s.validatePair(fromID, toID); err != nil {
		return false, err
	}
	blocked, err := s.blocks.EitherDirection(ctx, fromID, toID)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, fmt.Errorf("blocked pair: %w", errs.ErrForbidden)
	}

	for attempt := 0; attempt < maxLikeAttempts; attempt++ {
		rec, err := s.matches.FindPair(ctx, fromID, toID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			id, err := s.newID()
			if err != nil {
				return false, err
			}
			err = s.matches.InsertPending(ctx, model.MatchRecord{ID: id, UserAID: fromID, UserBID: toID})
			if errors.Is(err, errs.ErrAlreadyExists) {
				continue
			}
			return false, err
		case err != nil:
			return false, err
		case rec.UserAID == toID && rec.Status == model.MatchPending:
			ok, err := s.matches.Accept(ctx, toID, fromID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		default:
			return false, nil
		}
	}
	return false, fmt.Errorf("like: contention on pair: %w", errs.ErrUnavailable)
}

// Dislike only validates its input; it has no effect on stored records.
func (s *MatchServiceImpl) Dislike(_ context.Context, fromID, toID uuid.UUID) error {
	return s.validatePair(fromID, toID)
}

// Status partitions the user's records by direction and status.
func (s *MatchServiceImpl) Status(ctx context.Context, userID uuid.UUID) (model.MatchStatusSets, error) {
	if userID == uuid.Nil {
		return model.MatchStatusSets{}, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	recs, err := s.matches.ListForUser(ctx, userID)
	if err != nil {
		return model.MatchStatusSets{}, err
	}
	out := model.MatchStatusSets{
		LikesSent:     []uuid.UUID{},
		LikesReceived: []uuid.UUID{},
		Matches:       []uuid.UUID{},
	}
	for _, r := range recs {
		switch {
		case r.Status == model.MatchAccepted:
			out.Matches = append(out.Matches, r.Counterpart(userID))
		case r.UserAID == userID:
			out.LikesSent = append(out.LikesSent, r.UserBID)
		default:
			out.LikesReceived = append(out.LikesReceived, r.UserAID)
		}
	}
	return out, nil
}

// ListAcceptedMatches returns accepted counterparts not separated by a block
// (or, with includeBlockedByMe, also those the caller blocked).
func (s *MatchServiceImpl) ListAcceptedMatches(ctx context.Context, userID uuid.UUID, includeBlockedByMe bool) ([]model.MatchSummary, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	return s.matches.ListAccepted(ctx, userID, includeBlockedByMe)
}

// Peers returns presence observers for userID.
func (s *MatchServiceImpl) Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.matches.Peers(ctx, userID)
}

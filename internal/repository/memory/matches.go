package memory

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Matches implements repository.MatchRepository.
type Matches struct{ s *Store }

// FindPair returns the record for the unordered pair.
func (r *Matches) FindPair(_ context.Context, a, b uuid.UUID) (*model.MatchRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.matches[pairKey(a, b)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// InsertPending fails with errs.ErrAlreadyExists if the unordered pair is taken.
func (r *Matches) InsertPending(_ context.Context, rec model.MatchRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.requireUsers(rec.UserAID, rec.UserBID); err != nil {
		return err
	}
	k := pairKey(rec.UserAID, rec.UserBID)
	if _, ok := r.s.matches[k]; ok {
		return errs.ErrAlreadyExists
	}
	now := time.Now().UTC()
	rec.Status, rec.CreatedAt, rec.UpdatedAt = model.MatchPending, now, now
	r.s.matches[k] = &rec
	return nil
}

// Accept flips PENDING userA -> userB to ACCEPTED.
func (r *Matches) Accept(_ context.Context, userAID, userBID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[pairKey(userAID, userBID)]
	if !ok || m.UserAID != userAID || m.Status != model.MatchPending {
		return false, nil
	}
	m.Status, m.UpdatedAt = model.MatchAccepted, time.Now().UTC()
	return true, nil
}

// ListForUser returns all records the user participates in, oldest first.
func (r *Matches) ListForUser(_ context.Context, userID uuid.UUID) ([]model.MatchRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.MatchRecord, 0)
	for _, m := range r.s.matches {
		if m.UserAID == userID || m.UserBID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListAccepted mirrors the SQL listing.
func (r *Matches) ListAccepted(_ context.Context, userID uuid.UUID, includeBlockedByMe bool) ([]model.MatchSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.MatchSummary, 0)
	for _, m := range r.s.matches {
		if m.Status != model.MatchAccepted || (m.UserAID != userID && m.UserBID != userID) {
			continue
		}
		cp := m.Counterpart(userID)
		if _, blockedMe := r.s.blocks[edge{cp, userID}]; blockedMe {
			continue
		}
		_, byMe := r.s.blocks[edge{userID, cp}]
		if byMe && !includeBlockedByMe {
			continue
		}
		u := r.s.users[cp]
		sum := model.MatchSummary{
			UserID: cp, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL,
			Online: u.Online, IsBlockedByMe: byMe,
		}
		if last := r.s.latest(userID, cp); last != nil {
			at := last.CreatedAt
			sum.LastMessageAt = &at
			if !last.DeletedFor(userID) {
				sum.LastMessage = last.Content
				sum.LastHasImage = last.ImageURL != nil
			}
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ai == nil && aj == nil:
			return lessID(out[i].UserID, out[j].UserID)
		case ai == nil:
			return false
		case aj == nil:
			return true
		case !ai.Equal(*aj):
			return ai.After(*aj)
		default:
			return lessID(out[i].UserID, out[j].UserID)
		}
	})
	return out, nil
}

// Peers returns accepted counterparts not separated by a block.
func (r *Matches) Peers(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]uuid.UUID, 0)
	for _, m := range r.s.matches {
		if m.Status != model.MatchAccepted || (m.UserAID != userID && m.UserBID != userID) {
			continue
		}
		cp := m.Counterpart(userID)
		if r.s.blockedEither(userID, cp) {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Messages implements repository.MessageRepository.
type Messages struct{ s *Store }

func cloneMessage(m *model.Message) model.Message {
	cp := *m
	cp.DeletedBy = append([]model.Tombstone{}, m.DeletedBy...)
	return cp
}

// newerFirst orders by (created_at, id) descending.
func newerFirst(a, b *model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return lessID(b.ID, a.ID)
}

func inPair(m *model.Message, a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// latest returns the newest message of the pair; caller holds the lock.
func (s *Store) latest(a, b uuid.UUID) *model.Message {
	var best *model.Message
	for _, m := range s.messages {
		if inPair(m, a, b) && (best == nil || newerFirst(m, best)) {
			best = m
		}
	}
	return best
}

// Insert appends with (sender, client id) duplicate suppression.
func (r *Messages) Insert(_ context.Context, msg model.Message) (model.AppendResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.requireUsers(msg.SenderID, msg.ReceiverID); err != nil {
		return model.AppendResult{}, err
	}
	if msg.ClientID != "" {
		if id, ok := r.s.byClient[clientKey{msg.SenderID, msg.ClientID}]; ok {
			return model.AppendResult{Message: cloneMessage(r.s.messages[id]), Duplicate: true}, nil
		}
	}
	if _, ok := r.s.messages[msg.ID]; ok {
		return model.AppendResult{}, errs.ErrAlreadyExists
	}
	stored := msg
	stored.DeletedBy = []model.Tombstone{}
	r.s.messages[msg.ID] = &stored
	if msg.ClientID != "" {
		r.s.byClient[clientKey{msg.SenderID, msg.ClientID}] = msg.ID
	}
	return model.AppendResult{Message: cloneMessage(&stored)}, nil
}

// Get loads a message.
func (r *Messages) Get(_ context.Context, id uuid.UUID) (*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := cloneMessage(m)
	return &cp, nil
}

// Page returns up to limit messages older than the cursor, newest first.
func (r *Messages) Page(_ context.Context, a, b uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var cursor *model.Message
	if before != nil {
		c, ok := r.s.messages[*before]
		if !ok || !inPair(c, a, b) {
			return nil, errs.ErrNotFound
		}
		cursor = c
	}
	all := make([]*model.Message, 0)
	for _, m := range r.s.messages {
		if !inPair(m, a, b) {
			continue
		}
		if cursor != nil && !newerFirst(cursor, m) {
			continue
		}
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return newerFirst(all[i], all[j]) })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]model.Message, 0, len(all))
	for _, m := range all {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

// tombstone appends userID's marker and purges once both participants deleted; lock held.
func tombstone(m *model.Message, userID uuid.UUID, at time.Time) bool {
	if m.DeletedFor(userID) {
		return false
	}
	other := m.SenderID
	if other == userID {
		other = m.ReceiverID
	}
	if m.DeletedFor(other) {
		m.Content, m.ImageURL = "", nil
	}
	m.DeletedBy = append(m.DeletedBy, model.Tombstone{UserID: userID, DeletedAt: at})
	return true
}

// Tombstone marks a message deleted for userID.
func (r *Messages) Tombstone(_ context.Context, userID, messageID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok {
		return false, errs.ErrNotFound
	}
	if !m.IsParticipant(userID) {
		return false, errs.ErrForbidden
	}
	return tombstone(m, userID, at), nil
}

// TombstoneConversation marks every message of the pair deleted for userID.
func (r *Messages) TombstoneConversation(_ context.Context, userID, counterpartID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if inPair(m, userID, counterpartID) && tombstone(m, userID, at) {
			n++
		}
	}
	return n, nil
}

// MarkRead stamps read_at once; receiver only.
func (r *Messages) MarkRead(_ context.Context, userID, messageID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok {
		return false, errs.ErrNotFound
	}
	if m.ReceiverID != userID {
		return false, errs.ErrForbidden
	}
	if m.ReadAt != nil {
		return false, nil
	}
	t := at
	m.ReadAt = &t
	return true, nil
}

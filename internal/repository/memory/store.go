// Package memory contains in-process implementations of the repository interfaces.
// They honor the same structural constraints as the PostgreSQL schema: one match record
// per unordered pair, unique (sender, client id), atomic per-row tombstone appends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

type edge struct{ from, to uuid.UUID }

// pairKey orders the two ids so {a, b} and {b, a} share a key.
func pairKey(a, b uuid.UUID) edge {
	if lessID(b, a) {
		a, b = b, a
	}
	return edge{a, b}
}

func lessID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type clientKey struct {
	sender uuid.UUID
	client string
}

// Store holds all tables behind a single mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]model.User
	blocks   map[edge]time.Time
	matches  map[edge]*model.MatchRecord // keyed by unordered pair
	messages map[uuid.UUID]*model.Message
	byClient map[clientKey]uuid.UUID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]model.User),
		blocks:   make(map[edge]time.Time),
		matches:  make(map[edge]*model.MatchRecord),
		messages: make(map[uuid.UUID]*model.Message),
		byClient: make(map[clientKey]uuid.UUID),
	}
}

// PutUser inserts or replaces a user; the surrounding CRUD layer owns accounts.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Users returns the UserRepository view.
func (s *Store) Users() *Users { return &Users{s} }

// Blocks returns the BlockRepository view.
func (s *Store) Blocks() *Blocks { return &Blocks{s} }

// Matches returns the MatchRepository view.
func (s *Store) Matches() *Matches { return &Matches{s} }

// Messages returns the MessageRepository view.
func (s *Store) Messages() *Messages { return &Messages{s} }

func (s *Store) requireUsers(ids ...uuid.UUID) error {
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			return errs.ErrNotFound
		}
	}
	return nil
}

func (s *Store) blockedEither(a, b uuid.UUID) bool {
	_, ab := s.blocks[edge{a, b}]
	_, ba := s.blocks[edge{b, a}]
	return ab || ba
}

// Users implements repository.UserRepository.
type Users struct{ s *Store }

// GetByID loads a user.
func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// SetOnline flips the presence flag.
func (r *Users) SetOnline(_ context.Context, id uuid.UUID, online bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	now := time.Now().UTC()
	u.Online, u.LastSeenAt = online, &now
	r.s.users[id] = u
	return nil
}

// Ping always succeeds.
func (r *Users) Ping(context.Context) error { return nil }

// Blocks implements repository.BlockRepository.
type Blocks struct{ s *Store }

// Insert creates the directed edge.
func (r *Blocks) Insert(_ context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.requireUsers(blockerID, blockedID); err != nil {
		return false, err
	}
	e := edge{blockerID, blockedID}
	if _, ok := r.s.blocks[e]; ok {
		return false, nil
	}
	r.s.blocks[e] = time.Now().UTC()
	return true, nil
}

// Delete removes the directed edge.
func (r *Blocks) Delete(_ context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := edge{blockerID, blockedID}
	_, ok := r.s.blocks[e]
	delete(r.s.blocks, e)
	return ok, nil
}

// EitherDirection checks both directions.
func (r *Blocks) EitherDirection(_ context.Context, a, b uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.blockedEither(a, b), nil
}

// ListBlocked returns ids blocked by blockerID, newest first.
func (r *Blocks) ListBlocked(_ context.Context, blockerID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	type item struct {
		id uuid.UUID
		at time.Time
	}
	var items []item
	for e, at := range r.s.blocks {
		if e.from == blockerID {
			items = append(items, item{e.to, at})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.After(items[j].at) })
	out := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		out = append(out, it.id)
	}
	return out, nil
}

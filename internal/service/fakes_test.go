package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/model"
	"github.com/and161185/matchchat/internal/repository"
	"github.com/and161185/matchchat/internal/repository/memory"
)

type fakeBlockRepo struct {
	insertOut bool
	insertErr error
	deleteOut bool
	deleteErr error
	eitherOut bool
	eitherErr error
}

var _ repository.BlockRepository = (*fakeBlockRepo)(nil)

func (f *fakeBlockRepo) Insert(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.insertOut, f.insertErr
}
func (f *fakeBlockRepo) Delete(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.deleteOut, f.deleteErr
}
func (f *fakeBlockRepo) EitherDirection(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.eitherOut, f.eitherErr
}
func (f *fakeBlockRepo) ListBlocked(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type notice struct {
	blocked          bool
	blocker, blockee uuid.UUID
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) NotifyBlocked(_ context.Context, blocker, blocked uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{true, blocker, blocked})
}
func (n *recordingNotifier) NotifyUnblocked(_ context.Context, blocker, blocked uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{false, blocker, blocked})
}

// fixture wires every service over one in-memory store.
type fixture struct {
	store    *memory.Store
	blocks   *BlockServiceImpl
	matches  *MatchServiceImpl
	messages *MessageServiceImpl
	notifier *recordingNotifier
}

func newFixture() *fixture {
	st := memory.New()
	n := &recordingNotifier{}
	f := &fixture{
		store:    st,
		notifier: n,
		blocks:   NewBlockService(st.Blocks(), n),
		matches:  NewMatchService(st.Matches(), st.Blocks(), DefaultMinLikeTier),
		messages: NewMessageService(st.Messages(), st.Blocks(), DefaultPageSize, 200),
	}
	// deterministic, strictly increasing clock
	var mu sync.Mutex
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.messages.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		base = base.Add(time.Millisecond)
		return base
	}
	return f
}

func (f *fixture) user(tier model.Tier) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	f.store.PutUser(model.User{ID: id, DisplayName: id.String()[:8], Tier: tier})
	return id
}

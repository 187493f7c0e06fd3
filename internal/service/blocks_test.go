package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
)

func TestBlockService_SelfBlock(t *testing.T) {
	t.Parallel()
	s := NewBlockService(&fakeBlockRepo{}, nil)
	id := uuid.Must(uuid.NewV4())
	require.ErrorIs(t, s.Block(context.Background(), id, id), errs.ErrInvalidOperation)
}

func TestBlockService_NotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)

	require.NoError(t, f.blocks.Block(ctx, a, b))
	require.NoError(t, f.blocks.Block(ctx, a, b))

	existed, err := f.blocks.Unblock(ctx, a, b)
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = f.blocks.Unblock(ctx, a, b)
	require.NoError(t, err)
	require.False(t, existed)

	require.Equal(t, []notice{{true, a, b}, {false, a, b}}, f.notifier.notices)
}

func TestBlockService_DirectionalEdgeSymmetricCheck(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)

	require.NoError(t, f.blocks.Block(ctx, a, b))
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		blocked, err := f.blocks.IsEitherDirectionBlocked(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.True(t, blocked)
	}
	out, err := f.blocks.ListBlocked(ctx, b)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBlockService_RepoErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	n := &recordingNotifier{}
	s := NewBlockService(&fakeBlockRepo{insertErr: boom}, n)
	err := s.Block(context.Background(), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, boom)
	require.Empty(t, n.notices)
}

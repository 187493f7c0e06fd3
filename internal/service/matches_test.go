package service

import (
	"context"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
)

func TestMatchService_Like_TierAndSelf(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	free, basic, vip := f.user(model.TierFree), f.user(model.TierBasic), f.user(model.TierVIP)

	_, err := f.matches.Like(ctx, free, model.TierFree, vip)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.matches.Like(ctx, basic, model.TierBasic, vip)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.matches.Like(ctx, vip, model.TierVIP, vip)
	require.ErrorIs(t, err, errs.ErrForbidden)

	matched, err := f.matches.Like(ctx, vip, model.TierVIP, basic)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestMatchService_Like_UnknownTarget(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := f.user(model.TierPremium)
	_, err := f.matches.Like(context.Background(), a, model.TierPremium, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMatchService_Scenario_LikeThenLikeBack(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierPremium), f.user(model.TierPremium)

	matched, err := f.matches.Like(ctx, a, model.TierPremium, b)
	require.NoError(t, err)
	require.False(t, matched)

	st, err := f.matches.Status(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{b}, st.LikesSent)
	require.Empty(t, st.Matches)

	stB, err := f.matches.Status(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a}, stB.LikesReceived)

	matched, err = f.matches.Like(ctx, b, model.TierPremium, a)
	require.NoError(t, err)
	require.True(t, matched)

	list, err := f.matches.ListAcceptedMatches(ctx, a, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, b, list[0].UserID)

	// The original record was reused: still A -> B.
	rec, err := f.store.Matches().FindPair(ctx, a, b)
	require.NoError(t, err)
	require.Equal(t, a, rec.UserAID)
	require.Equal(t, model.MatchAccepted, rec.Status)
}

func TestMatchService_Like_TwiceIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierVIP), f.user(model.TierVIP)

	for i := 0; i < 3; i++ {
		matched, err := f.matches.Like(ctx, a, model.TierVIP, b)
		require.NoError(t, err)
		require.False(t, matched)
	}
	recs, err := f.store.Matches().ListForUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, model.MatchPending, recs[0].Status)
}

func TestMatchService_Like_AfterAcceptedIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierVIP), f.user(model.TierVIP)

	_, err := f.matches.Like(ctx, a, model.TierVIP, b)
	require.NoError(t, err)
	_, err = f.matches.Like(ctx, b, model.TierVIP, a)
	require.NoError(t, err)

	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		matched, err := f.matches.Like(ctx, pair[0], model.TierVIP, pair[1])
		require.NoError(t, err)
		require.False(t, matched)
	}
	recs, err := f.store.Matches().ListForUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, model.MatchAccepted, recs[0].Status)
}

func TestMatchService_ConcurrentMutualLikes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		f := newFixture()
		x, y := f.user(model.TierPremium), f.user(model.TierVIP)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			matched int
		)
		for _, pair := range [][2]uuid.UUID{{x, y}, {y, x}, {x, y}, {y, x}} {
			wg.Add(1)
			go func(from, to uuid.UUID) {
				defer wg.Done()
				ok, err := f.matches.Like(ctx, from, model.TierVIP, to)
				if err != nil {
					t.Errorf("like: %v", err)
					return
				}
				if ok {
					mu.Lock()
					matched++
					mu.Unlock()
				}
			}(pair[0], pair[1])
		}
		wg.Wait()

		recs, err := f.store.Matches().ListForUser(ctx, x)
		require.NoError(t, err)
		require.Len(t, recs, 1, "round %d", round)
		require.Equal(t, model.MatchAccepted, recs[0].Status, "round %d", round)
		require.Equal(t, 1, matched, "exactly one like completes the match")
	}
}

func TestMatchService_BlockHidesMatchBothWays(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierPremium), f.user(model.TierPremium)

	_, err := f.matches.Like(ctx, a, model.TierPremium, b)
	require.NoError(t, err)
	_, err = f.matches.Like(ctx, b, model.TierPremium, a)
	require.NoError(t, err)

	require.NoError(t, f.blocks.Block(ctx, a, b))

	for _, id := range []uuid.UUID{a, b} {
		list, err := f.matches.ListAcceptedMatches(ctx, id, false)
		require.NoError(t, err)
		require.Empty(t, list)
		peers, err := f.matches.Peers(ctx, id)
		require.NoError(t, err)
		require.Empty(t, peers)
	}

	// The blocker may still see whom they blocked when asking for it.
	list, err := f.matches.ListAcceptedMatches(ctx, a, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].IsBlockedByMe)

	list, err = f.matches.ListAcceptedMatches(ctx, b, true)
	require.NoError(t, err)
	require.Empty(t, list)

	// Block filters, it does not destroy.
	_, err = f.blocks.Unblock(ctx, a, b)
	require.NoError(t, err)
	list, err = f.matches.ListAcceptedMatches(ctx, b, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.False(t, list[0].IsBlockedByMe)
}

func TestMatchService_LikeAcrossBlockForbidden(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierPremium), f.user(model.TierPremium)

	require.NoError(t, f.blocks.Block(ctx, b, a))
	_, err := f.matches.Like(ctx, a, model.TierPremium, b)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestMatchService_DislikeIsAdvisory(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierPremium), f.user(model.TierPremium)

	_, err := f.matches.Like(ctx, a, model.TierPremium, b)
	require.NoError(t, err)
	require.NoError(t, f.matches.Dislike(ctx, b, a))
	require.ErrorIs(t, f.matches.Dislike(ctx, b, b), errs.ErrForbidden)

	st, err := f.matches.Status(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a}, st.LikesReceived)
}

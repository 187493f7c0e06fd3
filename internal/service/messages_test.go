package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
)

func send(t *testing.T, f *fixture, from, to uuid.UUID, content string) model.Message {
	t.Helper()
	res, err := f.messages.Append(context.Background(), model.NewMessage{SenderID: from, ReceiverID: to, Content: content})
	require.NoError(t, err)
	return res.Message
}

func TestMessageService_Append_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)

	_, err := f.messages.Append(ctx, model.NewMessage{SenderID: a, ReceiverID: a, Content: "x"})
	require.ErrorIs(t, err, errs.ErrInvalidOperation)

	_, err = f.messages.Append(ctx, model.NewMessage{SenderID: a, ReceiverID: b, Content: "   "})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.messages.Append(ctx, model.NewMessage{SenderID: a, ReceiverID: b, Content: strings.Repeat("я", MaxContentRunes+1)})
	require.ErrorIs(t, err, errs.ErrValidation)

	img := "https://cdn/p.jpg"
	res, err := f.messages.Append(ctx, model.NewMessage{SenderID: a, ReceiverID: b, ImageURL: &img})
	require.NoError(t, err)
	require.Equal(t, img, *res.Message.ImageURL)
	require.Empty(t, res.Message.DeletedBy)
	require.Nil(t, res.Message.ReadAt)
}

func TestMessageService_Append_BlockedEitherWay(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)
	require.NoError(t, f.blocks.Block(ctx, b, a))

	_, err := f.messages.Append(ctx, model.NewMessage{SenderID: a, ReceiverID: b, Content: "hi"})
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.messages.Append(ctx, model.NewMessage{SenderID: b, ReceiverID: a, Content: "hi"})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.messages.History(ctx, a, b, nil, 0)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestMessageService_Append_RetryWithSameClientID(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)

	in := model.NewMessage{SenderID: a, ReceiverID: b, ClientID: "tmp-1", Content: "hi"}
	first, err := f.messages.Append(ctx, in)
	require.NoError(t, err)
	again, err := f.messages.Append(ctx, in)
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Equal(t, first.Message.ID, again.Message.ID)

	page, err := f.messages.History(ctx, b, a, nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
}

func TestMessageService_Scenario_SixtyMessagesTwoPages(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)

	sent := make([]uuid.UUID, 0, 60)
	for i := 0; i < 60; i++ {
		sent = append(sent, send(t, f, a, b, fmt.Sprintf("m%02d", i)).ID)
	}

	p1, err := f.messages.History(ctx, b, a, nil, 50)
	require.NoError(t, err)
	require.Len(t, p1.Messages, 50)
	require.True(t, p1.HasMore)
	require.Equal(t, "m10", p1.Messages[0].Content)
	require.Equal(t, "m59", p1.Messages[49].Content)

	cursor := p1.Messages[0].ID
	p2, err := f.messages.History(ctx, b, a, &cursor, 50)
	require.NoError(t, err)
	require.Len(t, p2.Messages, 10)
	require.False(t, p2.HasMore)

	var got []uuid.UUID
	for _, m := range append(p2.Messages, p1.Messages...) {
		got = append(got, m.ID)
	}
	require.Equal(t, sent, got)
}

func TestMessageService_HistoryPaginationStable(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)
	for i := 0; i < 23; i++ {
		from, to := a, b
		if i%3 == 0 {
			from, to = b, a
		}
		send(t, f, from, to, fmt.Sprintf("%d", i))
	}

	whole, err := f.messages.History(ctx, a, b, nil, 100)
	require.NoError(t, err)
	require.False(t, whole.HasMore)

	for _, size := range []int{1, 4, 7, 23} {
		var (
			pages  [][]model.Message
			cursor *uuid.UUID
		)
		for {
			p, err := f.messages.History(ctx, a, b, cursor, size)
			require.NoError(t, err)
			require.Equal(t, len(p.Messages) == size, p.HasMore)
			pages = append(pages, p.Messages)
			if !p.HasMore {
				break
			}
			id := p.Messages[0].ID
			cursor = &id
		}
		var joined []model.Message
		for i := len(pages) - 1; i >= 0; i-- {
			joined = append(joined, pages[i]...)
		}
		require.Equal(t, whole.Messages, joined, "size %d", size)
	}
}

func TestMessageService_History_ForeignCursor(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b, c := f.user(model.TierFree), f.user(model.TierFree), f.user(model.TierFree)
	other := send(t, f, a, c, "not yours")

	_, err := f.messages.History(ctx, a, b, &other.ID, 10)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMessageService_Scenario_TombstoneIsPerUser(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)
	m := send(t, f, a, b, "hello")

	added, err := f.messages.TombstoneMessage(ctx, a, m.ID)
	require.NoError(t, err)
	require.True(t, added)
	added, err = f.messages.TombstoneMessage(ctx, a, m.ID)
	require.NoError(t, err)
	require.False(t, added)

	pa, err := f.messages.History(ctx, a, b, nil, 0)
	require.NoError(t, err)
	require.True(t, pa.Messages[0].DeletedFor(a))

	pb, err := f.messages.History(ctx, b, a, nil, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", pb.Messages[0].Content)
	require.False(t, pb.Messages[0].DeletedFor(b))

	// Content is purged only once both sides deleted.
	_, err = f.messages.TombstoneMessage(ctx, b, m.ID)
	require.NoError(t, err)
	stored, err := f.store.Messages().Get(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Content)
}

func TestMessageService_TombstoneMessage_Stranger(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b, c := f.user(model.TierFree), f.user(model.TierFree), f.user(model.TierFree)
	m := send(t, f, a, b, "x")

	_, err := f.messages.TombstoneMessage(ctx, c, m.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.messages.TombstoneMessage(ctx, a, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMessageService_TombstoneConversation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b, c := f.user(model.TierFree), f.user(model.TierFree), f.user(model.TierFree)
	first := send(t, f, a, b, "1")
	send(t, f, b, a, "2")
	send(t, f, a, b, "3")
	send(t, f, a, c, "elsewhere")

	_, err := f.messages.TombstoneMessage(ctx, a, first.ID)
	require.NoError(t, err)

	n, err := f.messages.TombstoneConversation(ctx, a, b)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = f.messages.TombstoneConversation(ctx, a, b)
	require.NoError(t, err)
	require.Zero(t, n)

	pb, err := f.messages.History(ctx, b, a, nil, 0)
	require.NoError(t, err)
	require.Len(t, pb.Messages, 3)
	for _, m := range pb.Messages {
		require.NotEmpty(t, m.Content)
	}

	pc, err := f.messages.History(ctx, a, c, nil, 0)
	require.NoError(t, err)
	require.False(t, pc.Messages[0].DeletedFor(a))
}

func TestMessageService_ConcurrentTombstoneConversation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)
	for i := 0; i < 20; i++ {
		send(t, f, a, b, "x")
	}

	var wg sync.WaitGroup
	for _, u := range [][2]uuid.UUID{{a, b}, {b, a}, {a, b}} {
		wg.Add(1)
		go func(u, cp uuid.UUID) {
			defer wg.Done()
			if _, err := f.messages.TombstoneConversation(ctx, u, cp); err != nil {
				t.Errorf("tombstone: %v", err)
			}
		}(u[0], u[1])
	}
	wg.Wait()

	p, err := f.messages.History(ctx, a, b, nil, 0)
	require.NoError(t, err)
	for _, m := range p.Messages {
		require.Len(t, m.DeletedBy, 2)
	}
}

func TestMessageService_MarkRead(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)
	m := send(t, f, a, b, "x")

	_, err := f.messages.MarkRead(ctx, a, m.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)

	ok, err := f.messages.MarkRead(ctx, b, m.ID)
	require.NoError(t, err)
	require.True(t, ok)
	first, err := f.store.Messages().Get(ctx, m.ID)
	require.NoError(t, err)

	ok, err = f.messages.MarkRead(ctx, b, m.ID)
	require.NoError(t, err)
	require.False(t, ok)
	again, err := f.store.Messages().Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, first.ReadAt, again.ReadAt)
}

func TestMessageService_PageSizeClamped(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	a, b := f.user(model.TierFree), f.user(model.TierFree)
	for i := 0; i < 5; i++ {
		send(t, f, a, b, "x")
	}
	s := NewMessageService(f.store.Messages(), f.store.Blocks(), 2, 3)

	p, err := s.History(ctx, a, b, nil, 0)
	require.NoError(t, err)
	require.Len(t, p.Messages, 2)
	require.True(t, p.HasMore)

	p, err = s.History(ctx, a, b, nil, 1000)
	require.NoError(t, err)
	require.Len(t, p.Messages, 3)
}

func TestMessageService_BlockLookupErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("store down")
	f := newFixture()
	s := NewMessageService(f.store.Messages(), &fakeBlockRepo{eitherErr: boom}, 0, 0)
	_, err := s.Append(context.Background(), model.NewMessage{
		SenderID: uuid.Must(uuid.NewV4()), ReceiverID: uuid.Must(uuid.NewV4()), Content: "x",
	})
	require.ErrorIs(t, err, boom)
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var matchColNames = []string{"id", "user_a_id", "user_b_id", "status", "created_at", "updated_at"}

func TestMatchRepo_FindPair(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMatchRepo(db)

	id, a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()
	mock.ExpectQuery(`FROM matches\s+WHERE \(user_a_id=\$1 AND user_b_id=\$2\) OR \(user_a_id=\$2 AND user_b_id=\$1\)`).
		WithArgs(b, a).
		WillReturnRows(pgxmock.NewRows(matchColNames).AddRow(id, a, b, "PENDING", now, now))

	m, err := r.FindPair(context.Background(), b, a)
	require.NoError(t, err)
	require.Equal(t, a, m.UserAID)
	require.Equal(t, model.MatchPending, m.Status)

	mock.ExpectQuery(`FROM matches`).WithArgs(a, b).WillReturnError(pgx.ErrNoRows)
	_, err = r.FindPair(context.Background(), a, b)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMatchRepo_InsertPending_Conflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMatchRepo(db)

	rec := model.MatchRecord{ID: uuid.Must(uuid.NewV4()), UserAID: uuid.Must(uuid.NewV4()), UserBID: uuid.Must(uuid.NewV4())}
	mock.ExpectExec(`INSERT INTO matches \(id, user_a_id, user_b_id, status\)`).
		WithArgs(rec.ID, rec.UserAID, rec.UserBID).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := r.InsertPending(context.Background(), rec)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestMatchRepo_Accept(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMatchRepo(db)

	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	mock.ExpectExec(`UPDATE matches SET status='ACCEPTED', updated_at=now\(\)\s+WHERE user_a_id=\$1 AND user_b_id=\$2 AND status='PENDING'`).
		WithArgs(a, b).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE matches SET status='ACCEPTED'`).
		WithArgs(a, b).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := r.Accept(context.Background(), a, b)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Accept(context.Background(), a, b)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_ListAccepted_AppliesRequesterTombstone(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMatchRepo(db)

	me, c1, c2 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	at := time.Now()
	hello := "hello"
	secret := "secret"
	yes := true
	no := false

	cols := []string{"id", "display_name", "avatar_url", "online", "blocked_by_me", "content", "has_image", "deleted_by", "created_at"}
	mock.ExpectQuery(`WITH cp AS`).
		WithArgs(me, false).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(c1, "One", "", true, false, &hello, &no, []model.Tombstone{}, &at).
			AddRow(c2, "Two", "", false, false, &secret, &yes, []model.Tombstone{{UserID: me, DeletedAt: at}}, &at))

	out, err := r.ListAccepted(context.Background(), me, false)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "hello", out[0].LastMessage)
	require.Empty(t, out[1].LastMessage)
	require.False(t, out[1].LastHasImage)
	require.NotNil(t, out[1].LastMessageAt)
}

func TestMatchRepo_Peers(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMatchRepo(db)

	me, p := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`AS peer`).
		WithArgs(me).
		WillReturnRows(pgxmock.NewRows([]string{"peer"}).AddRow(p))

	ids, err := r.Peers(context.Background(), me)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{p}, ids)
}

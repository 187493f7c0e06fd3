package postgres

import (
	"context"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
SELECT id, display_name, avatar_url, tier, online, last_seen_at
FROM users WHERE id=$1`
	var (
		u    model.User
		tier int16
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &tier, &u.Online, &u.LastSeenAt)
	if err != nil {
		return nil, classify("get user", err)
	}
	u.Tier = model.Tier(tier)
	return &u, nil
}

// SetOnline updates the presence flag.
func (r *UserRepo) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `UPDATE users SET online=$2, last_seen_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, online)
	if err != nil {
		return classify("set online", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Ping checks connectivity to the database.
func (r *UserRepo) Ping(ctx context.Context) error {
	ctx, cancel := r.db.call(ctx)
	defer cancel()
	return classify("ping", r.db.Pool.Ping(ctx))
}

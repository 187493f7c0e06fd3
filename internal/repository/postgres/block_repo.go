package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// BlockRepo implements BlockRepository using PostgreSQL.
type BlockRepo struct{ db *DB }

// NewBlockRepo constructs a block repository.
func NewBlockRepo(db *DB) *BlockRepo { return &BlockRepo{db: db} }

// Insert creates the directed edge; an existing edge is left untouched.
func (r *BlockRepo) Insert(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1, $2)
ON CONFLICT (blocker_id, blocked_id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, blockerID, blockedID)
	if err != nil {
		return false, classify("insert block", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the directed edge.
func (r *BlockRepo) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `DELETE FROM blocks WHERE blocker_id=$1 AND blocked_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, blockerID, blockedID)
	if err != nil {
		return false, classify("delete block", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EitherDirection checks both ordered edges in one round trip.
func (r *BlockRepo) EitherDirection(ctx context.Context, a, b uuid.UUID) (bool, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
SELECT EXISTS (
  SELECT 1 FROM blocks
  WHERE (blocker_id=$1 AND blocked_id=$2) OR (blocker_id=$2 AND blocked_id=$1)
)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, a, b).Scan(&ok); err != nil {
		return false, classify("block either", err)
	}
	return ok, nil
}

// ListBlocked returns the ids blocked by blockerID, newest first.
func (r *BlockRepo) ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `SELECT blocked_id FROM blocks WHERE blocker_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, blockerID)
	if err != nil {
		return nil, classify("list blocked", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, classify("list blocked", err)
	}
	return ids, nil
}

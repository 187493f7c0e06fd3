package postgres

import (
	"context"

	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MatchRepo implements MatchRepository using PostgreSQL.
// Pair uniqueness is enforced by matches_unordered_pair_uq.
type MatchRepo struct{ db *DB }

// NewMatchRepo constructs a match repository.
func NewMatchRepo(db *DB) *MatchRepo { return &MatchRepo{db: db} }

const matchCols = `id, user_a_id, user_b_id, status, created_at, updated_at`

func scanMatch(row pgx.Row) (model.MatchRecord, error) {
	var (
		m  model.MatchRecord
		st string
	)
	err := row.Scan(&m.ID, &m.UserAID, &m.UserBID, &st, &m.CreatedAt, &m.UpdatedAt)
	m.Status = model.MatchStatus(st)
	return m, err
}

// FindPair looks the pair up in both directions.
func (r *MatchRepo) FindPair(ctx context.Context, a, b uuid.UUID) (*model.MatchRecord, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `SELECT ` + matchCols + ` FROM matches
WHERE (user_a_id=$1 AND user_b_id=$2) OR (user_a_id=$2 AND user_b_id=$1)`
	m, err := scanMatch(r.db.Pool.QueryRow(ctx, q, a, b))
	if err != nil {
		return nil, classify("find pair", err)
	}
	return &m, nil
}

// InsertPending inserts a new one-sided like. A concurrent insert for the same
// unordered pair surfaces as errs.ErrAlreadyExists.
func (r *MatchRepo) InsertPending(ctx context.Context, rec model.MatchRecord) error {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
INSERT INTO matches (id, user_a_id, user_b_id, status)
VALUES ($1, $2, $3, 'PENDING')`
	_, err := r.db.Pool.Exec(ctx, q, rec.ID, rec.UserAID, rec.UserBID)
	return classify("insert match", err)
}

// Accept is a compare-and-swap PENDING -> ACCEPTED on the ordered pair.
func (r *MatchRepo) Accept(ctx context.Context, userAID, userBID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
UPDATE matches SET status='ACCEPTED', updated_at=now()
WHERE user_a_id=$1 AND user_b_id=$2 AND status='PENDING'`
	tag, err := r.db.Pool.Exec(ctx, q, userAID, userBID)
	if err != nil {
		return false, classify("accept match", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForUser returns all records the user is part of, oldest first.
func (r *MatchRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.MatchRecord, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `SELECT ` + matchCols + ` FROM matches
WHERE user_a_id=$1 OR user_b_id=$1
ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, classify("list matches", err)
	}
	defer rows.Close()

	out := make([]model.MatchRecord, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, classify("scan match", err)
		}
		out = append(out, m)
	}
	return out, classify("list matches", rows.Err())
}

// ListAccepted joins accepted counterparts with their profile, block state and
// the latest message of the conversation.
func (r *MatchRepo) ListAccepted(ctx context.Context, userID uuid.UUID, includeBlockedByMe bool) ([]model.MatchSummary, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
WITH cp AS (
  SELECT CASE WHEN user_a_id=$1 THEN user_b_id ELSE user_a_id END AS id
  FROM matches
  WHERE status='ACCEPTED' AND (user_a_id=$1 OR user_b_id=$1)
)
SELECT u.id, u.display_name, u.avatar_url, u.online,
       EXISTS (SELECT 1 FROM blocks b WHERE b.blocker_id=$1 AND b.blocked_id=u.id) AS blocked_by_me,
       lm.content, lm.image_url IS NOT NULL, lm.deleted_by, lm.created_at
FROM cp
JOIN users u ON u.id = cp.id
LEFT JOIN LATERAL (
  SELECT m.content, m.image_url, m.deleted_by, m.created_at
  FROM messages m
  WHERE (m.sender_id=$1 AND m.receiver_id=u.id) OR (m.sender_id=u.id AND m.receiver_id=$1)
  ORDER BY m.created_at DESC, m.id DESC
  LIMIT 1
) lm ON true
WHERE NOT EXISTS (SELECT 1 FROM blocks b WHERE b.blocker_id=u.id AND b.blocked_id=$1)
  AND ($2 OR NOT EXISTS (SELECT 1 FROM blocks b WHERE b.blocker_id=$1 AND b.blocked_id=u.id))
ORDER BY lm.created_at DESC NULLS LAST, u.id`
	rows, err := r.db.Pool.Query(ctx, q, userID, includeBlockedByMe)
	if err != nil {
		return nil, classify("list accepted", err)
	}
	defer rows.Close()

	out := make([]model.MatchSummary, 0)
	for rows.Next() {
		var (
			s         model.MatchSummary
			content   *string
			hasImage  *bool
			deletedBy []model.Tombstone
		)
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.AvatarURL, &s.Online, &s.IsBlockedByMe,
			&content, &hasImage, &deletedBy, &s.LastMessageAt); err != nil {
			return nil, classify("scan accepted", err)
		}
		if !(model.Message{DeletedBy: deletedBy}).DeletedFor(userID) {
			if content != nil {
				s.LastMessage = *content
			}
			s.LastHasImage = hasImage != nil && *hasImage
		}
		out = append(out, s)
	}
	return out, classify("list accepted", rows.Err())
}

// Peers returns accepted counterparts not separated by a block.
func (r *MatchRepo) Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `
SELECT CASE WHEN m.user_a_id=$1 THEN m.user_b_id ELSE m.user_a_id END AS peer
FROM matches m
WHERE m.status='ACCEPTED' AND (m.user_a_id=$1 OR m.user_b_id=$1)
  AND NOT EXISTS (
    SELECT 1 FROM blocks b
    WHERE (b.blocker_id=m.user_a_id AND b.blocked_id=m.user_b_id)
       OR (b.blocker_id=m.user_b_id AND b.blocked_id=m.user_a_id)
  )`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, classify("peers", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, classify("peers", err)
	}
	return ids, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MessageRepo implements MessageRepository using PostgreSQL.
// Tombstones live in the deleted_by jsonb array and are appended in a single
// UPDATE so concurrent deletes by both participants never lose an entry.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

const messageCols = `id, sender_id, receiver_id, client_id, content, image_url, created_at, read_at, deleted_by`

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		m        model.Message
		clientID *string
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &clientID, &m.Content, &m.ImageURL,
		&m.CreatedAt, &m.ReadAt, &m.DeletedBy)
	if clientID != nil {
		m.ClientID = *clientID
	}
	if m.DeletedBy == nil {
		m.DeletedBy = []model.Tombstone{}
	}
	return m, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert appends the message; a repeated (sender, client id) returns the stored row.
func (r *MessageRepo) Insert(ctx context.Context, msg model.Message) (model.AppendResult, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const ins = `
INSERT INTO messages (id, sender_id, receiver_id, client_id, content, image_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sender_id, client_id) WHERE client_id IS NOT NULL DO NOTHING
RETURNING ` + messageCols
	stored, err := scanMessage(r.db.Pool.QueryRow(ctx, ins,
		msg.ID, msg.SenderID, msg.ReceiverID, nullable(msg.ClientID), msg.Content, msg.ImageURL, msg.CreatedAt))
	if err == nil {
		return model.AppendResult{Message: stored}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || msg.ClientID == "" {
		return model.AppendResult{}, classify("insert message", err)
	}

	const sel = `SELECT ` + messageCols + ` FROM messages WHERE sender_id=$1 AND client_id=$2`
	stored, err = scanMessage(r.db.Pool.QueryRow(ctx, sel, msg.SenderID, msg.ClientID))
	if err != nil {
		return model.AppendResult{}, classify("load duplicate", err)
	}
	return model.AppendResult{Message: stored, Duplicate: true}, nil
}

// Get selects a message by id.
func (r *MessageRepo) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `SELECT ` + messageCols + ` FROM messages WHERE id=$1`
	m, err := scanMessage(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, classify("get message", err)
	}
	return &m, nil
}

// Page scans the conversation backwards from the cursor (exclusive).
func (r *MessageRepo) Page(ctx context.Context, a, b uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const pair = `((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`

	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		const q = `SELECT ` + messageCols + ` FROM messages WHERE ` + pair + `
ORDER BY created_at DESC, id DESC LIMIT $3`
		rows, err = r.db.Pool.Query(ctx, q, a, b, limit)
	} else {
		const cur = `SELECT created_at FROM messages WHERE id=$3 AND ` + pair
		var at time.Time
		if err := r.db.Pool.QueryRow(ctx, cur, a, b, *before).Scan(&at); err != nil {
			return nil, classify("page cursor", err)
		}
		const q = `SELECT ` + messageCols + ` FROM messages WHERE ` + pair + `
  AND (created_at, id) < ($3, $4)
ORDER BY created_at DESC, id DESC LIMIT $5`
		rows, err = r.db.Pool.Query(ctx, q, a, b, at, *before, limit)
	}
	if err != nil {
		return nil, classify("page", err)
	}
	defer rows.Close()

	out := make([]model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, classify("scan message", err)
		}
		out = append(out, m)
	}
	return out, classify("page", rows.Err())
}

// tombstoneSet appends the caller's tombstone and purges the payload once the
// other participant's tombstone is already present.
const tombstoneSet = `
SET deleted_by = m.deleted_by || jsonb_build_array(jsonb_build_object('user_id', $1::uuid, 'deleted_at', $2::timestamptz)),
    content    = CASE WHEN m.deleted_by @> jsonb_build_array(jsonb_build_object('user_id',
                   CASE WHEN m.sender_id=$1 THEN m.receiver_id ELSE m.sender_id END))
                 THEN '' ELSE m.content END,
    image_url  = CASE WHEN m.deleted_by @> jsonb_build_array(jsonb_build_object('user_id',
                   CASE WHEN m.sender_id=$1 THEN m.receiver_id ELSE m.sender_id END))
                 THEN NULL ELSE m.image_url END`

const notTombstonedBy = `NOT m.deleted_by @> jsonb_build_array(jsonb_build_object('user_id', $1::uuid))`

// Tombstone marks the message deleted for userID.
func (r *MessageRepo) Tombstone(ctx context.Context, userID, messageID uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `UPDATE messages m` + tombstoneSet + `
WHERE m.id=$3 AND $1 IN (m.sender_id, m.receiver_id) AND ` + notTombstonedBy
	tag, err := r.db.Pool.Exec(ctx, q, userID, at, messageID)
	if err != nil {
		return false, classify("tombstone", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Nothing updated: missing, foreign, or already tombstoned by the caller.
	const chk = `SELECT sender_id, receiver_id FROM messages WHERE id=$1`
	var sender, receiver uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, chk, messageID).Scan(&sender, &receiver); err != nil {
		return false, classify("tombstone check", err)
	}
	if sender != userID && receiver != userID {
		return false, errs.ErrForbidden
	}
	return false, nil
}

// TombstoneConversation tombstones every message of the pair for userID.
// Each row is updated atomically; rows already tombstoned by userID are skipped,
// which makes a retry after partial failure safe.
func (r *MessageRepo) TombstoneConversation(ctx context.Context, userID, counterpartID uuid.UUID, at time.Time) (int64, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `UPDATE messages m` + tombstoneSet + `
WHERE ((m.sender_id=$1 AND m.receiver_id=$3) OR (m.sender_id=$3 AND m.receiver_id=$1))
  AND ` + notTombstonedBy
	tag, err := r.db.Pool.Exec(ctx, q, userID, at, counterpartID)
	if err != nil {
		return 0, classify("tombstone conversation", err)
	}
	return tag.RowsAffected(), nil
}

// MarkRead stamps read_at once; only the receiver qualifies.
func (r *MessageRepo) MarkRead(ctx context.Context, userID, messageID uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := r.db.call(ctx)
	defer cancel()

	const q = `UPDATE messages SET read_at=$3 WHERE id=$1 AND receiver_id=$2 AND read_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, messageID, userID, at)
	if err != nil {
		return false, classify("mark read", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	const chk = `SELECT sender_id, receiver_id FROM messages WHERE id=$1`
	var sender, receiver uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, chk, messageID).Scan(&sender, &receiver); err != nil {
		return false, classify("mark read check", err)
	}
	if receiver != userID {
		return false, errs.ErrForbidden
	}
	return false, nil
}

package repository

import (
	"context"
	"time"

	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MessageRepository is the append-only message log with per-participant tombstones.
type MessageRepository interface {
	// Insert appends a message. If msg.ClientID is set and the sender already stored a
	// message with the same client id, the stored message is returned with Duplicate=true.
	Insert(ctx context.Context, msg model.Message) (model.AppendResult, error)
	// Get loads a single message.
	Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// Page returns up to limit messages between a and b, newest first, strictly older than
	// the cursor message when before is not nil. Unknown or foreign cursors yield errs.ErrNotFound.
	Page(ctx context.Context, a, b uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error)
	// Tombstone atomically appends a tombstone for userID if absent and purges content once
	// both participants tombstoned it. Returns true if a tombstone was added.
	// Non-participants get errs.ErrForbidden, missing ids errs.ErrNotFound.
	Tombstone(ctx context.Context, userID, messageID uuid.UUID, at time.Time) (bool, error)
	// TombstoneConversation applies Tombstone to every message between userID and
	// counterpartID not yet tombstoned by userID. Returns the number of messages affected.
	TombstoneConversation(ctx context.Context, userID, counterpartID uuid.UUID, at time.Time) (int64, error)
	// MarkRead sets read_at once. Only the receiver may mark a message read.
	// Returns true if the timestamp was set by this call.
	MarkRead(ctx context.Context, userID, messageID uuid.UUID, at time.Time) (bool, error)
}

package repository

import (
	"context"

	"github.com/and161185/matchchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MatchRepository stores match records. Implementations must guarantee that at most one
// record exists per unordered pair and report a conflicting insert as errs.ErrAlreadyExists.
type MatchRepository interface {
	// FindPair returns the record for {a, b} in whichever direction it was created,
	// or errs.ErrNotFound.
	FindPair(ctx context.Context, a, b uuid.UUID) (*model.MatchRecord, error)
	// InsertPending creates a PENDING record userA -> userB.
	InsertPending(ctx context.Context, rec model.MatchRecord) error
	// Accept flips a PENDING record userA -> userB to ACCEPTED.
	// Returns false if no PENDING record was updated.
	Accept(ctx context.Context, userAID, userBID uuid.UUID) (bool, error)
	// ListForUser returns every record the user participates in.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.MatchRecord, error)
	// ListAccepted returns annotated accepted counterparts ordered by the latest message
	// (newest first, conversations without messages last). Counterparts who blocked userID
	// are always excluded; counterparts blocked by userID are included only if includeBlockedByMe.
	ListAccepted(ctx context.Context, userID uuid.UUID, includeBlockedByMe bool) ([]model.MatchSummary, error)
	// Peers returns accepted counterparts with no block in either direction.
	Peers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

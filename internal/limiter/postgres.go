package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PG is a PostgreSQL-backed limiter; counters survive restarts and are shared
// by every process using the same database.
type PG struct {
	pool   Querier
	policy Policy
}

// Querier is the part of a pgx pool the limiter needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, p Policy) *PG {
	return &PG{pool: q, policy: p}
}

// hitSQL updates the counter row in one statement. A running lockout is left
// alone; an expired window restarts at 1; going over budget locks the user out
// and restarts the window at 0.
const hitSQL = `
INSERT INTO send_limiter AS l (user_id, window_start, hits, blocked_until)
VALUES ($1, now(), 1, 'epoch')
ON CONFLICT (user_id) DO UPDATE SET
  window_start = CASE
      WHEN l.blocked_until > now() THEN l.window_start
      WHEN now() - l.window_start >= $2::interval THEN now()
      WHEN l.hits + 1 > $3 THEN now()
      ELSE l.window_start END,
  hits = CASE
      WHEN l.blocked_until > now() THEN l.hits
      WHEN now() - l.window_start >= $2::interval THEN 1
      WHEN l.hits + 1 > $3 THEN 0
      ELSE l.hits + 1 END,
  blocked_until = CASE
      WHEN l.blocked_until > now() THEN l.blocked_until
      WHEN now() - l.window_start < $2::interval AND l.hits + 1 > $3 THEN now() + $4::interval
      ELSE l.blocked_until END
RETURNING blocked_until, now()`

// Hit counts one send in the user's current window.
func (l *PG) Hit(ctx context.Context, userID uuid.UUID) (bool, time.Duration, error) {
	var blockedUntil, now time.Time
	err := l.pool.QueryRow(ctx, hitSQL, userID, l.policy.Window, l.policy.MaxHits, l.policy.lockout()).
		Scan(&blockedUntil, &now)
	if err != nil {
		return false, 0, err
	}
	if blockedUntil.After(now) {
		return false, blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Package limiter throttles message sends per user with a fixed window and a
// temporary lockout once the window budget is spent.
package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Limiter controls how often a user may send.
type Limiter interface {
	// Hit records one send attempt. It reports whether the attempt is allowed
	// and, when it is not, how long the caller should wait.
	Hit(ctx context.Context, userID uuid.UUID) (bool, time.Duration, error)
}

// Policy allows MaxHits sends per Window; the next one locks the user out for
// BlockFor (Window when zero).
type Policy struct {
	Window   time.Duration
	MaxHits  int
	BlockFor time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool { return p.MaxHits > 0 && p.Window > 0 }

func (p Policy) lockout() time.Duration {
	if p.BlockFor > 0 {
		return p.BlockFor
	}
	return p.Window
}

// Nop allows everything.
type Nop struct{}

// Hit always allows.
func (Nop) Hit(context.Context, uuid.UUID) (bool, time.Duration, error) { return true, 0, nil }

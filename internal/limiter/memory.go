package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

type bucket struct {
	start        time.Time
	hits         int
	blockedUntil time.Time
}

// Memory keeps counters in process.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	buckets map[uuid.UUID]*bucket
}

// NewMemory constructs an in-process limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, now: time.Now, buckets: make(map[uuid.UUID]*bucket)}
}

// Hit counts one send in the user's current window.
func (m *Memory) Hit(_ context.Context, userID uuid.UUID) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[userID]
	if !ok {
		b = &bucket{start: now}
		m.buckets[userID] = b
	}
	if b.blockedUntil.After(now) {
		return false, b.blockedUntil.Sub(now), nil
	}
	if now.Sub(b.start) >= m.policy.Window {
		b.start, b.hits = now, 0
	}
	if b.hits+1 > m.policy.MaxHits {
		lock := m.policy.lockout()
		b.start, b.hits, b.blockedUntil = now, 0, now.Add(lock)
		return false, lock, nil
	}
	b.hits++
	return true, 0, nil
}

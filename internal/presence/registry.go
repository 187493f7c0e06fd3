// Package presence keeps the per-process map of live connections.
//
// Each user has at most one registered connection. Attach and Detach run their
// callbacks under a per-user lock, so the online flag written by the callbacks
// follows the order in which connections came and went for that user.
package presence

import (
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/transport/event"
)

// Conn is a live connection handle owned by the transport.
type Conn interface {
	// Deliver queues an event without blocking; false means it was dropped.
	Deliver(ev event.Event) bool
	// Close terminates the connection.
	Close()
}

type slot struct {
	mu   sync.Mutex
	conn Conn
	refs int // callers holding or waiting on mu
}

// Registry maps user ids to their live connection.
type Registry struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[uuid.UUID]*slot)}
}

func (r *Registry) acquire(id uuid.UUID) *slot {
	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		s = &slot{}
		r.slots[id] = s
	}
	s.refs++
	r.mu.Unlock()

	s.mu.Lock()
	return s
}

func (r *Registry) release(id uuid.UUID, s *slot) {
	s.mu.Unlock()

	r.mu.Lock()
	s.refs--
	if s.refs == 0 && s.conn == nil {
		delete(r.slots, id)
	}
	r.mu.Unlock()
}

// Attach registers c for id. A previously registered connection is returned so the
// caller can close it; onOnline runs only when the user had no connection.
func (r *Registry) Attach(id uuid.UUID, c Conn, onOnline func()) (prev Conn) {
	s := r.acquire(id)
	defer r.release(id, s)

	prev = s.conn
	r.mu.Lock()
	s.conn = c
	r.mu.Unlock()
	if prev == nil && onOnline != nil {
		onOnline()
	}
	return prev
}

// Detach removes c if it is still the registered connection for id and then runs
// onOffline. A superseded connection detaches as a no-op and returns false.
func (r *Registry) Detach(id uuid.UUID, c Conn, onOffline func()) bool {
	s := r.acquire(id)
	defer r.release(id, s)

	if s.conn != c {
		return false
	}
	r.mu.Lock()
	s.conn = nil
	r.mu.Unlock()
	if onOffline != nil {
		onOffline()
	}
	return true
}

// Lookup returns the live connection for id.
func (r *Registry) Lookup(id uuid.UUID) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// Online reports which of ids currently have a live connection.
func (r *Registry) Online(ids []uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.slots[id]; ok && s.conn != nil {
			out = append(out, id)
		}
	}
	return out
}

// CloseAll closes every registered connection. Their workers detach as they exit.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.slots))
	for _, s := range r.slots {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

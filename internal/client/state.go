// Package client holds the peer-side chat state: conversations, presence and
// optimistic messages awaiting the server's acknowledgment.
package client

import (
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/convert"
	"github.com/and161185/matchchat/internal/transport/event"
)

// Status of a message in the local view.
type Status int

const (
	// StatusPending is an optimistic message not yet acknowledged.
	StatusPending Status = iota
	// StatusSent has a server-assigned id.
	StatusSent
	// StatusFailed was rejected by the server and will not be resent.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is one message as the client shows it.
type Entry struct {
	LocalID  string
	Message  convert.MessageDTO
	Status   Status
	QueuedAt time.Time
	Err      string

	seq uint64 // compose order
}

// State is safe for concurrent use by the reader loop and the UI.
type State struct {
	mu   sync.Mutex
	self uuid.UUID

	convs   map[uuid.UUID][]*Entry
	byID    map[uuid.UUID]*Entry
	byLocal map[string]*Entry

	matches     []convert.MatchDTO
	online      map[uuid.UUID]bool
	blockedBy   map[uuid.UUID]bool
	blockedByMe map[uuid.UUID]bool

	loaded bool // initial conversation list applied for the current connection
	seq    uint64

	now     func() time.Time
	localID func() string
}

// New creates an empty state for the user self.
func New(self uuid.UUID) *State {
	return &State{
		self:        self,
		convs:       make(map[uuid.UUID][]*Entry),
		byID:        make(map[uuid.UUID]*Entry),
		byLocal:     make(map[string]*Entry),
		online:      make(map[uuid.UUID]bool),
		blockedBy:   make(map[uuid.UUID]bool),
		blockedByMe: make(map[uuid.UUID]bool),
		now:         time.Now,
		localID:     func() string { return uuid.Must(uuid.NewV4()).String() },
	}
}

// Connected starts a new connection lifetime; the next conversation list is applied.
func (s *State) Connected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
}

// InitialLoadDone reports whether the conversation list arrived on this connection.
func (s *State) InitialLoadDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Compose records an optimistic message and returns the event to submit.
func (s *State) Compose(to uuid.UUID, content string, imageURL *string) event.SendMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.seq++
	e := &Entry{
		seq:     s.seq,
		LocalID: s.localID(),
		Status:  StatusPending,
		Message: convert.MessageDTO{
			SenderID:   s.self,
			ReceiverID: to,
			Content:    content,
			ImageURL:   imageURL,
			CreatedAt:  now,
		},
		QueuedAt: now,
	}
	e.Message.ClientID = e.LocalID
	s.byLocal[e.LocalID] = e
	s.convs[to] = append(s.convs[to], e)
	return sendOf(e)
}

func sendOf(e *Entry) event.SendMessage {
	return event.SendMessage{
		ClientID: e.LocalID,
		To:       e.Message.ReceiverID,
		Content:  e.Message.Content,
		ImageURL: e.Message.ImageURL,
	}
}

// Expired returns pending messages queued longer than timeout, in the order
// they were composed, ready to be submitted again under the same local id.
func (s *State) Expired(timeout time.Duration) []event.SendMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []*Entry
	for _, e := range s.byLocal {
		if e.Status == StatusPending && now.Sub(e.QueuedAt) >= timeout {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	out := make([]event.SendMessage, 0, len(due))
	for _, e := range due {
		e.QueuedAt = now
		out = append(out, sendOf(e))
	}
	return out
}

// Apply folds a server event into the state.
func (s *State) Apply(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case event.MessageSentAck:
		s.ack(e.ClientID, e.MessageID, e.CreatedAt)
	case event.ReceiveMessage:
		s.add(e.Message)
	case event.PresenceChange:
		s.online[e.UserID] = e.Online
	case event.YouAreBlocked:
		s.blockedBy[e.By] = true
	case event.YouAreUnblocked:
		delete(s.blockedBy, e.By)
	case event.Conversations:
		if s.loaded {
			return
		}
		s.loaded = true
		s.matches = append([]convert.MatchDTO(nil), e.Matches...)
		for _, m := range e.Matches {
			s.online[m.ID] = m.Online
		}
	case event.Error:
		if p, ok := s.byLocal[e.ClientID]; ok && p.Status == StatusPending {
			p.Status, p.Err = StatusFailed, e.Message
		}
	}
}

// ack swaps the local id for the server id. If the message already arrived
// through a history merge, the optimistic copy is dropped.
func (s *State) ack(localID string, id uuid.UUID, createdAt time.Time) {
	p, ok := s.byLocal[localID]
	if !ok {
		return
	}
	delete(s.byLocal, localID)
	cp := p.Message.ReceiverID
	if existing, dup := s.byID[id]; dup && existing != p {
		s.remove(cp, p)
		return
	}
	p.Message.ID = id
	p.Message.CreatedAt = createdAt
	p.Status = StatusSent
	p.Err = ""
	s.byID[id] = p
	s.sortConv(cp)
	s.touch(cp, p.Message)
}

func (s *State) counterpart(m convert.MessageDTO) uuid.UUID {
	if m.SenderID == s.self {
		return m.ReceiverID
	}
	return m.SenderID
}

// add inserts a server message unless it is already known.
func (s *State) add(m convert.MessageDTO) {
	if _, ok := s.byID[m.ID]; ok {
		return
	}
	cp := s.counterpart(m)
	if m.SenderID == s.self && m.ClientID != "" {
		if p, ok := s.byLocal[m.ClientID]; ok {
			delete(s.byLocal, m.ClientID)
			p.Message, p.Status, p.Err = m, StatusSent, ""
			s.byID[m.ID] = p
			s.sortConv(cp)
			s.touch(cp, m)
			return
		}
	}
	e := &Entry{Message: m, Status: StatusSent}
	s.byID[m.ID] = e
	s.convs[cp] = append(s.convs[cp], e)
	s.sortConv(cp)
	s.touch(cp, m)
}

// MergeHistory adds a fetched page for counterpart.
func (s *State) MergeHistory(page convert.HistoryDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range page.Messages {
		if e, ok := s.byID[m.ID]; ok {
			e.Message = m
			continue
		}
		s.add(m)
	}
}

// MarkDeleted applies the caller's own tombstone locally.
func (s *State) MarkDeleted(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		e.Message.Content, e.Message.ImageURL, e.Message.Deleted = "", nil, true
	}
}

// SetBlockedByMe records a local block or unblock.
func (s *State) SetBlockedByMe(id uuid.UUID, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blocked {
		s.blockedByMe[id] = true
	} else {
		delete(s.blockedByMe, id)
	}
}

func (s *State) hidden(id uuid.UUID) bool {
	return s.blockedBy[id] || s.blockedByMe[id]
}

// Conversations returns the visible conversation list, most recent first.
func (s *State) Conversations() []convert.MatchDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]convert.MatchDTO, 0, len(s.matches))
	for _, m := range s.matches {
		if s.hidden(m.ID) {
			continue
		}
		m.Online = s.online[m.ID]
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
	return out
}

// Conversation returns the messages exchanged with counterpart, oldest first.
// A blocked conversation is empty.
func (s *State) Conversation(counterpart uuid.UUID) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hidden(counterpart) {
		return nil
	}
	src := s.convs[counterpart]
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = *e
	}
	return out
}

// OldestID is the cursor for the next older history page.
func (s *State) OldestID(counterpart uuid.UUID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.convs[counterpart] {
		if e.Status != StatusPending && e.Message.ID != uuid.Nil {
			return e.Message.ID, true
		}
	}
	return uuid.Nil, false
}

// Online reports the last known presence of id.
func (s *State) Online(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[id]
}

// Pending returns how many messages await acknowledgment.
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byLocal {
		if e.Status == StatusPending {
			n++
		}
	}
	return n
}

// sortConv orders confirmed messages by (createdAt, id) and keeps optimistic
// ones after them in submission order.
func (s *State) sortConv(cp uuid.UUID) {
	list := s.convs[cp]
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		ap, bp := a.Status == StatusPending, b.Status == StatusPending
		if ap != bp {
			return bp
		}
		if ap {
			return false
		}
		if !a.Message.CreatedAt.Equal(b.Message.CreatedAt) {
			return a.Message.CreatedAt.Before(b.Message.CreatedAt)
		}
		return a.Message.ID.String() < b.Message.ID.String()
	})
}

func (s *State) remove(cp uuid.UUID, target *Entry) {
	list := s.convs[cp]
	for i, e := range list {
		if e == target {
			s.convs[cp] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// touch refreshes the conversation list preview.
func (s *State) touch(cp uuid.UUID, m convert.MessageDTO) {
	for i := range s.matches {
		if s.matches[i].ID != cp {
			continue
		}
		if s.matches[i].LastMessageAt != nil && s.matches[i].LastMessageAt.After(m.CreatedAt) {
			return
		}
		at := m.CreatedAt
		s.matches[i].LastMessageAt = &at
		s.matches[i].LastMessagePreview = m.Content
		s.matches[i].LastMessageHasImage = m.ImageURL != nil
		return
	}
}

// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tier is a subscription tier. Higher values are higher tiers.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPremium
	TierVIP
)

var tierNames = [...]string{"free", "basic", "premium", "vip"}

// String returns the lowercase tier name.
func (t Tier) String() string {
	if t < TierFree || t > TierVIP {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier parses a tier name (case-insensitive).
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == s {
			return Tier(i), nil
		}
	}
	return TierFree, fmt.Errorf("unknown tier %q", s)
}

// User is the subset of the account record the core reads and writes.
type User struct {
	ID          uuid.UUID
	DisplayName string
	AvatarURL   string
	Tier        Tier
	Online      bool
	LastSeenAt  *time.Time
}

// MatchStatus is the state of a match record.
type MatchStatus string

const (
	MatchPending  MatchStatus = "PENDING"
	MatchAccepted MatchStatus = "ACCEPTED"
)

// MatchRecord is unique per unordered pair; UserAID is the initiator of the first like.
type MatchRecord struct {
	ID        uuid.UUID
	UserAID   uuid.UUID
	UserBID   uuid.UUID
	Status    MatchStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Counterpart returns the other side of the record relative to userID.
func (m MatchRecord) Counterpart(userID uuid.UUID) uuid.UUID {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

// MatchStatusSets groups a user's match records by direction and status.
type MatchStatusSets struct {
	LikesSent     []uuid.UUID // outgoing PENDING
	LikesReceived []uuid.UUID // incoming PENDING
	Matches       []uuid.UUID // ACCEPTED, either direction
}

// MatchSummary is an accepted counterpart annotated for the conversation list.
type MatchSummary struct {
	UserID        uuid.UUID
	DisplayName   string
	AvatarURL     string
	Online        bool
	IsBlockedByMe bool
	LastMessage   string     // empty if none or tombstoned by the requester
	LastHasImage  bool       // last message carries an image
	LastMessageAt *time.Time // nil when the conversation has no messages
}

// Tombstone marks a message as deleted for a single participant.
type Tombstone struct {
	UserID    uuid.UUID `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Message is a single chat message between two users.
type Message struct {
	ID         uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	ClientID   string // client-local id used for duplicate suppression, optional
	Content    string
	ImageURL   *string
	CreatedAt  time.Time
	ReadAt     *time.Time
	DeletedBy  []Tombstone
}

// DeletedFor reports whether userID tombstoned the message.
func (m Message) DeletedFor(userID uuid.UUID) bool {
	for _, t := range m.DeletedBy {
		if t.UserID == userID {
			return true
		}
	}
	return false
}

// IsParticipant reports whether userID is the sender or the receiver.
func (m Message) IsParticipant(userID uuid.UUID) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// NewMessage is an append intent.
type NewMessage struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	ClientID   string
	Content    string
	ImageURL   *string
}

// AppendResult reports the stored message and whether it was a retried duplicate.
type AppendResult struct {
	Message   Message
	Duplicate bool
}

// HistoryPage is a chronologically ordered page of a conversation.
type HistoryPage struct {
	Messages []Message // oldest -> newest
	HasMore  bool
}

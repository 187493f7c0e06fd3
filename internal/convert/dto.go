// Package convert maps domain entities to wire DTOs shared by the REST API and
// the real-time transport.
package convert

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/model"
)

// MessageDTO is a message as seen by one participant.
type MessageDTO struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"senderId"`
	ReceiverID uuid.UUID  `json:"receiverId"`
	ClientID   string     `json:"clientId,omitempty"`
	Content    string     `json:"content"`
	ImageURL   *string    `json:"imageUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	Deleted    bool       `json:"deleted"` // tombstoned by the viewer
}

// MatchDTO is one entry of the conversation list.
type MatchDTO struct {
	ID                  uuid.UUID  `json:"id"`
	DisplayName         string     `json:"displayName"`
	AvatarURL           string     `json:"avatarUrl,omitempty"`
	Online              bool       `json:"online"`
	IsBlockedByMe       bool       `json:"isBlockedByMe"`
	LastMessagePreview  string     `json:"lastMessagePreview"`
	LastMessageHasImage bool       `json:"lastMessageHasImage"`
	LastMessageAt       *time.Time `json:"lastMessageAt"`
}

// StatusDTO is the match status response.
type StatusDTO struct {
	LikesSent     []uuid.UUID `json:"likesSent"`
	LikesReceived []uuid.UUID `json:"likesReceived"`
	Matches       []uuid.UUID `json:"matches"`
}

// HistoryDTO is one history page.
type HistoryDTO struct {
	Messages []MessageDTO `json:"messages"`
	HasMore  bool         `json:"hasMore"`
}

// ToMessageDTO renders m for viewer. Messages the viewer tombstoned stay in place
// as placeholders with their payload cleared so client ordering and counts are stable.
func ToMessageDTO(m model.Message, viewer uuid.UUID) MessageDTO {
	d := MessageDTO{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
		ReadAt:     m.ReadAt,
	}
	if m.SenderID == viewer {
		d.ClientID = m.ClientID
	}
	if m.DeletedFor(viewer) {
		d.Content, d.ImageURL, d.Deleted = "", nil, true
	}
	return d
}

// ToHistoryDTO renders a history page for viewer.
func ToHistoryDTO(p model.HistoryPage, viewer uuid.UUID) HistoryDTO {
	out := HistoryDTO{Messages: make([]MessageDTO, 0, len(p.Messages)), HasMore: p.HasMore}
	for _, m := range p.Messages {
		out.Messages = append(out.Messages, ToMessageDTO(m, viewer))
	}
	return out
}

// ToMatchDTOs renders the conversation list.
func ToMatchDTOs(in []model.MatchSummary) []MatchDTO {
	out := make([]MatchDTO, 0, len(in))
	for _, s := range in {
		out = append(out, MatchDTO{
			ID:                  s.UserID,
			DisplayName:         s.DisplayName,
			AvatarURL:           s.AvatarURL,
			Online:              s.Online,
			IsBlockedByMe:       s.IsBlockedByMe,
			LastMessagePreview:  s.LastMessage,
			LastMessageHasImage: s.LastHasImage,
			LastMessageAt:       s.LastMessageAt,
		})
	}
	return out
}

// ToStatusDTO renders match status sets.
func ToStatusDTO(s model.MatchStatusSets) StatusDTO {
	nz := func(ids []uuid.UUID) []uuid.UUID {
		if ids == nil {
			return []uuid.UUID{}
		}
		return ids
	}
	return StatusDTO{
		LikesSent:     nz(s.LikesSent),
		LikesReceived: nz(s.LikesReceived),
		Matches:       nz(s.Matches),
	}
}

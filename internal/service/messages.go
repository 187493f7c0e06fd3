package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
	"github.com/and161185/matchchat/internal/repository"
)

const (
	// DefaultPageSize is used when the caller does not pass a page size.
	DefaultPageSize = 50
	// MaxContentRunes caps a single message body.
	MaxContentRunes = 4000
	// MaxClientIDLen caps client-local ids.
	MaxClientIDLen = 64
)

// MessageService is the append-only message log with per-participant tombstones.
type MessageService interface {
	// Append stores a message; retries carrying the same client id return the original.
	Append(ctx context.Context, in model.NewMessage) (model.AppendResult, error)
	// History returns one page of the conversation in chronological order.
	History(ctx context.Context, requesterID, counterpartID uuid.UUID, before *uuid.UUID, pageSize int) (model.HistoryPage, error)
	// TombstoneMessage hides one message for userID.
	TombstoneMessage(ctx context.Context, userID, messageID uuid.UUID) (bool, error)
	// TombstoneConversation hides every message of the pair for userID.
	TombstoneConversation(ctx context.Context, userID, counterpartID uuid.UUID) (int64, error)
	// MarkRead sets the read timestamp once.
	MarkRead(ctx context.Context, userID, messageID uuid.UUID) (bool, error)
}

type MessageServiceImpl struct {
	messages    repository.MessageRepository
	blocks      repository.BlockRepository
	defaultPage int
	maxPage     int
	now         func() time.Time
	newID       func() (uuid.UUID, error)
}

// NewMessageService constructs MessageService with paging limits.
func NewMessageService(messages repository.MessageRepository, blocks repository.BlockRepository, defaultPage, maxPage int) *MessageServiceImpl {
	if defaultPage <= 0 {
		defaultPage = DefaultPageSize
	}
	if maxPage < defaultPage {
		maxPage = defaultPage
	}
	return &MessageServiceImpl{
		messages:    messages,
		blocks:      blocks,
		defaultPage: defaultPage,
		maxPage:     maxPage,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewV7,
	}
}

func (s *MessageServiceImpl) ensureNotBlocked(ctx context.Context, a, b uuid.UUID) error {
	blocked, err := s.blocks.EitherDirection(ctx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("blocked pair: %w", errs.ErrForbidden)
	}
	return nil
}

func validatePair(a, b uuid.UUID) error {
	if a == uuid.Nil || b == uuid.Nil {
		return fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if a == b {
		return fmt.Errorf("conversation with self: %w", errs.ErrInvalidOperation)
	}
	return nil
}

// Append validates and persists a new message.
// Validation rules:
// - sender and receiver set and distinct
// - content or image present, content at most MaxContentRunes
// - client id at most MaxClientIDLen
func (s *MessageServiceImpl) Append(ctx context.Context, in model.NewMessage) (model.AppendResult, error) {
	if err := validatePair(in.SenderID, in.ReceiverID); err != nil {
		return model.AppendResult{}, err
	}
	hasImage := in.ImageURL != nil && strings.TrimSpace(*in.ImageURL) != ""
	if strings.TrimSpace(in.Content) == "" && !hasImage {
		return model.AppendResult{}, fmt.Errorf("%w: empty message", errs.ErrValidation)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentRunes {
		return model.AppendResult{}, fmt.Errorf("%w: content too long", errs.ErrValidation)
	}
	if len(in.ClientID) > MaxClientIDLen {
		return model.AppendResult{}, fmt.Errorf("%w: client id too long", errs.ErrValidation)
	}
	if !hasImage {
		in.ImageURL = nil
	}
	if err := s.ensureNotBlocked(ctx, in.SenderID, in.ReceiverID); err != nil {
		return model.AppendResult{}, err
	}
	id, err := s.newID()
	if err != nil {
		return model.AppendResult{}, err
	}
	return s.messages.Insert(ctx, model.Message{
		ID:         id,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		ClientID:   in.ClientID,
		Content:    in.Content,
		ImageURL:   in.ImageURL,
		CreatedAt:  s.now(),
	})
}

// History fetches newest-first from the cursor and hands back oldest-first.
// HasMore is true iff a full page was read.
func (s *MessageServiceImpl) History(ctx context.Context, requesterID, counterpartID uuid.UUID, before *uuid.UUID, pageSize int) (model.HistoryPage, error) {
	if err := validatePair(requesterID, counterpartID); err != nil {
		return model.HistoryPage{}, err
	}
	switch {
	case pageSize <= 0:
		pageSize = s.defaultPage
	case pageSize > s.maxPage:
		pageSize = s.maxPage
	}
	if err := s.ensureNotBlocked(ctx, requesterID, counterpartID); err != nil {
		return model.HistoryPage{}, err
	}
	msgs, err := s.messages.Page(ctx, requesterID, counterpartID, before, pageSize)
	if err != nil {
		return model.HistoryPage{}, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return model.HistoryPage{Messages: msgs, HasMore: len(msgs) == pageSize}, nil
}

// TombstoneMessage is idempotent per user.
func (s *MessageServiceImpl) TombstoneMessage(ctx context.Context, userID, messageID uuid.UUID) (bool, error) {
	if userID == uuid.Nil || messageID == uuid.Nil {
		return false, fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	return s.messages.Tombstone(ctx, userID, messageID, s.now())
}

// TombstoneConversation is idempotent and safe to retry after partial failure.
func (s *MessageServiceImpl) TombstoneConversation(ctx context.Context, userID, counterpartID uuid.UUID) (int64, error) {
	if err := validatePair(userID, counterpartID); err != nil {
		return 0, err
	}
	return s.messages.TombstoneConversation(ctx, userID, counterpartID, s.now())
}

// MarkRead is a no-op when already read.
func (s *MessageServiceImpl) MarkRead(ctx context.Context, userID, messageID uuid.UUID) (bool, error) {
	if userID == uuid.Nil || messageID == uuid.Nil {
		return false, fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	return s.messages.MarkRead(ctx, userID, messageID, s.now())
}

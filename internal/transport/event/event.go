// Package event defines the closed set of real-time transport events and their
// JSON envelope. Payloads are validated when decoded, so nothing loosely typed
// crosses into the gateway.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/matchchat/internal/convert"
)

// Type is the event name carried in the envelope.
type Type string

const (
	TypeSendMessage     Type = "send-message"
	TypeMessageSentAck  Type = "message-sent-ack"
	TypeReceiveMessage  Type = "receive-message"
	TypePresenceChange  Type = "presence-change"
	TypeYouAreBlocked   Type = "you-are-blocked"
	TypeYouAreUnblocked Type = "you-are-unblocked"
	TypeConversations   Type = "conversations"
	TypeError           Type = "error"
)

// Event is implemented only by the variants in this package.
type Event interface {
	Type() Type
	sealed()
}

// SendMessage is submitted by a client; ClientID is its local id for the message.
type SendMessage struct {
	ClientID string    `json:"clientId" validate:"required,max=64"`
	To       uuid.UUID `json:"to" validate:"required"`
	Content  string    `json:"content" validate:"max=4000"`
	ImageURL *string   `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// MessageSentAck confirms a SendMessage with the store-assigned id.
type MessageSentAck struct {
	ClientID  string    `json:"clientId" validate:"required"`
	MessageID uuid.UUID `json:"messageId" validate:"required"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
}

// ReceiveMessage relays a stored message to its recipient.
type ReceiveMessage struct {
	Message convert.MessageDTO `json:"message"`
}

// PresenceChange reports a peer going online or offline.
type PresenceChange struct {
	UserID uuid.UUID `json:"userId" validate:"required"`
	Online bool      `json:"online"`
}

// YouAreBlocked tells the recipient that By blocked them.
type YouAreBlocked struct {
	By uuid.UUID `json:"by" validate:"required"`
}

// YouAreUnblocked tells the recipient that By lifted a block.
type YouAreUnblocked struct {
	By uuid.UUID `json:"by" validate:"required"`
}

// Conversations is the initial conversation list pushed once per connection.
type Conversations struct {
	Matches []convert.MatchDTO `json:"matches"`
}

// Error reports a rejected client event. ClientID is set for failed sends.
type Error struct {
	ClientID string `json:"clientId,omitempty"`
	Code     string `json:"code" validate:"required"`
	Message  string `json:"message"`
}

func (SendMessage) Type() Type     { return TypeSendMessage }
func (MessageSentAck) Type() Type  { return TypeMessageSentAck }
func (ReceiveMessage) Type() Type  { return TypeReceiveMessage }
func (PresenceChange) Type() Type  { return TypePresenceChange }
func (YouAreBlocked) Type() Type   { return TypeYouAreBlocked }
func (YouAreUnblocked) Type() Type { return TypeYouAreUnblocked }
func (Conversations) Type() Type   { return TypeConversations }
func (Error) Type() Type           { return TypeError }

func (SendMessage) sealed()     {}
func (MessageSentAck) sealed()  {}
func (ReceiveMessage) sealed()  {}
func (PresenceChange) sealed()  {}
func (YouAreBlocked) sealed()   {}
func (YouAreUnblocked) sealed() {}
func (Conversations) sealed()   {}
func (Error) sealed()           {}

// Envelope is the wire frame.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ErrUnknownType is returned for envelopes outside the closed set.
var ErrUnknownType = errors.New("unknown event type")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode wraps ev in an envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: ev.Type(), Data: data})
}

// Decode parses and validates a frame.
func Decode(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var ev Event
	switch env.Type {
	case TypeSendMessage:
		ev = &SendMessage{}
	case TypeMessageSentAck:
		ev = &MessageSentAck{}
	case TypeReceiveMessage:
		ev = &ReceiveMessage{}
	case TypePresenceChange:
		ev = &PresenceChange{}
	case TypeYouAreBlocked:
		ev = &YouAreBlocked{}
	case TypeYouAreUnblocked:
		ev = &YouAreUnblocked{}
	case TypeConversations:
		ev = &Conversations{}
	case TypeError:
		ev = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("decode %s: empty data", env.Type)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", env.Type, err)
	}
	return deref(ev), nil
}

// deref returns variants by value so callers can type-switch on value types.
func deref(ev Event) Event {
	switch v := ev.(type) {
	case *SendMessage:
		return *v
	case *MessageSentAck:
		return *v
	case *ReceiveMessage:
		return *v
	case *PresenceChange:
		return *v
	case *YouAreBlocked:
		return *v
	case *YouAreUnblocked:
		return *v
	case *Conversations:
		return *v
	case *Error:
		return *v
	}
	return ev
}

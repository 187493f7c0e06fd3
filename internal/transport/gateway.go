// Package transport routes real-time events between live connections and the
// message and match services.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/matchchat/internal/convert"
	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/limiter"
	"github.com/and161185/matchchat/internal/model"
	"github.com/and161185/matchchat/internal/presence"
	"github.com/and161185/matchchat/internal/service"
	"github.com/and161185/matchchat/internal/transport/event"
)

// Error codes carried by event.Error.
const (
	CodeValidation  = "validation"
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeInvalid     = "invalid_operation"
	CodeUnavailable = "unavailable"
	CodeRateLimited = "rate_limited"
	CodeUnsupported = "unsupported"
	CodeInternal    = "internal"
)

// stateTimeout bounds online-flag writes made after the connection context is gone.
const stateTimeout = 5 * time.Second

// OnlineStore persists the online flag.
type OnlineStore interface {
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// Gateway is the connection-facing side of the chat: it tracks presence,
// appends submitted messages, and relays them to live recipients.
type Gateway struct {
	registry *presence.Registry
	users    OnlineStore
	matches  service.MatchService
	messages service.MessageService
	limiter  limiter.Limiter
	log      *zap.Logger
}

var _ service.BlockNotifier = (*Gateway)(nil)

// NewGateway constructs Gateway.
func NewGateway(registry *presence.Registry, users OnlineStore, matches service.MatchService, messages service.MessageService, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{registry: registry, users: users, matches: matches, messages: messages, limiter: limiter.Nop{}, log: log}
}

// WithSendLimiter throttles Send with l.
func (g *Gateway) WithSendLimiter(l limiter.Limiter) *Gateway {
	g.limiter = l
	return g
}

// Connect registers c as userID's live connection. A connection it replaces is
// closed, and the conversation list is pushed to c.
func (g *Gateway) Connect(ctx context.Context, userID uuid.UUID, c presence.Conn) {
	prev := g.registry.Attach(userID, c, func() {
		g.setOnline(ctx, userID, true)
	})
	if prev != nil {
		g.log.Info("connection superseded", zap.String("user_id", userID.String()))
		prev.Close()
	}
	g.pushConversations(ctx, userID, c)
}

// Disconnect removes c. Nothing happens if c was already superseded.
func (g *Gateway) Disconnect(ctx context.Context, userID uuid.UUID, c presence.Conn) {
	g.registry.Detach(userID, c, func() {
		g.setOnline(ctx, userID, false)
	})
}

// Handle dispatches one client event received on c.
func (g *Gateway) Handle(ctx context.Context, userID uuid.UUID, c presence.Conn, ev event.Event) {
	switch e := ev.(type) {
	case event.SendMessage:
		g.Send(ctx, userID, c, e)
	default:
		c.Deliver(event.Error{Code: CodeUnsupported, Message: "unsupported event " + string(ev.Type())})
	}
}

// Send appends the message, acknowledges it to the sender, and relays it to the
// recipient when they are live. A retried client id is acknowledged again but
// not relayed a second time.
func (g *Gateway) Send(ctx context.Context, senderID uuid.UUID, c presence.Conn, in event.SendMessage) {
	if err := g.throttle(ctx, senderID); err != nil {
		c.Deliver(event.Error{ClientID: in.ClientID, Code: CodeRateLimited, Message: err.Error()})
		return
	}
	res, err := g.messages.Append(ctx, model.NewMessage{
		SenderID:   senderID,
		ReceiverID: in.To,
		ClientID:   in.ClientID,
		Content:    in.Content,
		ImageURL:   in.ImageURL,
	})
	if err != nil {
		code := ErrorCode(err)
		if code == CodeInternal || code == CodeUnavailable {
			g.log.Error("append message failed", zap.String("sender_id", senderID.String()), zap.Error(err))
		}
		c.Deliver(event.Error{ClientID: in.ClientID, Code: code, Message: clientMessage(code, err)})
		return
	}

	msg := res.Message
	c.Deliver(event.MessageSentAck{ClientID: in.ClientID, MessageID: msg.ID, CreatedAt: msg.CreatedAt})
	if res.Duplicate {
		return
	}
	g.deliver(msg.ReceiverID, event.ReceiveMessage{Message: convert.ToMessageDTO(msg, msg.ReceiverID)})
}

// NotifyBlocked tells blocked that blocker blocked them.
func (g *Gateway) NotifyBlocked(_ context.Context, blocker, blocked uuid.UUID) {
	g.deliver(blocked, event.YouAreBlocked{By: blocker})
}

// NotifyUnblocked tells blocked that blocker lifted the block.
func (g *Gateway) NotifyUnblocked(_ context.Context, blocker, blocked uuid.UUID) {
	g.deliver(blocked, event.YouAreUnblocked{By: blocker})
}

// Shutdown closes every live connection.
func (g *Gateway) Shutdown() {
	if n := g.registry.CloseAll(); n > 0 {
		g.log.Info("closed live connections", zap.Int("count", n))
	}
}

// throttle fails open when the limiter itself errors.
func (g *Gateway) throttle(ctx context.Context, senderID uuid.UUID) error {
	ok, wait, err := g.limiter.Hit(ctx, senderID)
	if err != nil {
		g.log.Warn("send limiter failed", zap.String("user_id", senderID.String()), zap.Error(err))
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, wait.Round(time.Second))
	}
	return nil
}

func (g *Gateway) deliver(userID uuid.UUID, ev event.Event) {
	c, ok := g.registry.Lookup(userID)
	if !ok {
		return
	}
	if !c.Deliver(ev) {
		g.log.Warn("event dropped", zap.String("user_id", userID.String()), zap.String("type", string(ev.Type())))
	}
}

func (g *Gateway) setOnline(ctx context.Context, userID uuid.UUID, online bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateTimeout)
	defer cancel()

	if err := g.users.SetOnline(ctx, userID, online); err != nil {
		g.log.Warn("set online failed", zap.String("user_id", userID.String()), zap.Bool("online", online), zap.Error(err))
	}
	peers, err := g.matches.Peers(ctx, userID)
	if err != nil {
		g.log.Warn("list peers failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	for _, p := range peers {
		g.deliver(p, event.PresenceChange{UserID: userID, Online: online})
	}
}

func (g *Gateway) pushConversations(ctx context.Context, userID uuid.UUID, c presence.Conn) {
	list, err := g.matches.ListAcceptedMatches(ctx, userID, false)
	if err != nil {
		g.log.Warn("load conversations failed", zap.String("user_id", userID.String()), zap.Error(err))
		c.Deliver(event.Error{Code: ErrorCode(err), Message: "conversation list unavailable"})
		return
	}
	dtos := convert.ToMatchDTOs(list)
	ids := make([]uuid.UUID, len(dtos))
	for i := range dtos {
		ids[i] = dtos[i].ID
	}
	// live connections win over the stored flag, which lags after a crash
	live := make(map[uuid.UUID]bool, len(dtos))
	for _, id := range g.registry.Online(ids) {
		live[id] = true
	}
	for i := range dtos {
		dtos[i].Online = live[dtos[i].ID]
	}
	c.Deliver(event.Conversations{Matches: dtos})
}

// clientMessage hides storage details behind server-side failures.
func clientMessage(code string, err error) string {
	switch code {
	case CodeInternal:
		return "internal error"
	case CodeUnavailable:
		return "service unavailable"
	}
	return err.Error()
}

// ErrorCode maps a service error onto an event error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return CodeValidation
	case errors.Is(err, errs.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, errs.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, errs.ErrInvalidOperation):
		return CodeInvalid
	case errors.Is(err, errs.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, errs.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// Package ws serves the real-time transport over websockets.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/matchchat/internal/auth"
	"github.com/and161185/matchchat/internal/presence"
	"github.com/and161185/matchchat/internal/transport/event"
)

// Gateway is the part of transport.Gateway the websocket layer drives.
type Gateway interface {
	Connect(ctx context.Context, userID uuid.UUID, c presence.Conn)
	Disconnect(ctx context.Context, userID uuid.UUID, c presence.Conn)
	Handle(ctx context.Context, userID uuid.UUID, c presence.Conn, ev event.Event)
}

// Verifier authenticates the handshake token.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Config tunes connections.
type Config struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	// AllowedOrigins lists accepted Origin headers; "*" accepts any, empty means same-origin.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	return c
}

func (c Config) pingPeriod() time.Duration { return c.PongWait * 9 / 10 }

// Handler upgrades authenticated requests and runs the connection until it closes.
type Handler struct {
	gw       Gateway
	verifier Verifier
	cfg      Config
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler constructs Handler.
func NewHandler(gw Gateway, verifier Verifier, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Handler{
		gw:       gw,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// token reads the bearer header, falling back to the token query parameter
// for browser clients that cannot set headers on the handshake.
func token(r *http.Request) (string, error) {
	if t, err := auth.BearerToken(r.Header); err == nil {
		return t, nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", errors.New("no token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tok, err := token(r)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := h.verifier.Verify(tok)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	log := h.log.With(zap.String("user_id", id.UserID.String()))
	log.Debug("connected")

	ctx := auth.WithIdentity(r.Context(), id)
	c := newClient(conn, id.UserID, h.gw, h.cfg, log)
	go c.writePump()
	h.gw.Connect(ctx, id.UserID, c)
	c.readPump(ctx)
	log.Debug("disconnected")
}

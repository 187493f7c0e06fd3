package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/matchchat/internal/transport"
	"github.com/and161185/matchchat/internal/transport/event"
)

// Client is one websocket connection. Outbound frames go through a bounded
// queue drained by writePump; a full queue drops the frame.
type Client struct {
	conn   *websocket.Conn
	userID uuid.UUID
	gw     Gateway
	cfg    Config
	log    *zap.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, userID uuid.UUID, gw Gateway, cfg Config, log *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		gw:     gw,
		cfg:    cfg,
		log:    log,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Deliver encodes ev and queues it without blocking.
func (c *Client) Deliver(ev event.Event) bool {
	b, err := event.Encode(ev)
	if err != nil {
		c.log.Error("encode event", zap.String("type", string(ev.Type())), zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and drops the socket.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.gw.Disconnect(ctx, c.userID, c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", zap.String("user_id", c.userID.String()), zap.Error(err))
			}
			return
		}
		ev, err := event.Decode(data)
		if err != nil {
			c.Deliver(event.Error{ClientID: clientIDOf(data), Code: transport.CodeValidation, Message: err.Error()})
			continue
		}
		c.gw.Handle(ctx, c.userID, c, ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// clientIDOf recovers the client id from a frame that failed validation.
func clientIDOf(data []byte) string {
	var probe struct {
		Data struct {
			ClientID string `json:"clientId"`
		} `json:"data"`
	}
	if json.Unmarshal(data, &probe) != nil {
		return ""
	}
	return probe.Data.ClientID
}

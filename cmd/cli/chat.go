package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"

	"github.com/and161185/matchchat/internal/client"
	"github.com/and161185/matchchat/internal/convert"
	"github.com/and161185/matchchat/internal/transport/event"
)

// chatSession drives one websocket connection with the reconciliation state.
type chatSession struct {
	conn  *websocket.Conn
	wmu   sync.Mutex
	state *client.State
	peer  uuid.UUID
	out   io.Writer
	omu   sync.Mutex
}

func (c *chatSession) printf(format string, args ...any) {
	c.omu.Lock()
	defer c.omu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *chatSession) send(ev event.Event) error {
	b, err := event.Encode(ev)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *chatSession) render(ev event.Event) {
	switch e := ev.(type) {
	case event.ReceiveMessage:
		if e.Message.SenderID == c.peer {
			c.printf("< %s\n", e.Message.Content)
		}
	case event.MessageSentAck:
		c.printf("  (sent %s)\n", e.MessageID)
	case event.PresenceChange:
		if e.UserID == c.peer {
			c.printf("  peer online=%v\n", e.Online)
		}
	case event.YouAreBlocked:
		if e.By == c.peer {
			c.printf("  you were blocked\n")
		}
	case event.YouAreUnblocked:
		if e.By == c.peer {
			c.printf("  you were unblocked\n")
		}
	case event.Error:
		c.printf("  error %s: %s\n", e.Code, e.Message)
	}
}

func (c *chatSession) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := event.Decode(data)
		if err != nil {
			c.printf("  bad frame: %v\n", err)
			continue
		}
		c.state.Apply(ev)
		c.render(ev)
	}
}

func scanLines(in io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// runChat connects, replays history, then sends each input line to peer.
// Unacknowledged lines are resent with their original local id every resend
// interval. It returns when input ends and nothing is pending, or on ctx/connection end.
func runChat(ctx context.Context, wsAddr, token string, self, peer uuid.UUID, history *convert.HistoryDTO, in io.Reader, out io.Writer, resend time.Duration) error {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsAddr, hdr)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsAddr, err)
	}
	defer conn.Close()

	st := client.New(self)
	st.Connected()
	s := &chatSession{conn: conn, state: st, peer: peer, out: out}
	if history != nil {
		st.MergeHistory(*history)
		for _, e := range st.Conversation(peer) {
			dir := "<"
			if e.Message.SenderID == self {
				dir = ">"
			}
			body := e.Message.Content
			if e.Message.Deleted {
				body = "(deleted)"
			}
			s.printf("%s %s\n", dir, body)
		}
	}

	readDone := make(chan struct{})
	go s.readLoop(readDone)

	lineCh := make(chan string)
	go scanLines(in, lineCh)
	lines := (<-chan string)(lineCh)

	if resend <= 0 {
		resend = 5 * time.Second
	}
	ticker := time.NewTicker(resend)
	defer ticker.Stop()
	inputOpen := true
	for {
		if !inputOpen && st.Pending() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-readDone:
			return fmt.Errorf("connection closed")
		case line, ok := <-lines:
			if !ok {
				inputOpen, lines = false, nil
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := s.send(st.Compose(peer, line, nil)); err != nil {
				return err
			}
		case <-ticker.C:
			for _, ev := range st.Expired(resend) {
				if err := s.send(ev); err != nil {
					return err
				}
			}
		}
	}

	s.wmu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.wmu.Unlock()
	select {
	case <-readDone:
	case <-time.After(time.Second):
	}
	return nil
}

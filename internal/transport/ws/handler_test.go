package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/matchchat/internal/auth"
	"github.com/and161185/matchchat/internal/model"
	"github.com/and161185/matchchat/internal/presence"
	"github.com/and161185/matchchat/internal/repository/memory"
	"github.com/and161185/matchchat/internal/service"
	"github.com/and161185/matchchat/internal/transport"
	"github.com/and161185/matchchat/internal/transport/event"
)

var testKey = []byte("ws-test-key")

type env struct {
	srv    *httptest.Server
	issuer *auth.Issuer
	a, b   uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	st.PutUser(model.User{ID: a, DisplayName: "ann", Tier: model.TierPremium})
	st.PutUser(model.User{ID: b, DisplayName: "bob", Tier: model.TierPremium})

	matches := service.NewMatchService(st.Matches(), st.Blocks(), service.DefaultMinLikeTier)
	messages := service.NewMessageService(st.Messages(), st.Blocks(), service.DefaultPageSize, 200)
	ctx := context.Background()
	_, err := matches.Like(ctx, a, model.TierPremium, b)
	require.NoError(t, err)
	_, err = matches.Like(ctx, b, model.TierPremium, a)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	gw := transport.NewGateway(presence.NewRegistry(), st.Users(), matches, messages, log)
	h := NewHandler(gw, auth.NewVerifier(testKey, 0), Config{PongWait: 5 * time.Second}, log)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, issuer: auth.NewIssuer(testKey, time.Hour), a: a, b: b}
}

func (e *env) dial(t *testing.T, id uuid.UUID, viaHeader bool) *websocket.Conn {
	t.Helper()
	tok, _, err := e.issuer.Issue(auth.Identity{UserID: id, Tier: model.TierPremium})
	require.NoError(t, err)
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	hdr := http.Header{}
	if viaHeader {
		hdr.Set("Authorization", "Bearer "+tok)
	} else {
		u += "?token=" + tok
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, hdr)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads frames until one of type tp arrives.
func next(t *testing.T, conn *websocket.Conn, tp event.Type) event.Event {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		ev, err := event.Decode(data)
		require.NoError(t, err)
		if ev.Type() == tp {
			return ev
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, ev event.Event) {
	t.Helper()
	b, err := event.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func TestHandler_RejectsMissingOrBadToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(u+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_SendAckRelay(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	ca := e.dial(t, e.a, false)
	convs := next(t, ca, event.TypeConversations).(event.Conversations)
	require.Len(t, convs.Matches, 1)
	require.Equal(t, e.b, convs.Matches[0].ID)

	cb := e.dial(t, e.b, true)
	next(t, cb, event.TypeConversations)
	pres := next(t, ca, event.TypePresenceChange).(event.PresenceChange)
	require.Equal(t, e.b, pres.UserID)
	require.True(t, pres.Online)

	send(t, ca, event.SendMessage{ClientID: "l-1", To: e.b, Content: "one"})
	send(t, ca, event.SendMessage{ClientID: "l-2", To: e.b, Content: "two"})

	ack1 := next(t, ca, event.TypeMessageSentAck).(event.MessageSentAck)
	ack2 := next(t, ca, event.TypeMessageSentAck).(event.MessageSentAck)
	require.Equal(t, "l-1", ack1.ClientID)
	require.Equal(t, "l-2", ack2.ClientID)

	// per-pair order is preserved
	r1 := next(t, cb, event.TypeReceiveMessage).(event.ReceiveMessage)
	r2 := next(t, cb, event.TypeReceiveMessage).(event.ReceiveMessage)
	require.Equal(t, ack1.MessageID, r1.Message.ID)
	require.Equal(t, "one", r1.Message.Content)
	require.Equal(t, ack2.MessageID, r2.Message.ID)

	require.NoError(t, cb.Close())
	pres = next(t, ca, event.TypePresenceChange).(event.PresenceChange)
	require.Equal(t, e.b, pres.UserID)
	require.False(t, pres.Online)
}

func TestHandler_InvalidFrameReturnsError(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ca := e.dial(t, e.a, false)
	next(t, ca, event.TypeConversations)

	require.NoError(t, ca.WriteMessage(websocket.TextMessage, []byte(`{"type":"send-message","data":{"clientId":"c-9","content":"x"}}`)))
	got := next(t, ca, event.TypeError).(event.Error)
	require.Equal(t, "c-9", got.ClientID)
	require.Equal(t, transport.CodeValidation, got.Code)

	require.NoError(t, ca.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope","data":{}}`)))
	got = next(t, ca, event.TypeError).(event.Error)
	require.Equal(t, transport.CodeValidation, got.Code)
}

func TestHandler_NewConnectionSupersedesOld(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	first := e.dial(t, e.a, false)
	next(t, first, event.TypeConversations)

	second := e.dial(t, e.a, true)
	next(t, second, event.TypeConversations)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
	}

	// the replacement is still live
	send(t, second, event.SendMessage{ClientID: "after", To: e.b, Content: "still here"})
	ack := next(t, second, event.TypeMessageSentAck).(event.MessageSentAck)
	require.Equal(t, "after", ack.ClientID)
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()
	require.Nil(t, originChecker(nil))

	all := originChecker([]string{"*"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	require.True(t, all(r))

	only := originChecker([]string{"https://app.example"})
	require.False(t, only(r))
	r.Header.Set("Origin", "https://app.example")
	require.True(t, only(r))
	r.Header.Del("Origin")
	require.True(t, only(r))
}

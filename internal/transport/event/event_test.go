package event

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestDecode_SendMessage(t *testing.T) {
	t.Parallel()

	to := uuid.Must(uuid.NewV4())
	raw := []byte(`{"type":"send-message","data":{"clientId":"tmp-1","to":"` + to.String() + `","content":"hi"}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	sm, ok := ev.(SendMessage)
	require.True(t, ok)
	require.Equal(t, to, sm.To)
	require.Equal(t, "tmp-1", sm.ClientID)
}

func TestDecode_RejectsUnknownAndInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown type":    `{"type":"typing","data":{}}`,
		"no data":         `{"type":"send-message"}`,
		"missing client":  `{"type":"send-message","data":{"to":"6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"}}`,
		"missing to":      `{"type":"send-message","data":{"clientId":"x"}}`,
		"bad uuid":        `{"type":"send-message","data":{"clientId":"x","to":"nope"}}`,
		"bad image url":   `{"type":"send-message","data":{"clientId":"x","to":"6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11","imageUrl":"::"}}`,
		"not json":        `hello`,
		"presence no id":  `{"type":"presence-change","data":{"online":true}}`,
		"blocked no user": `{"type":"you-are-blocked","data":{}}`,
	}
	for name, raw := range cases {
		_, err := Decode([]byte(raw))
		require.Error(t, err, name)
	}

	_, err := Decode([]byte(`{"type":"typing","data":{}}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeDecode_ServerEvents(t *testing.T) {
	t.Parallel()

	events := []Event{
		PresenceChange{UserID: uuid.Must(uuid.NewV4()), Online: true},
		YouAreBlocked{By: uuid.Must(uuid.NewV4())},
		YouAreUnblocked{By: uuid.Must(uuid.NewV4())},
		Error{ClientID: "tmp-2", Code: "forbidden", Message: "blocked"},
	}
	for _, ev := range events {
		b, err := Encode(ev)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, ev, got)
	}
}

func TestEncodeDecode_Ack(t *testing.T) {
	t.Parallel()

	ack := MessageSentAck{ClientID: "tmp-1", MessageID: uuid.Must(uuid.NewV7()), CreatedAt: time.Now()}
	b, err := Encode(ack)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	g := got.(MessageSentAck)
	require.Equal(t, ack.MessageID, g.MessageID)
	require.True(t, ack.CreatedAt.Equal(g.CreatedAt))
}

package slurk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

// Round trip through a real websocket: the bot emits the latest outbound
// message, the server answers as the participant, the wait returns the text.
func TestBot_WebsocketRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Event, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)
		assert.Equal(t, "Bearer bot-token", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		received <- ev

		require.NoError(t, conn.WriteJSON(Event{
			Type:    EventTextMessage,
			Room:    roomID,
			User:    Identity{ID: 7, Name: "participant"},
			Message: "a human reply",
		}))
	}))
	defer server.Close()

	bot := NewBot(botID, "bot-token", roomID)
	require.NoError(t, bot.Connect(context.Background(), server.URL))
	defer func() { _ = bot.Close() }()

	history := []backends.Message{{Role: backends.RoleAssistant, Content: "anybody there?"}}
	text, err := bot.WaitForResponse(history, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a human reply", text)

	select {
	case ev := <-received:
		assert.Equal(t, EventText, ev.Type)
		assert.Equal(t, roomID, ev.Room)
		assert.Equal(t, "anybody there?", ev.Message)
	case <-time.After(time.Second):
		t.Fatal("server never received the outbound message")
	}
}

func TestEventURL(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"http://localhost", "ws://localhost/ws"},
		{"https://slurk.example.org", "wss://slurk.example.org/ws"},
		// A reverse-proxied base path is kept, not replaced.
		{"https://example.org/slurk", "wss://example.org/slurk/ws"},
		{"https://example.org/slurk/", "wss://example.org/slurk/ws"},
		{"ws://localhost:5000", "ws://localhost:5000/ws"},
	}
	for _, tc := range cases {
		got, err := eventURL(tc.uri)
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.want, got, tc.uri)
	}

	_, err := eventURL("ftp://example.org")
	require.Error(t, err)
}

func TestBot_EmitsFillerOnEmptyHistory(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Event, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		received <- ev
		require.NoError(t, conn.WriteJSON(Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "ok"}))
	}))
	defer server.Close()

	bot := NewBot(botID, "bot-token", roomID)
	require.NoError(t, bot.Connect(context.Background(), server.URL))
	defer func() { _ = bot.Close() }()

	_, err := bot.WaitForResponse(nil, 5*time.Second)
	require.NoError(t, err)

	ev := <-received
	assert.Equal(t, FillerMessage, ev.Message)
}

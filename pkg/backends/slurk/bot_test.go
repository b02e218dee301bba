package slurk

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

const (
	botID  = 1
	roomID = 42
)

func startedBot(t *testing.T) *Bot {
	t.Helper()
	bot := NewBot(botID, "token", roomID)
	require.NoError(t, bot.Start(context.Background()))
	t.Cleanup(func() { _ = bot.Close() })
	return bot
}

func deliverSoon(t *testing.T, bot *Bot, ev Event) {
	t.Helper()
	go func() {
		time.Sleep(20 * time.Millisecond)
		assert.NoError(t, bot.Deliver(ev))
	}()
}

func TestBot_WaitForParticipant(t *testing.T) {
	t.Run("status event from another identity unblocks", func(t *testing.T) {
		bot := startedBot(t)
		deliverSoon(t, bot, Event{Type: EventStatus, Room: roomID, User: Identity{ID: 7}})
		require.NoError(t, bot.WaitForParticipant(2*time.Second))
	})

	t.Run("timeout is fatal", func(t *testing.T) {
		bot := startedBot(t)
		start := time.Now()
		err := bot.WaitForParticipant(100 * time.Millisecond)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrJoinTimeout))
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("own events never unblock", func(t *testing.T) {
		bot := startedBot(t)
		deliverSoon(t, bot, Event{Type: EventStatus, Room: roomID, User: Identity{ID: botID}})
		err := bot.WaitForParticipant(150 * time.Millisecond)
		assert.True(t, errors.Is(err, ErrJoinTimeout))
	})
}

func TestBot_WaitForResponse(t *testing.T) {
	history := []backends.Message{{Role: backends.RoleAssistant, Content: "your turn"}}

	t.Run("first message is returned and buffer drained", func(t *testing.T) {
		bot := startedBot(t)
		deliverSoon(t, bot, Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "first"})
		text, err := bot.WaitForResponse(history, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "first", text)

		// Buffer must be empty immediately after return.
		_, ok := bot.takePending()
		assert.False(t, ok)
	})

	t.Run("buffer holds at most one undelivered message", func(t *testing.T) {
		bot := startedBot(t)
		require.NoError(t, bot.Deliver(Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "first"}))
		require.NoError(t, bot.Deliver(Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "second"}))
		text, err := bot.WaitForResponse(history, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "first", text)
	})

	t.Run("own messages are ignored", func(t *testing.T) {
		bot := startedBot(t)
		deliverSoon(t, bot, Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: botID}, Message: "self"})
		_, err := bot.WaitForResponse(history, 150*time.Millisecond)
		assert.True(t, errors.Is(err, ErrResponseTimeout))
	})

	t.Run("other rooms are ignored", func(t *testing.T) {
		bot := startedBot(t)
		deliverSoon(t, bot, Event{Type: EventTextMessage, Room: roomID + 1, User: Identity{ID: 7}, Message: "elsewhere"})
		_, err := bot.WaitForResponse(history, 150*time.Millisecond)
		assert.True(t, errors.Is(err, ErrResponseTimeout))
	})

	t.Run("status wake does not satisfy the wait", func(t *testing.T) {
		bot := startedBot(t)
		deliverSoon(t, bot, Event{Type: EventStatus, Room: roomID, User: Identity{ID: 7}})
		go func() {
			time.Sleep(80 * time.Millisecond)
			assert.NoError(t, bot.Deliver(Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "late"}))
		}()
		text, err := bot.WaitForResponse(history, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "late", text)
	})

	t.Run("timeout fails under the corrected contract", func(t *testing.T) {
		bot := startedBot(t)
		_, err := bot.WaitForResponse(history, 100*time.Millisecond)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrResponseTimeout))
	})

	t.Run("legacy timeout returns buffered text", func(t *testing.T) {
		bot := startedBot(t)
		bot.SetLegacyTimeout(true)
		require.NoError(t, bot.Deliver(Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "stale"}))
		// Drain the signal so the wait itself times out with a full buffer.
		time.Sleep(20 * time.Millisecond)
		<-bot.signal
		text, err := bot.WaitForResponse(history, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "stale", text)
	})

	t.Run("legacy timeout with empty buffer still fails", func(t *testing.T) {
		bot := startedBot(t)
		bot.SetLegacyTimeout(true)
		_, err := bot.WaitForResponse(history, 100*time.Millisecond)
		assert.True(t, errors.Is(err, ErrResponseTimeout))
	})
}

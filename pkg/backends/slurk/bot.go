package slurk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

const (
	eventsTopic = "slurk.events"

	// FillerMessage is emitted when a turn starts with an empty history.
	FillerMessage = "Nothing has been said yet."
)

var (
	// ErrJoinTimeout means no participant entered the room in time. The run
	// cannot proceed without a human.
	ErrJoinTimeout = errors.New("no user joined the slurk room")
	// ErrResponseTimeout means the participant did not answer within the
	// per-turn wait.
	ErrResponseTimeout = errors.New("no user response in the slurk room")
)

// Bot is the bridge's presence in one room. Inbound events arrive on the
// websocket read loop, travel through an in-process pub/sub channel and,
// once filtered down to the other participant's activity in this room, fill
// a one-slot buffer and set the wake-up signal. The blocking waits consume
// that signal. At most one wait may be outstanding at a time; waitMu
// enforces it.
type Bot struct {
	userID int
	roomID int
	token  string

	conn   *websocket.Conn
	pubsub *gochannel.GoChannel
	cancel context.CancelFunc
	logger zerolog.Logger

	// legacyTimeout restores the historical per-turn timeout behavior:
	// instead of failing, the wait returns whatever is left in the buffer.
	legacyTimeout bool

	waitMu  sync.Mutex
	writeMu sync.Mutex

	mu         sync.Mutex
	pending    string
	hasPending bool
	signal     chan struct{}
}

// NewBot builds the bot identity for a room. Call Connect (or Start, when no
// websocket is wanted) before waiting.
func NewBot(userID int, token string, roomID int) *Bot {
	return &Bot{
		userID: userID,
		roomID: roomID,
		token:  token,
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
		signal: make(chan struct{}, 1),
		logger: log.With().Str("component", "slurk.bot").Int("room", roomID).Int("user", userID).Logger(),
	}
}

// SetLegacyTimeout toggles the historical swallow-the-timeout behavior for
// per-turn waits.
func (b *Bot) SetLegacyTimeout(enabled bool) { b.legacyTimeout = enabled }

// Start subscribes the dispatcher to the event stream. Connect calls this;
// it is exported so the event pipeline can run without a live websocket.
func (b *Bot) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	messages, err := b.pubsub.Subscribe(ctx, eventsTopic)
	if err != nil {
		return errors.Wrap(err, "subscribing to slurk events")
	}
	go b.dispatch(messages)
	return nil
}

// Connect dials the slurk event channel and starts the read loop.
func (b *Bot) Connect(ctx context.Context, uri string) error {
	wsURL, err := eventURL(uri)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+b.token)
	header.Set("X-Slurk-User", strconv.Itoa(b.userID))
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return errors.Wrapf(err, "connecting to slurk event channel %s (status %d)", wsURL, resp.StatusCode)
		}
		return errors.Wrapf(err, "connecting to slurk event channel %s", wsURL)
	}
	b.conn = conn
	if err := b.Start(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	go b.readLoop()
	b.logger.Info().Str("url", wsURL).Msg("connected to slurk event channel")
	return nil
}

// Close tears the connection and the event pipeline down.
func (b *Bot) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
	return b.pubsub.Close()
}

// Deliver pushes an event into the dispatch pipeline. The read loop is its
// only production caller.
func (b *Bot) Deliver(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding slurk event")
	}
	return b.pubsub.Publish(eventsTopic, message.NewMessage(watermill.NewUUID(), payload))
}

// WaitForParticipant blocks until any event from a non-bot identity arrives
// for this room, or fails after the timeout.
func (b *Bot) WaitForParticipant(timeout time.Duration) error {
	b.waitMu.Lock()
	defer b.waitMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.signal:
		return nil
	case <-timer.C:
		return errors.Wrapf(ErrJoinTimeout, "waited %s", timeout)
	}
}

// WaitForResponse emits the latest outbound message into the room and blocks
// until the participant's next message, which it drains from the buffer and
// returns. Status events wake the wait but do not satisfy it. On timeout the
// call fails, unless legacy mode is on and the buffer still holds text.
func (b *Bot) WaitForResponse(messages []backends.Message, timeout time.Duration) (string, error) {
	b.waitMu.Lock()
	defer b.waitMu.Unlock()

	latest := FillerMessage
	if len(messages) > 0 {
		latest = messages[len(messages)-1].Content
	}
	if err := b.emit(Event{Type: EventText, Room: b.roomID, Message: latest}); err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return b.timedOut(timeout)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-b.signal:
			timer.Stop()
			if text, ok := b.takePending(); ok {
				return text, nil
			}
		case <-timer.C:
			return b.timedOut(timeout)
		}
	}
}

func (b *Bot) timedOut(timeout time.Duration) (string, error) {
	if b.legacyTimeout {
		if text, ok := b.takePending(); ok {
			b.logger.Warn().Msg("response timeout, returning buffered text")
			return text, nil
		}
	}
	return "", errors.Wrapf(ErrResponseTimeout, "waited %s", timeout)
}

func (b *Bot) emit(ev Event) error {
	if b.conn == nil {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return errors.Wrap(b.conn.WriteJSON(ev), "emitting slurk event")
}

func (b *Bot) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.logger.Warn().Err(err).Msg("slurk event channel closed")
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			b.logger.Warn().Err(err).Msg("dropping malformed slurk event")
			continue
		}
		if err := b.Deliver(ev); err != nil {
			b.logger.Warn().Err(err).Msg("dropping undeliverable slurk event")
		}
	}
}

func (b *Bot) dispatch(messages <-chan *message.Message) {
	for msg := range messages {
		var ev Event
		err := json.Unmarshal(msg.Payload, &ev)
		msg.Ack()
		if err != nil {
			b.logger.Warn().Err(err).Msg("dropping malformed slurk event")
			continue
		}
		b.handle(ev)
	}
}

// handle applies the filter predicate and updates buffer and signal. Events
// from the bot itself or from other rooms never unblock a wait.
func (b *Bot) handle(ev Event) {
	switch ev.Type {
	case EventTextMessage, EventStatus, EventJoinedRoom:
	default:
		return
	}
	if ev.Room != b.roomID {
		return
	}
	if ev.User.ID == b.userID {
		return
	}
	if ev.Type == EventTextMessage {
		b.mu.Lock()
		if !b.hasPending {
			b.pending = ev.Message
			b.hasPending = true
		}
		b.mu.Unlock()
	}
	b.set()
}

func (b *Bot) set() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Bot) takePending() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasPending {
		return "", false
	}
	text := b.pending
	b.pending = ""
	b.hasPending = false
	return text, true
}

func eventURL(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "parsing slurk uri %q", uri)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported slurk uri scheme %q", u.Scheme)
	}
	// Keep any base path from the configured uri, e.g. a reverse-proxied
	// https://host/slurk.
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

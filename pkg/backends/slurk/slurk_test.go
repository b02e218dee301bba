package slurk

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

func testBridge(t *testing.T, responseTimeout time.Duration) *Slurk {
	t.Helper()
	spec := backends.NewModelSpec(Name)
	spec.EnsureDefaults()
	return &Slurk{
		spec:            spec,
		responseTimeout: responseTimeout,
		bot:             startedBot(t),
		logger:          zerolog.Nop(),
	}
}

func TestSlurk_GenerateWithoutPreparedRoom(t *testing.T) {
	s := &Slurk{spec: backends.NewModelSpec(Name), logger: zerolog.Nop()}
	_, err := s.Generate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not prepared")
}

func TestSlurk_GenerateReturnsParticipantReply(t *testing.T) {
	s := testBridge(t, 2*time.Second)
	deliverSoon(t, s.bot, Event{Type: EventTextMessage, Room: roomID, User: Identity{ID: 7}, Message: "a reply"})

	completion, err := s.Generate(context.Background(), []backends.Message{
		{Role: backends.RoleAssistant, Content: "your turn"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a reply", completion.Text)
}

func TestSlurk_ResponseTimeoutIsNotRetried(t *testing.T) {
	s := testBridge(t, 100*time.Millisecond)

	start := time.Now()
	_, err := s.Generate(context.Background(), nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResponseTimeout))
	// A retried wait would take a multiple of the timeout.
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestSlurk_SpecOptionsConfigureTimeouts(t *testing.T) {
	spec := backends.ModelSpec{Name: Name, Options: map[string]any{
		OptionJoinTimeout:     1,
		OptionResponseTimeout: 2,
		OptionLegacyTimeout:   true,
	}}
	assert.Equal(t, time.Second, spec.SecondsOption(OptionJoinTimeout, DefaultJoinTimeout))
	assert.Equal(t, 2*time.Second, spec.SecondsOption(OptionResponseTimeout, DefaultResponseTimeout))
	assert.True(t, spec.BoolOption(OptionLegacyTimeout))
}

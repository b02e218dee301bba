// Package slurk bridges a live human participant in a slurk chat room into
// the Backend contract: provisioning the room over the REST control channel,
// joining it as a bot identity and turning the human's asynchronous messages
// into blocking reply-generation calls.
package slurk

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

const Name = "slurk"

const (
	// BotName is the identity the bridge registers for itself.
	BotName = "clem_bot"

	DefaultJoinTimeout     = 5 * time.Minute
	DefaultResponseTimeout = 5 * time.Minute
)

// Spec options understood by this backend.
const (
	OptionJoinTimeout     = "join_timeout_s"
	OptionResponseTimeout = "response_timeout_s"
	OptionLegacyTimeout   = "legacy_timeout"
)

func init() {
	backends.Register(Name, New)
}

// Slurk serves exactly one room and one external participant at a time.
type Slurk struct {
	spec backends.ModelSpec
	api  *API
	uri  string

	joinTimeout     time.Duration
	responseTimeout time.Duration
	legacyTimeout   bool

	bot    *Bot
	logger zerolog.Logger
}

// New builds the bridge backend. The credential record must carry the slurk
// admin token as api_key and the server address as uri.
func New(spec backends.ModelSpec) (backends.Backend, error) {
	spec.EnsureDefaults()
	creds, err := backends.LoadCredentials(Name)
	if err != nil {
		return nil, err
	}
	if creds.URI == "" {
		return nil, errors.Errorf("no 'uri' for backend %q in the credentials file; see README", Name)
	}
	return &Slurk{
		spec:            spec,
		api:             NewAPI(creds.URI, creds.APIKey),
		uri:             creds.URI,
		joinTimeout:     spec.SecondsOption(OptionJoinTimeout, DefaultJoinTimeout),
		responseTimeout: spec.SecondsOption(OptionResponseTimeout, DefaultResponseTimeout),
		legacyTimeout:   spec.BoolOption(OptionLegacyTimeout),
		logger:          log.With().Str("component", "backend.slurk").Logger(),
	}, nil
}

func (s *Slurk) Spec() backends.ModelSpec { return s.spec }

// PrepareAndWaitForParticipant provisions the room, joins it as the bot and
// blocks until a human joins. Called once per game. The join timeout is
// fatal: the run cannot proceed without a participant.
func (s *Slurk) PrepareAndWaitForParticipant(ctx context.Context, layout, botPermissions, userPermissions map[string]any) error {
	layoutID, err := s.api.CreateLayout(ctx, layout)
	if err != nil {
		return err
	}
	botPermissionsID, err := s.api.CreatePermissions(ctx, botPermissions)
	if err != nil {
		return err
	}
	userPermissionsID, err := s.api.CreatePermissions(ctx, userPermissions)
	if err != nil {
		return err
	}

	// A single bot suffices: the bridge serves a single room per run.
	roomID, err := s.api.CreateRoom(ctx, layoutID)
	if err != nil {
		return err
	}
	botToken, err := s.api.CreateToken(ctx, botPermissionsID, roomID)
	if err != nil {
		return err
	}
	botID, err := s.api.CreateUser(ctx, BotName, botToken)
	if err != nil {
		return err
	}
	userToken, err := s.api.CreateToken(ctx, userPermissionsID, roomID)
	if err != nil {
		return err
	}

	bot := NewBot(botID, botToken, roomID)
	bot.SetLegacyTimeout(s.legacyTimeout)
	if err := bot.Connect(ctx, s.uri); err != nil {
		return err
	}
	if err := s.api.JoinRoom(ctx, botID, roomID); err != nil {
		return err
	}
	s.bot = bot

	s.logger.Info().Str("token", userToken).Msg("use this token to join the benchmark room in slurk")
	if err := bot.WaitForParticipant(s.joinTimeout); err != nil {
		return err
	}
	s.logger.Info().Msg("user joined")
	return nil
}

// Generate relays the latest outbound message into the room and blocks for
// the participant's reply.
func (s *Slurk) Generate(ctx context.Context, messages []backends.Message) (backends.Completion, error) {
	if s.bot == nil {
		return backends.Completion{}, errors.New("slurk room is not prepared; call PrepareAndWaitForParticipant first")
	}
	return backends.GenerateWithRetry(ctx, s.logger, func() (backends.Completion, error) {
		text, err := s.bot.WaitForResponse(messages, s.responseTimeout)
		if err != nil {
			if errors.Is(err, ErrResponseTimeout) {
				// Waiting longer will not conjure a reply; do not re-wait.
				return backends.Completion{}, backoff.Permanent(err)
			}
			return backends.Completion{}, err
		}
		return backends.Completion{
			Prompt:   messages,
			Response: map[string]any{"response": "slurk"},
			Text:     text,
		}, nil
	})
}

// Bot exposes the room bridge, mainly for orchestration and tests.
func (s *Slurk) Bot() *Bot { return s.bot }

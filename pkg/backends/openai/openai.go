// Package openai implements the chat-completions backend for the OpenAI API.
package openai

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	api "github.com/sashabaranov/go-openai"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

const Name = "openai"

// MaxTokens caps reply length for benchmark turns.
const MaxTokens = 100

func init() {
	backends.Register(Name, New)
}

type Client struct {
	spec   backends.ModelSpec
	api    *api.Client
	logger zerolog.Logger
}

// New builds the backend from a fully merged spec. Credentials come from the
// key file; a missing entry or api_key is fatal here, not at call time.
func New(spec backends.ModelSpec) (backends.Backend, error) {
	spec.EnsureDefaults()
	creds, err := backends.LoadCredentials(Name)
	if err != nil {
		return nil, err
	}
	return newClient(spec, api.NewClient(creds.APIKey)), nil
}

func newClient(spec backends.ModelSpec, apiClient *api.Client) *Client {
	return &Client{
		spec:   spec,
		api:    apiClient,
		logger: log.With().Str("component", "backend.openai").Str("model", spec.Name).Logger(),
	}
}

func (c *Client) Spec() backends.ModelSpec { return c.spec }

func (c *Client) Generate(ctx context.Context, messages []backends.Message) (backends.Completion, error) {
	return backends.GenerateWithRetry(ctx, c.logger, func() (backends.Completion, error) {
		return c.generate(ctx, messages)
	})
}

func (c *Client) generate(ctx context.Context, messages []backends.Message) (backends.Completion, error) {
	prompt := make([]api.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		prompt = append(prompt, api.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	req := api.ChatCompletionRequest{
		Model:       c.spec.ModelID,
		Messages:    prompt,
		Temperature: float32(c.spec.TemperatureValue()),
		MaxTokens:   MaxTokens,
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return backends.Completion{}, errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return backends.Completion{}, errors.Wrap(backends.ErrContractViolation, "openai response carries no choices")
	}
	message := resp.Choices[0].Message
	if message.Role != api.ChatMessageRoleAssistant {
		return backends.Completion{}, errors.Wrapf(backends.ErrContractViolation,
			"response message role is %q but should be %q", message.Role, api.ChatMessageRoleAssistant)
	}
	return backends.Completion{
		Prompt:   req,
		Response: resp,
		Text:     strings.TrimSpace(message.Content),
	}, nil
}

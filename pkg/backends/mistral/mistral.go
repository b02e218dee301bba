// Package mistral implements the Mistral backend over the platform's
// OpenAI-compatible chat endpoint.
package mistral

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	api "github.com/sashabaranov/go-openai"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

const Name = "mistral"

const defaultBaseURL = "https://api.mistral.ai/v1"

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

func New(spec backends.ModelSpec) (backends.Backend, error) {
	spec.EnsureDefaults()
	creds, err := backends.LoadCredentials(Name)
	if err != nil {
		return nil, err
	}
	cfg := api.DefaultConfig(creds.APIKey)
	cfg.BaseURL = defaultBaseURL
	if creds.URI != "" {
		cfg.BaseURL = strings.TrimRight(creds.URI, "/")
	}
	return newClient(spec, api.NewClientWithConfig(cfg)), nil
}

func newClient(spec backends.ModelSpec, apiClient *api.Client) *Client {
	return &Client{
		spec:   spec,
		api:    apiClient,
		logger: log.With().Str("component", "backend.mistral").Str("model", spec.Name).Logger(),
	}
}

func (c *Client) Spec() backends.ModelSpec { return c.spec }

func (c *Client) Generate(ctx context.Context, messages []backends.Message) (backends.Completion, error) {
	return backends.GenerateWithRetry(ctx, c.logger, func() (backends.Completion, error) {
		return c.generate(ctx, messages)
	})
}

// ListModels queries the platform's model listing and returns the model ids.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "mistral model listing")
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
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
		return backends.Completion{}, errors.Wrap(err, "mistral chat completion")
	}
	if len(resp.Choices) == 0 {
		return backends.Completion{}, errors.Wrap(backends.ErrContractViolation, "mistral response carries no choices")
	}
	message := resp.Choices[0].Message
	if message.Role != api.ChatMessageRoleAssistant {
		return backends.Completion{}, errors.Wrapf(backends.ErrContractViolation,
			"response message role is %q but should be %q", message.Role, api.ChatMessageRoleAssistant)
	}
	return backends.Completion{
		Prompt:   messages,
		Response: resp,
		Text:     strings.TrimSpace(message.Content),
	}, nil
}

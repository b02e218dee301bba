// Package anthropic implements the Anthropic completions backend. The
// conversation history is flattened into the Human/Assistant prompt-tag
// format the completions endpoint expects.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

const Name = "anthropic"

const (
	// HumanPrompt and AIPrompt are the turn tags of the completions prompt
	// format.
	HumanPrompt = "\n\nHuman:"
	AIPrompt    = "\n\nAssistant:"

	defaultBaseURL    = "https://api.anthropic.com"
	anthropicVersion  = "2023-06-01"
	maxTokensToSample = 100
	httpTimeout       = 60 * time.Second
)

func init() {
	backends.Register(Name, New)
}

// CompletionRequest is the wire shape of a /v1/complete call.
type CompletionRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	Temperature       float64  `json:"temperature"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

// CompletionResponse is the wire shape of the endpoint's answer.
type CompletionResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
	Model      string `json:"model"`
}

type Client struct {
	spec    backends.ModelSpec
	http    *http.Client
	baseURL string
	apiKey  string
	logger  zerolog.Logger
}

func New(spec backends.ModelSpec) (backends.Backend, error) {
	spec.EnsureDefaults()
	creds, err := backends.LoadCredentials(Name)
	if err != nil {
		return nil, err
	}
	baseURL := defaultBaseURL
	if creds.URI != "" {
		baseURL = strings.TrimRight(creds.URI, "/")
	}
	return &Client{
		spec:    spec,
		http:    &http.Client{Timeout: httpTimeout},
		baseURL: baseURL,
		apiKey:  creds.APIKey,
		logger:  log.With().Str("component", "backend.anthropic").Str("model", spec.Name).Logger(),
	}, nil
}

func (c *Client) Spec() backends.ModelSpec { return c.spec }

func (c *Client) Generate(ctx context.Context, messages []backends.Message) (backends.Completion, error) {
	return backends.GenerateWithRetry(ctx, c.logger, func() (backends.Completion, error) {
		return c.generate(ctx, messages)
	})
}

func (c *Client) generate(ctx context.Context, messages []backends.Message) (backends.Completion, error) {
	req := CompletionRequest{
		Model:             c.spec.ModelID,
		Prompt:            BuildPrompt(messages),
		Temperature:       c.spec.TemperatureValue(),
		MaxTokensToSample: maxTokensToSample,
		StopSequences:     []string{HumanPrompt, "\n"},
	}
	var resp CompletionResponse
	if err := c.post(ctx, "/v1/complete", req, &resp); err != nil {
		return backends.Completion{}, err
	}
	return backends.Completion{
		Prompt:   req,
		Response: resp,
		Text:     strings.TrimSpace(resp.Completion),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encoding anthropic request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building anthropic request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling anthropic")
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading anthropic response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("anthropic returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return errors.Wrap(json.Unmarshal(payload, out), "decoding anthropic response")
}

// BuildPrompt flattens the history into the completions prompt format and
// leaves the assistant tag open for the continuation.
func BuildPrompt(messages []backends.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case backends.RoleAssistant:
			sb.WriteString(AIPrompt + " " + m.Content)
		case backends.RoleUser:
			sb.WriteString(HumanPrompt + " " + m.Content)
		}
	}
	sb.WriteString(AIPrompt)
	return sb.String()
}

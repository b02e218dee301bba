// Package alephalpha implements the Aleph Alpha completion backend. The
// "-control" Luminous models take the instruction format; the base models
// take the same prompt-tag format as the anthropic backend.
package alephalpha

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
	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/anthropic"
)

const Name = "alephalpha"

const (
	defaultBaseURL = "https://api.aleph-alpha.com"
	maximumTokens  = 100
	httpTimeout    = 60 * time.Second
)

func init() {
	backends.Register(Name, New)
}

// CompletionRequest is the wire shape of a /complete call.
type CompletionRequest struct {
	Model         string   `json:"model"`
	Prompt        string   `json:"prompt"`
	MaximumTokens int      `json:"maximum_tokens"`
	StopSequences []string `json:"stop_sequences,omitempty"`
	Temperature   float64  `json:"temperature"`
}

// CompletionResponse is the wire shape of the endpoint's answer.
type CompletionResponse struct {
	ModelVersion string `json:"model_version"`
	Completions  []struct {
		Completion   string `json:"completion"`
		FinishReason string `json:"finish_reason"`
	} `json:"completions"`
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
		logger:  log.With().Str("component", "backend.alephalpha").Str("model", spec.Name).Logger(),
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
		Model:         c.spec.ModelID,
		Prompt:        BuildPrompt(c.spec.ModelID, messages),
		MaximumTokens: maximumTokens,
		StopSequences: []string{"\n"},
		Temperature:   c.spec.TemperatureValue(),
	}
	var resp CompletionResponse
	if err := c.post(ctx, "/complete", req, &resp); err != nil {
		return backends.Completion{}, err
	}
	if len(resp.Completions) == 0 {
		return backends.Completion{}, errors.Wrap(backends.ErrContractViolation, "alephalpha response carries no completions")
	}
	return backends.Completion{
		Prompt:   req,
		Response: resp,
		Text:     strings.TrimSpace(resp.Completions[0].Completion),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encoding alephalpha request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building alephalpha request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling alephalpha")
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading alephalpha response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("alephalpha returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return errors.Wrap(json.Unmarshal(payload, out), "decoding alephalpha response")
}

// BuildPrompt flattens the history into the format the model family expects.
func BuildPrompt(modelID string, messages []backends.Message) string {
	var sb strings.Builder
	if strings.Contains(modelID, "control") {
		for _, m := range messages {
			switch m.Role {
			case backends.RoleAssistant:
				sb.WriteString("### Response:" + m.Content)
			case backends.RoleUser:
				sb.WriteString("### Instruction:" + m.Content)
			}
		}
		return sb.String()
	}
	return anthropic.BuildPrompt(messages)
}

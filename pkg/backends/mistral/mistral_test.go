package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	api "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

func TestClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req api.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-medium", req.Model)

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "mistral-medium",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": " bonjour "}, "finish_reason": "stop"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	cfg := api.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	spec := backends.NewModelSpec("mistral-medium")
	spec.EnsureDefaults()
	client := newClient(spec, api.NewClientWithConfig(cfg))

	completion, err := client.Generate(context.Background(), []backends.Message{
		{Role: backends.RoleUser, Content: "salut"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", completion.Text)
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "mistral-tiny", "object": "model"},
				{"id": "mistral-medium", "object": "model"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	cfg := api.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	client := newClient(backends.NewModelSpec("mistral-medium"), api.NewClientWithConfig(cfg))

	ids, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mistral-tiny", "mistral-medium"}, ids)
}

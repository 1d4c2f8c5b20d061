package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, body map[string]any, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
			return
		}
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	}
}

func TestProvider_Complete(t *testing.T) {
	var req map[string]any
	srv := completionServer(t, http.StatusOK, chatResponse("const game = {};"), &req)
	defer srv.Close()

	p := NewProvider("sk-test", srv.URL+"/", "", option.WithMaxRetries(0))
	got, err := p.Complete(context.Background(), "make a game")
	require.NoError(t, err)
	assert.Equal(t, "const game = {};", got)

	assert.Equal(t, "gpt-4", req["model"])
	assert.EqualValues(t, 4000, req["max_tokens"])
	assert.InDelta(t, 0.7, req["temperature"], 1e-9)
	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "make a game", msg["content"])
}

func TestProvider_CompleteNoChoices(t *testing.T) {
	resp := chatResponse("")
	resp["choices"] = []map[string]any{}
	srv := completionServer(t, http.StatusOK, resp, nil)
	defer srv.Close()

	p := NewProvider("sk-test", srv.URL+"/", "gpt-4o", option.WithMaxRetries(0))
	_, err := p.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestProvider_CompleteAPIError(t *testing.T) {
	srv := completionServer(t, http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"message": "upstream exploded", "type": "server_error"},
	}, nil)
	defer srv.Close()

	p := NewProvider("sk-test", srv.URL+"/", "", option.WithMaxRetries(0))
	_, err := p.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai chat completion")
}

func TestProvider_Defaults(t *testing.T) {
	p := NewProvider("sk-test", "", "")
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, DefaultModel, p.Model())
}

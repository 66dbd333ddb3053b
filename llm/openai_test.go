package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "openai/gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "3"}}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL}, logger.Nop())
	text, err := p.Generate(context.Background(), Request{
		Prompt: "Классифицируй: привет", Model: "openai/gpt-4o-mini", Temperature: 0.5, MaxTokens: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "3", text)
	assert.Equal(t, "openai/gpt-4o-mini", got["model"])
	assert.Equal(t, 0.5, got["temperature"])
	assert.Equal(t, float64(1000), got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestOpenAIProviderWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL}, logger.Nop())
	_, err := p.Generate(context.Background(), Request{Prompt: "x", Model: "nope"})
	require.Error(t, err)
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "nope", genErr.Model)
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}, logger.Nop())
	_, err := p.Generate(context.Background(), Request{Prompt: "x", Model: "m"})
	var genErr *GenerationError
	assert.True(t, errors.As(err, &genErr))
}

func TestBaseModelName(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", baseModelName("openai/gpt-4o-mini"))
	assert.Equal(t, "gpt-4o", baseModelName("gpt-4o"))
}

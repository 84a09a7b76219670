// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
)

// =============================================================================
// Helpers
// =============================================================================

func testContext() []Message {
	return []Message{
		{Role: RoleUser, Content: "You are EduBot."},
		{Role: RoleUser, Content: "What is a noun?"},
		{Role: RoleModel, Content: "A noun names a thing."},
		{Role: RoleUser, Content: "Give an example"},
	}
}

func defaultParams() GenerationParams {
	return ParamsFromConfig(datatypes.DefaultGenerationConfig())
}

// =============================================================================
// Params Tests
// =============================================================================

func TestParamsFromConfig(t *testing.T) {
	p := defaultParams()

	require.NotNil(t, p.Temperature)
	require.NotNil(t, p.TopP)
	require.NotNil(t, p.TopK)
	require.NotNil(t, p.MaxTokens)
	assert.InDelta(t, 0.7, *p.Temperature, 1e-6)
	assert.InDelta(t, 0.95, *p.TopP, 1e-6)
	assert.Equal(t, 40, *p.TopK)
	assert.Equal(t, 1024, *p.MaxTokens)
	assert.Equal(t, "text/plain", p.MimeType)
}

// =============================================================================
// Gemini Tests
// =============================================================================

type fakeGenerator struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.options)
	}
	return f.resp, f.err
}

func TestGeminiClient_Chat(t *testing.T) {
	fake := &fakeGenerator{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "The cat."}},
	}}
	client := &GeminiClient{model: fake, modelName: DefaultGeminiModel}

	reply, err := client.Chat(context.Background(), testContext(), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, "The cat.", reply)

	require.Len(t, fake.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.messages[2].Role)
	assert.Equal(t, llms.TextContent{Text: "A noun names a thing."}, fake.messages[2].Parts[0])

	assert.Equal(t, DefaultGeminiModel, fake.options.Model)
	assert.InDelta(t, 0.7, fake.options.Temperature, 1e-6)
	assert.InDelta(t, 0.95, fake.options.TopP, 1e-6)
	assert.Equal(t, 40, fake.options.TopK)
	assert.Equal(t, 1024, fake.options.MaxTokens)
	assert.False(t, fake.options.JSONMode)
}

func TestGeminiClient_Chat_Errors(t *testing.T) {
	t.Run("backend error wrapped", func(t *testing.T) {
		cause := errors.New("quota exceeded")
		client := &GeminiClient{model: &fakeGenerator{err: cause}, modelName: "m"}

		_, err := client.Chat(context.Background(), testContext(), defaultParams())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("no choices", func(t *testing.T) {
		client := &GeminiClient{model: &fakeGenerator{resp: &llms.ContentResponse{}}, modelName: "m"}

		_, err := client.Chat(context.Background(), testContext(), defaultParams())
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestGeminiClient_JSONMode(t *testing.T) {
	fake := &fakeGenerator{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "{}"}},
	}}
	client := &GeminiClient{model: fake, modelName: "m"}

	params := defaultParams()
	params.MimeType = "application/json"
	_, err := client.Chat(context.Background(), testContext(), params)
	require.NoError(t, err)
	assert.True(t, fake.options.JSONMode)
}

// =============================================================================
// OpenAI Tests
// =============================================================================

func TestOpenAIClient_Chat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "The cat."}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-key", "", server.URL+"/v1")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, client.Model())

	reply, err := client.Chat(context.Background(), testContext(), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, "The cat.", reply)

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	assert.InDelta(t, 0.7, captured["temperature"], 1e-6)
	assert.InDelta(t, 0.95, captured["top_p"], 1e-6)
	assert.EqualValues(t, 1024, captured["max_completion_tokens"])
}

func TestOpenAIClient_Chat_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-key", "gpt-4o", server.URL+"/v1")
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), testContext(), defaultParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API call failed")
}

// =============================================================================
// Anthropic Tests
// =============================================================================

func TestAnthropicClient_Chat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "The "}, {"type": "text", "text": "cat."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient("test-key", "", server.URL+"/v1")
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, client.Model())

	reply, err := client.Chat(context.Background(), testContext(), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, "The cat.", reply)

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	assert.EqualValues(t, 1024, captured["max_tokens"])
	assert.EqualValues(t, 40, captured["top_k"])
	assert.InDelta(t, 0.7, captured["temperature"], 1e-6)
}

func TestAnthropicClient_Chat_NoText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "msg_2", "type": "message", "role": "assistant", "content": [], "stop_reason": "end_turn"}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient("test-key", "claude", server.URL+"/v1")
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), testContext(), defaultParams())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

// =============================================================================
// Factory Tests
// =============================================================================

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	t.Run("missing keys", func(t *testing.T) {
		for _, backend := range []string{"", "gemini", "openai", "anthropic", "claude"} {
			client, err := NewClient(ctx, Config{Backend: backend})
			assert.ErrorIs(t, err, ErrMissingAPIKey, "backend %q", backend)
			assert.Nil(t, client, "backend %q", backend)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewClient(ctx, Config{Backend: "ollama"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("openai selected case-insensitively", func(t *testing.T) {
		client, err := NewClient(ctx, Config{Backend: " OpenAI ", OpenAIAPIKey: "k", Model: "gpt-4o"})
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, client)
		assert.Equal(t, "gpt-4o", client.Model())
	})

	t.Run("claude alias", func(t *testing.T) {
		client, err := NewClient(ctx, Config{Backend: "claude", AnthropicAPIKey: "k"})
		require.NoError(t, err)
		assert.IsType(t, &AnthropicClient{}, client)
	})
}

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
	"fmt"
	"log/slog"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// defaultAnthropicMaxTokens is sent when the caller gives no limit; the
// Messages API requires one.
const defaultAnthropicMaxTokens = 1024

type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient builds a client for the Anthropic Messages API.
// baseURL may be empty to use the public endpoint.
func NewAnthropicClient(apiKey, model, baseURL string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	slog.Info("Initializing Anthropic client", "model", model)
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}, nil
}

func (a *AnthropicClient) Model() string { return a.model }

// Chat implements the LLMClient interface
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Anthropic", "model", a.model, "messages", len(messages))

	msgs := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		role := anthropic.RoleUser
		if m.Role == RoleModel {
			role = anthropic.RoleAssistant
		}
		msgs = append(msgs, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
		})
	}

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(a.model),
		Messages:    msgs,
		MaxTokens:   defaultAnthropicMaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}

	resp, err := a.client.CreateMessages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	slog.Debug("Received response from Anthropic", "stop_reason", resp.StopReason)
	return sb.String(), nil
}

var _ LLMClient = (*AnthropicClient)(nil)

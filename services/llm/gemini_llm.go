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

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the part of llms.Model the Gemini client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type GeminiClient struct {
	model     contentGenerator
	modelName string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	g, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	slog.Info("Initializing Gemini client", "model", model)
	return &GeminiClient{model: g, modelName: model}, nil
}

func (g *GeminiClient) Model() string { return g.modelName }

// Chat implements the LLMClient interface
func (g *GeminiClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Gemini", "model", g.modelName, "messages", len(messages))

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(geminiRole(m.Role), m.Content))
	}

	resp, err := g.model.GenerateContent(ctx, content, geminiOptions(g.modelName, params)...)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, choice := range resp.Choices {
		sb.WriteString(choice.Content)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// geminiRole maps backend roles onto langchaingo's chat types. The googleai
// provider sends ChatMessageTypeAI as Gemini's "model" role.
func geminiRole(r Role) llms.ChatMessageType {
	if r == RoleModel {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}

func geminiOptions(model string, params GenerationParams) []llms.CallOption {
	opts := []llms.CallOption{llms.WithModel(model)}
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if params.TopK != nil {
		opts = append(opts, llms.WithTopK(*params.TopK))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if params.MimeType == "application/json" {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

var _ LLMClient = (*GeminiClient)(nil)

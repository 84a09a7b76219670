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
	"errors"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
)

// ErrMissingAPIKey is returned by the constructors when no API key is set for
// the selected backend.
var ErrMissingAPIKey = errors.New("llm: API key not set")

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("llm: backend returned no content")

// Role is the backend-side author vocabulary.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of the context sent to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	MimeType    string   `json:"mime_type"`
}

// ParamsFromConfig converts the chat generation config into call parameters.
func ParamsFromConfig(cfg datatypes.GenerationConfig) GenerationParams {
	temp, topP := cfg.Temperature, cfg.TopP
	topK, maxTokens := cfg.TopK, cfg.MaxOutputTokens
	return GenerationParams{
		Temperature: &temp,
		TopK:        &topK,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
		MimeType:    cfg.MimeType,
	}
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Chat sends the ordered context and returns the reply text.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// Model names the model requests are sent to.
	Model() string
}

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
	"strings"
)

// Backend names accepted by NewClient.
const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendClaude    = "claude"
)

// Config selects and configures one backend.
type Config struct {
	Backend         string
	Model           string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// BaseURL overrides the API endpoint for the openai and anthropic
	// backends.
	BaseURL string
}

// NewClient constructs the backend named by cfg.Backend.
//
// # Outputs
//
//   - LLMClient: Ready to use.
//   - error: wraps ErrMissingAPIKey when the backend's key is empty, or names
//     an unknown backend.
func NewClient(ctx context.Context, cfg Config) (LLMClient, error) {
	var (
		client LLMClient
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendGemini:
		client, err = asClient(NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model))
	case BackendOpenAI:
		client, err = asClient(NewOpenAIClient(cfg.OpenAIAPIKey, cfg.Model, cfg.BaseURL))
	case BackendAnthropic, BackendClaude:
		client, err = asClient(NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model, cfg.BaseURL))
	default:
		err = fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// asClient keeps a typed nil pointer from leaking into the interface.
func asClient[T LLMClient](c T, err error) (LLMClient, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

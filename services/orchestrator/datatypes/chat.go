// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the conversation model (Turn, Role) and the request and
// response bodies of the chat endpoints.
package datatypes

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Larger payloads are rejected before they reach the history store.
	MaxMessageContentBytes = 32 * 1024 // 32KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxMessageContentBytes.
//
// # Description
//
// Checks byte length (not rune count) so that multi-byte input cannot be used
// to sneak past the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Model
// =============================================================================

// Role identifies the author of a Turn.
type Role string

const (
	// RoleUser marks a turn written by the person chatting.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by EduBot (model reply or refusal).
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation history.
//
// # Description
//
// Turns are immutable once created and ordered by creation time. They are
// serialized to clients as {"role": "...", "content": "..."}.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds a user Turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an assistant Turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// =============================================================================
// Generation Config
// =============================================================================

// GenerationConfig holds the sampling parameters sent with every in-scope
// request.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int
	MimeType        string
}

// DefaultGenerationConfig returns the fixed parameters applied to every
// backend call. A new value is returned on each call so callers cannot
// mutate a shared instance.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 1024,
		MimeType:        "text/plain",
	}
}

// =============================================================================
// Request / Response Bodies
// =============================================================================

// ChatRequest is the body of POST /chat.
//
// # Validation
//
//   - Message: required (non-empty), at most 32KB. Whitespace is kept
//     as-is; a whitespace-only message is valid and gets classified.
type ChatRequest struct {
	Message string `json:"message" validate:"required,maxbytes"`
}

// Validate checks the request against its validation tags.
//
// # Outputs
//
//   - error: nil when valid, otherwise a *ValidationError naming the failed rule.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Field(), Rule: verrs[0].Tag()}
		}
		return fmt.Errorf("chat request validation: %w", err)
	}
	return nil
}

// ValidationError reports the first failing validation rule of a request.
type ValidationError struct {
	Field string
	Rule  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s failed rule %s", e.Field, e.Rule)
}

// ChatResponse is the success body of POST /chat.
type ChatResponse struct {
	Reply   string `json:"reply"`
	History []Turn `json:"history"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	History []Turn `json:"history"`
}

// StatusResponse is the body of POST /clear_history.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON error envelope used by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP endpoints of the EduBot server.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
	"github.com/AleutianAI/edubot/services/orchestrator/observability"
)

// Client-facing error messages.
const (
	MsgBackendNotConfigured = "LLM backend API key not set. Set the API key for the selected backend."
	MsgNoJSON               = "No JSON data received"
	MsgNoMessage            = "No message provided"
	MsgMessageTooLong       = "Message too long"
	MsgBackendFailed        = "The tutoring backend failed to respond. Please try again."
	MsgInternal             = "internal error"
)

// HandlerConfig carries the settings shared by the chat handlers.
type HandlerConfig struct {
	// ExposeBackendErrors returns the backend's error text to clients
	// instead of MsgBackendFailed.
	ExposeBackendErrors bool

	// Metrics may be nil.
	Metrics *observability.ChatMetrics
}

// writeError aborts the request with the JSON error envelope.
func writeError(c *gin.Context, cfg HandlerConfig, endpoint observability.Endpoint, code observability.ErrorCode, status int, msg string) {
	cfg.Metrics.RecordError(endpoint, code)
	c.AbortWithStatusJSON(status, datatypes.ErrorResponse{Error: msg})
}

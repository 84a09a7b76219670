// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
	"github.com/AleutianAI/edubot/services/orchestrator/middleware"
	"github.com/AleutianAI/edubot/services/orchestrator/observability"
	"github.com/AleutianAI/edubot/services/orchestrator/services"
)

var chatTracer = otel.Tracer("edubot.orchestrator.handlers")

// HandleChat serves POST /chat.
//
// # Description
//
// Checks that a backend is configured, validates {"message": "..."}, runs
// the exchange and answers {"reply", "history"}. When the history store
// minted a new session id the cookie is re-issued, also on backend failure
// since the user turn was recorded.
//
// # Errors
//
//   - 400: missing/malformed body, empty message, message over 32KB
//
// The message is classified and stored exactly as received.
//   - 500: backend not configured, backend failure, store failure
func HandleChat(tutor *services.TutorService, cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		if !tutor.BackendAvailable() {
			span.SetStatus(codes.Error, "backend not configured")
			writeError(c, cfg, observability.EndpointChat, observability.ErrorCodeUnconfigured,
				http.StatusInternalServerError, MsgBackendNotConfigured)
			return
		}

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			slog.Warn("Failed to parse the chat request", "error", err)
			writeError(c, cfg, observability.EndpointChat, observability.ErrorCodeValidation,
				http.StatusBadRequest, MsgNoJSON)
			return
		}
		if err := req.Validate(); err != nil {
			msg := MsgNoMessage
			var verr *datatypes.ValidationError
			if errors.As(err, &verr) && verr.Rule == "maxbytes" {
				msg = MsgMessageTooLong
			}
			writeError(c, cfg, observability.EndpointChat, observability.ErrorCodeValidation,
				http.StatusBadRequest, msg)
			return
		}
		message := req.Message

		requested := middleware.GetSessionID(c)
		res, err := tutor.HandleMessage(ctx, requested, message)
		if res != nil && res.SessionID != requested {
			if cookieErr := middleware.SetSessionID(c, res.SessionID); cookieErr != nil {
				slog.Error("Failed to save session cookie", "error", cookieErr)
			}
		}
		if res != nil {
			span.SetAttributes(attribute.String("session.id", res.SessionID))
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
			switch {
			case errors.Is(err, services.ErrBackendUnavailable):
				writeError(c, cfg, observability.EndpointChat, observability.ErrorCodeUnconfigured,
					http.StatusInternalServerError, MsgBackendNotConfigured)
			case services.IsBackendError(err):
				msg := MsgBackendFailed
				var be *services.BackendError
				if cfg.ExposeBackendErrors && errors.As(err, &be) {
					msg = be.Err.Error()
				}
				writeError(c, cfg, observability.EndpointChat, observability.ErrorCodeLLMError,
					http.StatusInternalServerError, msg)
			default:
				slog.Error("Chat exchange failed", "error", err)
				writeError(c, cfg, observability.EndpointChat, observability.ErrorCodeInternal,
					http.StatusInternalServerError, MsgInternal)
			}
			return
		}

		slog.Info("Chat handled",
			"session_id", res.SessionID,
			"in_scope", res.InScope,
			"history_len", len(res.History),
		)
		c.JSON(http.StatusOK, datatypes.ChatResponse{Reply: res.Reply, History: res.History})
	}
}

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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
	"github.com/AleutianAI/edubot/services/orchestrator/middleware"
	"github.com/AleutianAI/edubot/services/orchestrator/observability"
	"github.com/AleutianAI/edubot/services/orchestrator/services"
)

// HandleGetHistory serves GET /history. Requests without a session get an
// empty list; the cookie is never modified.
func HandleGetHistory(tutor *services.TutorService, cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		turns, err := tutor.GetHistory(c.Request.Context(), middleware.GetSessionID(c))
		if err != nil {
			slog.Error("Failed to read history", "error", err)
			writeError(c, cfg, observability.EndpointHistory, observability.ErrorCodeInternal,
				http.StatusInternalServerError, MsgInternal)
			return
		}
		c.JSON(http.StatusOK, datatypes.HistoryResponse{History: turns})
	}
}

// HandleClearHistory serves POST /clear_history. Always answers
// {"status": "success"} unless the store fails.
func HandleClearHistory(tutor *services.TutorService, cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := tutor.ClearHistory(c.Request.Context(), middleware.GetSessionID(c)); err != nil {
			slog.Error("Failed to clear history", "error", err)
			writeError(c, cfg, observability.EndpointClearHistory, observability.ErrorCodeInternal,
				http.StatusInternalServerError, MsgInternal)
			return
		}
		c.JSON(http.StatusOK, datatypes.StatusResponse{Status: "success"})
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/edubot/services/orchestrator/middleware"
	"github.com/AleutianAI/edubot/services/orchestrator/services"
)

// HandleIndex serves the chat page and makes sure the visitor has a session
// with an (initially empty) history.
func HandleIndex(tutor *services.TutorService, page []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		requested := middleware.GetSessionID(c)
		id, _, err := tutor.EnsureSession(c.Request.Context(), requested)
		if err != nil {
			slog.Error("Failed to initialize session", "error", err)
		} else if id != requested {
			if err := middleware.SetSessionID(c, id); err != nil {
				slog.Error("Failed to save session cookie", "error", err)
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}

// HealthCheck serves GET /health.
func HealthCheck(tutor *services.TutorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"backend": tutor.BackendAvailable(),
		})
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/edubot/services/orchestrator/handlers"
	"github.com/AleutianAI/edubot/services/orchestrator/services"
)

// Dependencies holds everything the routes need.
type Dependencies struct {
	Tutor    *services.TutorService
	Handlers handlers.HandlerConfig

	// Sessions is the cookie session middleware. It wraps the browser-facing
	// routes only; /health and /metrics never touch the cookie.
	Sessions gin.HandlerFunc

	// Gatherer backs /metrics. nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// IndexHTML is served at "/".
	IndexHTML []byte

	// Static is served under /static. nil skips the route.
	Static fs.FS
}

// SetupRoutes registers every EduBot route on router.
//
// /health, /metrics and /static are served without the session middleware;
// "/", /chat, /history and /clear_history run behind deps.Sessions.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck(deps.Tutor))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if deps.Static != nil {
		router.StaticFS("/static", http.FS(deps.Static))
	}

	app := router.Group("/")
	if deps.Sessions != nil {
		app.Use(deps.Sessions)
	}
	{
		app.GET("/", handlers.HandleIndex(deps.Tutor, deps.IndexHTML))
		app.POST("/chat", handlers.HandleChat(deps.Tutor, deps.Handlers))
		app.GET("/history", handlers.HandleGetHistory(deps.Tutor, deps.Handlers))
		app.POST("/clear_history", handlers.HandleClearHistory(deps.Tutor, deps.Handlers))
	}
}

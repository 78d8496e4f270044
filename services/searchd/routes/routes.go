// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mollie-ward/vehiclesearch/services/searchd/handlers"
	"github.com/mollie-ward/vehiclesearch/services/searchd/middleware"
)

// SetupRoutes registers every endpoint of the search service.
//
// The /v1 group runs behind the per-session rate limiter and the
// request deadline; /health and /metrics stay outside both so probes
// and scrapes are never throttled.
func SetupRoutes(router *gin.Engine, deps *handlers.Deps) {
	router.GET("/health", handlers.Health(deps))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(
		middleware.RateLimit(deps.Guardrail, deps.Metrics),
		middleware.Deadline(middleware.DefaultRequestTimeout),
	)
	{
		v1.POST("/query/parse", handlers.ParseQuery(deps))
		v1.POST("/query/compose", handlers.ComposeQuery(deps))
		v1.POST("/query/refine", handlers.RefineQuery(deps))

		v1.POST("/search", handlers.Search(deps))
		v1.POST("/search/explain", handlers.Explain(deps))

		v1.GET("/vehicles/:id", handlers.GetVehicle(deps))

		// Session administration routes
		v1.POST("/session", handlers.CreateSession(deps))
		v1.GET("/sessions", handlers.ListSessions(deps))
		sessions := v1.Group("/session")
		{
			sessions.GET("/:id", handlers.GetSession(deps))
			sessions.DELETE("/:id", handlers.DeleteSession(deps))
			sessions.GET("/:id/history", handlers.GetHistory(deps))
		}
	}
}

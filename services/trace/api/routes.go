// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the server spans.
	ServiceName string

	// RateLimit is the sustained requests per second for query routes.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int

	// Metrics enables HTTP metrics. Nil disables them.
	Metrics *telemetry.Metrics

	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// RegisterRoutes registers the call graph routes on rg.
//
// Routes:
//
//	POST /callgraph/hierarchy - Call hierarchy around a method
//	POST /callgraph/path      - Shortest call path between two methods
//	GET  /callgraph/history   - Recent queries
//	GET  /callgraph/history/:id - One stored query
//	GET  /health              - Liveness
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, limit gin.HandlerFunc) {
	callgraph := rg.Group("/callgraph", limit)
	{
		callgraph.POST("/hierarchy", handlers.HandleHierarchy)
		callgraph.POST("/path", handlers.HandlePath)
		callgraph.GET("/history", handlers.HandleHistory)
		callgraph.GET("/history/:id", handlers.HandleHistoryRecord)
	}
	rg.GET("/health", handlers.HandleHealth)
}

// NewRouter builds the gin engine with recovery, tracing, request ids,
// metrics and rate limiting.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "callscope"
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(recoverPanic(cfg.Logger)))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(RequestID())
	if cfg.Metrics != nil {
		router.Use(telemetry.GinMetrics(cfg.Metrics))
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	RegisterRoutes(router.Group("/v1"), handlers, RateLimit(limiter, cfg.Metrics, cfg.Logger))
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	return router
}

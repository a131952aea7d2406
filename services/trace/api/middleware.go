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
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// TraceIDHeader carries the trace id when the request is sampled.
const TraceIDHeader = "X-Trace-ID"

const requestIDKey = "request_id"

// RequestID returns middleware that reuses the caller's X-Request-ID or
// assigns a new UUID, and echoes it in the response along with the trace id
// set by otelgin.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		if traceID := telemetry.TraceID(c.Request.Context()); traceID != "" {
			c.Header(TraceIDHeader, traceID)
		}
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RateLimit returns middleware that rejects requests with 429 once limiter
// runs out of tokens. A nil limiter disables limiting.
//
// Thread Safety: rate.Limiter is safe for concurrent use.
func RateLimit(limiter *rate.Limiter, metrics *telemetry.Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow() {
			c.Next()
			return
		}
		if metrics != nil {
			metrics.RateLimitedTotal.Add(c.Request.Context(), 1,
				metric.WithAttributes(attribute.String("path", c.FullPath())))
		}
		if logger != nil {
			logger.Warn("request rate limited",
				slog.String("request_id", requestID(c)),
				slog.String("path", c.FullPath()),
			)
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error:     "rate limit exceeded",
			Code:      CodeRateLimited,
			RequestID: requestID(c),
		})
	}
}

// recoverPanic turns a handler panic into an INTERNAL_ERROR response.
func recoverPanic(logger *slog.Logger) gin.RecoveryFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context, recovered any) {
		telemetry.LoggerWithTrace(c.Request.Context(), logger).Error("handler panic",
			slog.String("request_id", requestID(c)),
			slog.String("path", c.FullPath()),
			slog.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "internal server error",
			Code:      CodeInternalError,
			RequestID: requestID(c),
		})
	}
}

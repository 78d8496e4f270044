// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the search service.
//
// # Description
//
// Three concerns live here:
//   - Per-session rate limiting, keyed on the X-Session-Id header.
//   - A per-request deadline so a stuck dependency cannot hold a
//     connection open indefinitely.
//   - Error rendering: every failure leaves the service as the same
//     JSON envelope, with the HTTP status derived from the error kind.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/mollie-ward/vehiclesearch/services/guardrail"
	"github.com/mollie-ward/vehiclesearch/services/searchd/observability"
)

// SessionIDHeader carries the session key for rate limiting. Requests
// without it share a single anonymous bucket.
const SessionIDHeader = "X-Session-Id"

// DefaultRequestTimeout bounds one request end to end.
const DefaultRequestTimeout = 3 * time.Second

// softWarnKey flags a rate-limit soft warning for handlers to surface.
const softWarnKey = "rate_limit_soft_warning"

// RateLimit rejects requests that exceed the per-session sliding-window
// limits with a 429 envelope carrying the cooldown hint.
//
// # Thread Safety
//
// Safe for concurrent use; the engine's limiter does its own locking.
func RateLimit(engine *guardrail.Engine, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(SessionIDHeader)

		decision, cooldown := engine.CheckRate(sessionID, time.Now())
		switch decision.Action {
		case guardrail.ActionBlock:
			if metrics != nil {
				metrics.RateLimitedTotal.Inc()
			}
			RespondRateLimited(c, decision.Message, cooldown)
			c.Abort()
			return
		case guardrail.ActionWarn:
			c.Set(softWarnKey, decision.Message)
		}
		c.Next()
	}
}

// SoftWarning returns the rate-limit warning recorded for this request,
// if any.
func SoftWarning(c *gin.Context) (string, bool) {
	v, ok := c.Get(softWarnKey)
	if !ok {
		return "", false
	}
	msg, ok := v.(string)
	return msg, ok
}

// Deadline bounds every request with a timeout. Handlers and their
// dependency calls see the cancellation through the request context.
func Deadline(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TraceID returns the active trace id for the request, or empty when no
// span is recording.
func TraceID(c *gin.Context) string {
	span := trace.SpanContextFromContext(c.Request.Context())
	if !span.HasTraceID() {
		return ""
	}
	return span.TraceID().String()
}

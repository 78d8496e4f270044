// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mollie-ward/vehiclesearch/services/guardrail"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// RespondError renders err as the standard JSON envelope with a status
// derived from the error kind. Internal errors are logged with the
// underlying cause but surfaced with a generic message.
func RespondError(c *gin.Context, err error) {
	status, code := statusAndCode(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		message = "internal error"
	}

	var details any
	var rateErr *datatypes.RateLimitError
	if errors.As(err, &rateErr) {
		message = rateErr.Message
		details = gin.H{"cooldownSeconds": int(rateErr.Cooldown.Seconds())}
	}

	c.JSON(status, datatypes.NewAPIError(code, message, TraceID(c), details))
}

// RespondBlocked renders a guardrail block decision as a 400 (or 429 for
// rate limits) without leaking rule internals.
func RespondBlocked(c *gin.Context, decision guardrail.Decision) {
	if decision.Category == guardrail.CategoryRateLimit {
		RespondRateLimited(c, decision.Message, 0)
		return
	}
	code := CodeForCategory(decision.Category)
	c.JSON(http.StatusBadRequest, datatypes.NewAPIError(code, decision.Message, TraceID(c), nil))
}

// RespondRateLimited renders a 429 with the cooldown hint in details.
func RespondRateLimited(c *gin.Context, message string, cooldown time.Duration) {
	if message == "" {
		message = "Too many requests. Please slow down."
	}
	var details any
	if cooldown > 0 {
		details = gin.H{"cooldownSeconds": int(cooldown.Seconds())}
	}
	c.JSON(http.StatusTooManyRequests,
		datatypes.NewAPIError(datatypes.CodeRateLimit, message, TraceID(c), details))
}

// statusAndCode maps the error taxonomy onto HTTP statuses and envelope
// codes. Unknown errors are internal by default.
func statusAndCode(err error) (int, datatypes.ErrorCode) {
	switch {
	case errors.Is(err, datatypes.ErrSessionNotFound):
		return http.StatusNotFound, datatypes.CodeSessionNotFound
	case errors.Is(err, datatypes.ErrVehicleNotFound):
		return http.StatusNotFound, datatypes.CodeVehicleNotFound
	case errors.Is(err, datatypes.ErrRateLimited):
		return http.StatusTooManyRequests, datatypes.CodeRateLimit
	case errors.Is(err, datatypes.ErrInvalidQuery):
		return http.StatusBadRequest, datatypes.CodeValidationError
	case errors.Is(err, datatypes.ErrBlocked):
		return http.StatusBadRequest, datatypes.CodeSessionBlocked
	case errors.Is(err, datatypes.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, datatypes.CodeUnavailable
	case errors.Is(err, datatypes.ErrDependencyMisconfigured),
		errors.Is(err, datatypes.ErrInvariantViolation):
		return http.StatusInternalServerError, datatypes.CodeInternalError
	default:
		return http.StatusInternalServerError, datatypes.CodeInternalError
	}
}

// CodeForCategory maps a guardrail category onto the envelope code.
func CodeForCategory(cat guardrail.Category) datatypes.ErrorCode {
	switch cat {
	case guardrail.CategoryOffTopic:
		return datatypes.CodeOffTopic
	case guardrail.CategoryPII:
		return datatypes.CodePII
	case guardrail.CategoryBulkExtraction:
		return datatypes.CodeExtraction
	case guardrail.CategoryInjection:
		return datatypes.CodeInjection
	case guardrail.CategoryProfanity:
		return datatypes.CodeProfanity
	case guardrail.CategoryInputInvalid:
		return datatypes.CodeValidationError
	case guardrail.CategoryRateLimit:
		return datatypes.CodeRateLimit
	default:
		return datatypes.CodeValidationError
	}
}

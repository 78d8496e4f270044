// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"time"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// Sentinel errors for the four error kinds the pipeline distinguishes.
// Boundaries wrap these with %w so callers can errors.Is against them and
// pick the right HTTP status without string matching.
var (
	// ErrInvalidQuery covers bad user input: empty utterances, malformed
	// pagination, operator text that parses to nothing. Never retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrSessionNotFound is returned for missing or expired sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVehicleNotFound is returned when a vehicle id matches nothing.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrBlocked marks a guardrail block decision.
	ErrBlocked = errors.New("query blocked")

	// ErrRateLimited marks a rate-limit block; carries a cooldown hint via
	// RateLimitError.
	ErrRateLimited = errors.New("rate limited")

	// ErrDependencyUnavailable covers transient failures of the embedder
	// or the index after retries are exhausted. Surfaced as 503.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrDependencyMisconfigured covers permanent dependency failures:
	// missing config, absent index, vector dimension mismatch. Not retried.
	ErrDependencyMisconfigured = errors.New("dependency misconfigured")

	// ErrInvariantViolation marks internal bugs: operator/value mismatch,
	// NaN scores, empty filter after a successful compose.
	ErrInvariantViolation = errors.New("internal invariant violation")
)

// ErrorCode is the machine-readable code in API error envelopes.
type ErrorCode string

const (
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeVehicleNotFound ErrorCode = "VEHICLE_NOT_FOUND"
	CodeSessionBlocked  ErrorCode = "SESSION_BLOCKED"
	CodeOffTopic        ErrorCode = "OFF_TOPIC"
	CodePII             ErrorCode = "PII"
	CodeExtraction      ErrorCode = "EXTRACTION"
	CodeInjection       ErrorCode = "INJECTION"
	CodeProfanity       ErrorCode = "PROFANITY"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
)

// APIError is the JSON error envelope every endpoint returns.
//
//	{"error":{"code":"...","message":"...","details":...},
//	 "timestamp":"...","traceId":"..."}
type APIError struct {
	Error     ErrorBody `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId"`
}

// ErrorBody carries the code, user-facing message, and optional details.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// NewAPIError builds an envelope stamped with the current time.
func NewAPIError(code ErrorCode, message, traceID string, details any) APIError {
	return APIError{
		Error:     ErrorBody{Code: code, Message: message, Details: details},
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	}
}

// RateLimitError carries the cooldown hint surfaced with 429 responses.
type RateLimitError struct {
	Message  string
	Cooldown time.Duration
}

func (e *RateLimitError) Error() string { return e.Message }

// Unwrap lets errors.Is(err, ErrRateLimited) succeed.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

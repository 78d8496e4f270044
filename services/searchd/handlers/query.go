// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/mollie-ward/vehiclesearch/services/guardrail"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/middleware"
)

var queryTracer = otel.Tracer("vehiclesearch.handlers")

// utteranceRequest is the body shared by parse and refine.
type utteranceRequest struct {
	SessionID string `json:"sessionId"`
	Utterance string `json:"utterance"`
}

// composeRequest carries a previously parsed query to compose.
type composeRequest struct {
	ParsedQuery *datatypes.ParsedQuery `json:"parsedQuery"`
}

// ParseQuery runs the guardrail and the understanding pipeline over one
// utterance.
//
// # Description
//
// The guardrail verdict comes first. A block terminates the request
// before any parsing, embedding, or index work happens; the response
// carries only the category code and the polite message. On allow the
// parser sees the sanitized utterance, with the session's previous user
// message as disambiguation context when a session id is supplied.
func ParseQuery(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx, span := queryTracer.Start(c.Request.Context(), "HandleParseQuery")
		defer span.End()

		var req utteranceRequest
		if !bindJSON(c, &req) {
			deps.observe("parse", start, false)
			return
		}
		if strings.TrimSpace(req.Utterance) == "" {
			deps.observe("parse", start, false)
			middleware.RespondError(c,
				fmt.Errorf("%w: utterance must not be empty", datatypes.ErrInvalidQuery))
			return
		}

		_, guardSpan := queryTracer.Start(ctx, "GuardrailEvaluate")
		decision := deps.Guardrail.Evaluate(req.Utterance)
		guardSpan.End()
		if decision.Blocked() {
			deps.recordBlock(decision.Category)
			deps.observe("parse", start, false)
			middleware.RespondBlocked(c, decision)
			return
		}

		previous := deps.lastUserUtterance(req.SessionID)
		parseCtx, parseSpan := queryTracer.Start(ctx, "ParseUtterance")
		parsed := deps.Parser.Parse(parseCtx, decision.Sanitized, previous)
		parseSpan.End()

		deps.observe("parse", start, true)
		resp := gin.H{"parsedQuery": parsed, "guardrailAction": decision.Action}
		if decision.Action == guardrail.ActionWarn && decision.MaxResultsCap > 0 {
			resp["maxResultsCap"] = decision.MaxResultsCap
		}
		if msg, ok := middleware.SoftWarning(c); ok {
			resp["warning"] = msg
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ComposeQuery maps a parsed query's entities to constraints and builds
// the composed query with conflict resolution applied.
func ComposeQuery(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		_, span := queryTracer.Start(c.Request.Context(), "HandleComposeQuery")
		defer span.End()

		var req composeRequest
		if !bindJSON(c, &req) {
			deps.observe("compose", start, false)
			return
		}
		if req.ParsedQuery == nil {
			deps.observe("compose", start, false)
			middleware.RespondError(c,
				fmt.Errorf("%w: parsedQuery is required", datatypes.ErrInvalidQuery))
			return
		}

		mapped := deps.Mapper.Map(req.ParsedQuery)
		composed := deps.Composer.Compose(mapped)
		if err := deps.Composer.Validate(composed); err != nil {
			deps.observe("compose", start, false)
			middleware.RespondError(c, err)
			return
		}

		deps.observe("compose", start, true)
		c.JSON(http.StatusOK, gin.H{
			"mappedQuery":   mapped,
			"composedQuery": composed,
		})
	}
}

// RefineQuery merges a follow-up utterance into the session's active
// filters and returns the recomposed query with a field-level diff.
//
// An ambiguous comparative reference comes back as 200 with an
// unresolvedReference payload; the stored filters are untouched.
func RefineQuery(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req utteranceRequest
		if !bindJSON(c, &req) {
			deps.observe("refine", start, false)
			return
		}
		if req.SessionID == "" {
			deps.observe("refine", start, false)
			middleware.RespondError(c,
				fmt.Errorf("%w: sessionId is required", datatypes.ErrInvalidQuery))
			return
		}
		if strings.TrimSpace(req.Utterance) == "" {
			deps.observe("refine", start, false)
			middleware.RespondError(c,
				fmt.Errorf("%w: utterance must not be empty", datatypes.ErrInvalidQuery))
			return
		}

		ctx, span := queryTracer.Start(c.Request.Context(), "HandleRefineQuery")
		defer span.End()

		_, guardSpan := queryTracer.Start(ctx, "GuardrailEvaluate")
		decision := deps.Guardrail.Evaluate(req.Utterance)
		guardSpan.End()
		if decision.Blocked() {
			deps.recordBlock(decision.Category)
			deps.observe("refine", start, false)
			middleware.RespondBlocked(c, decision)
			return
		}

		previous := deps.lastUserUtterance(req.SessionID)
		parseCtx, parseSpan := queryTracer.Start(ctx, "ParseUtterance")
		parsed := deps.Parser.Parse(parseCtx, decision.Sanitized, previous)
		parseSpan.End()

		_, refineSpan := queryTracer.Start(ctx, "RefineQuery")
		result, err := deps.Refiner.Refine(req.SessionID, parsed)
		refineSpan.End()
		if err != nil {
			deps.observe("refine", start, false)
			middleware.RespondError(c, err)
			return
		}

		deps.observe("refine", start, true)
		c.JSON(http.StatusOK, result)
	}
}

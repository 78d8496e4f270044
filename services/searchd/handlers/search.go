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

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/middleware"
	"github.com/mollie-ward/vehiclesearch/services/searchd/search"
)

var searchHandlerTracer = otel.Tracer("vehiclesearch.handlers")

// defaultMaxResults applies when the request leaves maxResults unset.
const defaultMaxResults = 10

// errNoIndex is the answer when the service runs in lightweight mode
// without a search index.
func errNoIndex() error {
	return fmt.Errorf("%w: no search index configured", datatypes.ErrDependencyUnavailable)
}

// topResultSnapshotCount bounds how many result ids a turn records on
// the session for later reference resolution.
const topResultSnapshotCount = 5

// searchRequest accepts either a pre-composed query or a raw utterance.
// With an utterance and a session id the refiner merges it into the
// session's active filters first.
type searchRequest struct {
	SessionID     string                   `json:"sessionId"`
	Utterance     string                   `json:"utterance"`
	ComposedQuery *datatypes.ComposedQuery `json:"composedQuery"`
	MaxResults    int                      `json:"maxResults"`
}

// searchResponse is the ranked search turn outcome.
type searchResponse struct {
	SessionID       string                         `json:"sessionId,omitempty"`
	Results         []datatypes.VehicleResult      `json:"results"`
	Strategy        datatypes.SearchStrategy       `json:"strategy"`
	DurationMs      int64                          `json:"durationMs"`
	Degraded        bool                           `json:"degraded,omitempty"`
	RelaxationHints []search.RelaxationHint        `json:"relaxationHints,omitempty"`
	Diff            *datatypes.RefinementDiff      `json:"diff,omitempty"`
	Unresolved      *datatypes.UnresolvedReference `json:"unresolvedReference,omitempty"`
	Warning         string                         `json:"warning,omitempty"`
}

// Search executes one ranked search turn.
//
// # Description
//
// The request either carries a composed query straight to the
// orchestrator, or an utterance that runs the full pipeline first:
// guardrail, parse, then refine (with a session) or map-and-compose
// (without). Results are re-scored by the ranker before they leave.
// When a session id is supplied the turn is recorded on the session:
// active filters stay current through the refiner, and the result
// snapshot feeds the next turn's reference resolution.
func Search(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx, span := searchHandlerTracer.Start(c.Request.Context(), "HandleSearch")
		defer span.End()

		var req searchRequest
		if !bindJSON(c, &req) {
			deps.observe("search", start, false)
			return
		}
		if deps.Orchestrator == nil {
			deps.observe("search", start, false)
			middleware.RespondError(c, errNoIndex())
			return
		}

		maxResults := req.MaxResults
		if maxResults == 0 {
			maxResults = defaultMaxResults
		}
		if maxResults < 1 || maxResults > search.MaxResultsCap {
			deps.observe("search", start, false)
			middleware.RespondError(c, fmt.Errorf("%w: maxResults must be between 1 and %d",
				datatypes.ErrInvalidQuery, search.MaxResultsCap))
			return
		}

		resp := searchResponse{SessionID: req.SessionID}
		if msg, ok := middleware.SoftWarning(c); ok {
			resp.Warning = msg
		}

		q := req.ComposedQuery
		if q == nil {
			if strings.TrimSpace(req.Utterance) == "" {
				deps.observe("search", start, false)
				middleware.RespondError(c, fmt.Errorf(
					"%w: either composedQuery or utterance is required", datatypes.ErrInvalidQuery))
				return
			}

			_, guardSpan := searchHandlerTracer.Start(ctx, "GuardrailEvaluate")
			decision := deps.Guardrail.Evaluate(req.Utterance)
			guardSpan.End()
			if decision.Blocked() {
				deps.recordBlock(decision.Category)
				deps.observe("search", start, false)
				middleware.RespondBlocked(c, decision)
				return
			}
			if decision.MaxResultsCap > 0 && maxResults > decision.MaxResultsCap {
				maxResults = decision.MaxResultsCap
				resp.Warning = decision.Message
			}

			previous := deps.lastUserUtterance(req.SessionID)
			parseCtx, parseSpan := searchHandlerTracer.Start(ctx, "ParseUtterance")
			parsed := deps.Parser.Parse(parseCtx, decision.Sanitized, previous)
			parseSpan.End()

			if req.SessionID != "" && deps.Store.Exists(req.SessionID) {
				_, refineSpan := searchHandlerTracer.Start(ctx, "RefineQuery")
				result, err := deps.Refiner.Refine(req.SessionID, parsed)
				refineSpan.End()
				if err != nil {
					deps.observe("search", start, false)
					middleware.RespondError(c, err)
					return
				}
				if result.Unresolved != nil {
					deps.observe("search", start, true)
					resp.Results = []datatypes.VehicleResult{}
					resp.Unresolved = result.Unresolved
					c.JSON(http.StatusOK, resp)
					return
				}
				q = result.Query
				resp.Diff = &result.Diff
			} else {
				_, composeSpan := searchHandlerTracer.Start(ctx, "ComposeQuery")
				q = deps.Composer.Compose(deps.Mapper.Map(parsed))
				composeSpan.End()
			}
		}

		// A conflicted or empty query never reaches the index, whichever
		// path produced it.
		if err := deps.Composer.Validate(q); err != nil {
			deps.observe("search", start, false)
			middleware.RespondError(c, err)
			return
		}

		searchResp, err := deps.Orchestrator.Search(ctx, q, maxResults)
		if err != nil {
			deps.observe("search", start, false)
			middleware.RespondError(c, err)
			return
		}

		ranked := deps.Ranker.Rank(searchResp.Results, q)

		if deps.Metrics != nil {
			deps.Metrics.SearchesTotal.WithLabelValues(string(searchResp.Strategy.Type)).Inc()
			deps.Metrics.SearchResultsReturned.Observe(float64(len(ranked)))
			if searchResp.Degraded {
				deps.Metrics.DegradedSearchesTotal.Inc()
			}
		}

		if req.SessionID != "" && deps.Store.Exists(req.SessionID) {
			recordTurn(deps, req.SessionID, req.Utterance, q, searchResp.Strategy.Type, ranked)
		}

		deps.observe("search", start, true)
		resp.Results = ranked
		resp.Strategy = searchResp.Strategy
		resp.DurationMs = searchResp.Duration.Milliseconds()
		resp.Degraded = searchResp.Degraded
		resp.RelaxationHints = searchResp.RelaxationHints
		c.JSON(http.StatusOK, resp)
	}
}

// recordTurn persists the turn's outcome on the session: the result
// snapshot for reference resolution plus a conversation message.
// Session write failures are logged by the store path and do not fail
// the turn; the results are already in hand.
func recordTurn(deps *Deps, sessionID, utterance string, q *datatypes.ComposedQuery,
	strategy datatypes.StrategyType, ranked []datatypes.VehicleResult) {

	sess, err := deps.Store.Get(sessionID)
	if err != nil {
		return
	}

	state := sess.SearchState
	state.LastStrategy = strategy
	state.LastResults = make([]datatypes.ResultSnapshot, 0, len(ranked))
	for _, r := range ranked {
		state.LastResults = append(state.LastResults, datatypes.ResultSnapshot{
			ID:      r.Vehicle.ID,
			Price:   r.Vehicle.Price,
			Mileage: r.Vehicle.Mileage,
		})
	}
	if err := deps.Store.UpdateSearchState(sessionID, state); err != nil {
		return
	}

	topIDs := make([]string, 0, topResultSnapshotCount)
	for _, r := range ranked {
		if len(topIDs) == topResultSnapshotCount {
			break
		}
		topIDs = append(topIDs, r.Vehicle.ID)
	}

	var applied []datatypes.SearchConstraint
	if q != nil {
		applied = q.FilterableConstraints()
	}
	_ = deps.Store.AppendMessage(sessionID, datatypes.ConversationMessage{
		Role:               datatypes.RoleUser,
		Content:            utterance,
		AppliedConstraints: applied,
		ResultCount:        len(ranked),
		TopResultIDs:       topIDs,
	})
}

// Explain scores one vehicle against a parsed query and returns the
// human-readable account of why it matched.
func Explain(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req struct {
			VehicleID   string                 `json:"vehicleId"`
			ParsedQuery *datatypes.ParsedQuery `json:"parsedQuery"`
		}
		if !bindJSON(c, &req) {
			deps.observe("explain", start, false)
			return
		}
		if deps.Orchestrator == nil {
			deps.observe("explain", start, false)
			middleware.RespondError(c, errNoIndex())
			return
		}
		if req.VehicleID == "" || req.ParsedQuery == nil {
			deps.observe("explain", start, false)
			middleware.RespondError(c, fmt.Errorf(
				"%w: vehicleId and parsedQuery are required", datatypes.ErrInvalidQuery))
			return
		}

		vehicle, err := deps.Orchestrator.GetVehicle(c.Request.Context(), req.VehicleID)
		if err != nil {
			deps.observe("explain", start, false)
			middleware.RespondError(c, err)
			return
		}

		explained := deps.Concepts.Explain(vehicle, req.ParsedQuery)
		deps.observe("explain", start, true)
		c.JSON(http.StatusOK, explained)
	}
}

// GetVehicle returns one vehicle by id.
func GetVehicle(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if deps.Orchestrator == nil {
			deps.observe("vehicle_get", start, false)
			middleware.RespondError(c, errNoIndex())
			return
		}
		vehicle, err := deps.Orchestrator.GetVehicle(c.Request.Context(), c.Param("id"))
		if err != nil {
			deps.observe("vehicle_get", start, false)
			middleware.RespondError(c, err)
			return
		}
		deps.observe("vehicle_get", start, true)
		c.JSON(http.StatusOK, vehicle)
	}
}

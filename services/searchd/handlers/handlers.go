// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP endpoints of the search service.
//
// # Description
//
// Handlers are gin closures over a Deps struct so tests can wire fakes
// without global state. The guardrail always runs before any pipeline
// work: a blocked utterance never reaches the parser, the embedder, or
// the index.
package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mollie-ward/vehiclesearch/services/guardrail"
	"github.com/mollie-ward/vehiclesearch/services/searchd/composer"
	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/mapping"
	"github.com/mollie-ward/vehiclesearch/services/searchd/middleware"
	"github.com/mollie-ward/vehiclesearch/services/searchd/observability"
	"github.com/mollie-ward/vehiclesearch/services/searchd/ranking"
	"github.com/mollie-ward/vehiclesearch/services/searchd/refiner"
	"github.com/mollie-ward/vehiclesearch/services/searchd/search"
	"github.com/mollie-ward/vehiclesearch/services/searchd/session"
	"github.com/mollie-ward/vehiclesearch/services/searchd/understanding"
)

// Deps carries every collaborator the endpoints need. Populated once at
// startup; handlers never mutate it.
type Deps struct {
	Store        *session.Store
	Guardrail    *guardrail.Engine
	Parser       *understanding.Parser
	Mapper       *mapping.Mapper
	Composer     *composer.Composer
	Refiner      *refiner.Refiner
	Orchestrator *search.Orchestrator
	Ranker       *ranking.Ranker
	Concepts     *concepts.Mapper
	Metrics      *observability.Metrics
}

// observe records one request outcome when metrics are wired.
func (d *Deps) observe(endpoint string, start time.Time, ok bool) {
	if d.Metrics == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	d.Metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	d.Metrics.RequestDurationSeconds.WithLabelValues(endpoint).
		Observe(time.Since(start).Seconds())
}

// recordBlock counts a guardrail block by category.
func (d *Deps) recordBlock(cat guardrail.Category) {
	if d.Metrics != nil {
		d.Metrics.GuardrailBlocksTotal.WithLabelValues(string(cat)).Inc()
	}
}

// lastUserUtterance returns the most recent user message for a session,
// used as disambiguation context for intent classification. Missing or
// expired sessions yield empty context rather than an error here; the
// caller decides whether session existence is required.
func (d *Deps) lastUserUtterance(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	history, err := d.Store.GetHistory(sessionID, 0)
	if err != nil {
		return ""
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == datatypes.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// bindJSON decodes the request body, answering 400 itself on failure.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		middleware.RespondError(c, fmt.Errorf("%w: %v", datatypes.ErrInvalidQuery, err))
		return false
	}
	return true
}

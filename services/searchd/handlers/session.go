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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/middleware"
)

// CreateSession starts a new conversation and returns it.
func CreateSession(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		sess := deps.Store.Create()
		deps.observe("session_create", start, true)
		c.JSON(http.StatusCreated, sess)
	}
}

// GetSession returns a session by id; 404 when missing or expired.
func GetSession(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		sess, err := deps.Store.Get(c.Param("id"))
		if err != nil {
			deps.observe("session_get", start, false)
			middleware.RespondError(c, err)
			return
		}
		deps.observe("session_get", start, true)
		c.JSON(http.StatusOK, sess)
	}
}

// DeleteSession clears a session. Deleting a missing session succeeds;
// the end state is the same either way.
func DeleteSession(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		deps.Store.Clear(c.Param("id"))
		deps.observe("session_delete", start, true)
		c.Status(http.StatusNoContent)
	}
}

// GetHistory returns a session's messages oldest-first, optionally
// limited to the most recent ?max=N.
func GetHistory(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		maxMessages := 0
		if raw := c.Query("max"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				deps.observe("session_history", start, false)
				middleware.RespondError(c,
					fmt.Errorf("%w: max must be a non-negative integer", datatypes.ErrInvalidQuery))
				return
			}
			maxMessages = n
		}

		history, err := deps.Store.GetHistory(c.Param("id"), maxMessages)
		if err != nil {
			deps.observe("session_history", start, false)
			middleware.RespondError(c, err)
			return
		}
		deps.observe("session_history", start, true)
		c.JSON(http.StatusOK, gin.H{"messages": history, "count": len(history)})
	}
}

// ListSessions returns summaries of every live session, most recently
// accessed first.
func ListSessions(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		summaries := deps.Store.List()
		deps.observe("session_list", start, true)
		c.JSON(http.StatusOK, gin.H{"sessions": summaries, "count": len(summaries)})
	}
}

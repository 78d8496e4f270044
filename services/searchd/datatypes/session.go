// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Conversation Sessions
// =============================================================================

// MessageRole identifies who produced a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one turn record in a session.
type ConversationMessage struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`

	// AppliedConstraints records the constraints this turn put in effect.
	AppliedConstraints []SearchConstraint `json:"appliedConstraints,omitempty"`
	// ResultCount and TopResultIDs summarize what the turn returned.
	ResultCount  int      `json:"resultCount,omitempty"`
	TopResultIDs []string `json:"topResultIds,omitempty"`
}

// ResultSnapshot keeps just enough about a prior result for reference
// resolution ("cheaper ones", "lower mileage") without holding vehicles.
type ResultSnapshot struct {
	ID      string  `json:"id"`
	Price   float64 `json:"price"`
	Mileage int     `json:"mileage"`
}

// SearchState is the per-session canonical search context.
//
// # Invariants
//
//   - ActiveFilters holds at most one constraint per field; a constraint
//     overwritten by a later turn is replaced, not appended.
type SearchState struct {
	// ActiveFilters maps fieldName -> the currently-in-effect constraint.
	ActiveFilters map[string]SearchConstraint `json:"activeFilters"`
	LastResults   []ResultSnapshot            `json:"lastResults,omitempty"`
	LastStrategy  StrategyType                `json:"lastStrategy,omitempty"`
}

// NewSearchState returns an empty state with an allocated filter map.
func NewSearchState() SearchState {
	return SearchState{ActiveFilters: make(map[string]SearchConstraint)}
}

// Clone deep-copies the state so callers can never alias the store's copy.
func (s SearchState) Clone() SearchState {
	out := SearchState{
		ActiveFilters: make(map[string]SearchConstraint, len(s.ActiveFilters)),
		LastStrategy:  s.LastStrategy,
	}
	for k, v := range s.ActiveFilters {
		out.ActiveFilters[k] = v
	}
	if len(s.LastResults) > 0 {
		out.LastResults = make([]ResultSnapshot, len(s.LastResults))
		copy(out.LastResults, s.LastResults)
	}
	return out
}

// ConversationSession is the mutable per-conversation record. It is owned
// exclusively by the session service; everything outside receives copies.
//
// # Invariants
//
//   - len(Messages) <= the store's MaxMessages; oldest evicted first.
//   - LastAccessedAt increases monotonically per access.
type ConversationSession struct {
	SessionID      string                `json:"sessionId"`
	CreatedAt      time.Time             `json:"createdAt"`
	LastAccessedAt time.Time             `json:"lastAccessedAt"`
	Messages       []ConversationMessage `json:"messages"`
	SearchState    SearchState           `json:"currentSearchState"`
	Metadata       map[string]string     `json:"metadata,omitempty"`
}

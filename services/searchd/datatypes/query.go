// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Composed Queries
// =============================================================================

// LogicalOp joins constraints within a group or groups within a query.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
)

// QueryType classifies a composed query by its constraint mix.
type QueryType string

const (
	// QuerySimple has a single constraint.
	QuerySimple QueryType = "simple"
	// QueryFiltered has two or more exact/range constraints and nothing else.
	QueryFiltered QueryType = "filtered"
	// QueryComplex has composite constraints or more than three constraints
	// mixing exact and range.
	QueryComplex QueryType = "complex"
	// QueryMultiModal mixes semantic with exact/range constraints.
	QueryMultiModal QueryType = "multi_modal"
)

// ConstraintGroup is a set of constraints joined by one logical operator.
//
// Priority drives grouping tiers: >= 0.8 high, >= 0.5 medium, else low.
type ConstraintGroup struct {
	Constraints []SearchConstraint `json:"constraints"`
	Op          LogicalOp          `json:"op"`
	Priority    float64            `json:"priority"`
}

// ComposedQuery is the composer's output: grouped constraints, conflict
// diagnostics, and the pre-rendered filter expression for the index.
type ComposedQuery struct {
	Groups       []ConstraintGroup `json:"groups"`
	GroupOp      LogicalOp         `json:"groupOp"`
	Type         QueryType         `json:"type"`
	Warnings     []string          `json:"warnings,omitempty"`
	HasConflicts bool              `json:"hasConflicts"`

	// FilterExpression is the backend filter string. Empty when the query
	// has only semantic constraints.
	FilterExpression string `json:"filterExpression"`
}

// AllConstraints flattens every group into a single slice.
func (q ComposedQuery) AllConstraints() []SearchConstraint {
	var out []SearchConstraint
	for _, g := range q.Groups {
		out = append(out, g.Constraints...)
	}
	return out
}

// SemanticConstraints returns only the semantic constraints.
func (q ComposedQuery) SemanticConstraints() []SearchConstraint {
	var out []SearchConstraint
	for _, c := range q.AllConstraints() {
		if c.Kind == KindSemantic {
			out = append(out, c)
		}
	}
	return out
}

// FilterableConstraints returns only the exact/range constraints.
func (q ComposedQuery) FilterableConstraints() []SearchConstraint {
	var out []SearchConstraint
	for _, c := range q.AllConstraints() {
		if c.IsFilterable() {
			out = append(out, c)
		}
	}
	return out
}

// HasEqOn reports whether the query pins the field with an explicit Eq.
// The ranker uses this to skip diversity when the user narrowed to a
// specific make or model.
func (q ComposedQuery) HasEqOn(fieldName string) bool {
	for _, c := range q.AllConstraints() {
		if c.FieldName == fieldName && c.Operator == OpEq && c.Kind == KindExact {
			return true
		}
	}
	return false
}

// =============================================================================
// Search Strategy
// =============================================================================

// StrategyType names the execution plan for a query.
type StrategyType string

const (
	StrategyExactOnly    StrategyType = "exact_only"
	StrategySemanticOnly StrategyType = "semantic_only"
	StrategyHybrid       StrategyType = "hybrid"
)

// SearchApproach names one leg of a strategy.
type SearchApproach string

const (
	ApproachExactMatch     SearchApproach = "exact_match"
	ApproachSemanticSearch SearchApproach = "semantic_search"
)

// SearchStrategy is the orchestrator's declarative plan: which executors
// run and with what weights.
//
// # Invariants
//
//   - Weights sum to 1 across approaches.
type SearchStrategy struct {
	Type          StrategyType               `json:"type"`
	Weights       map[SearchApproach]float64 `json:"weights"`
	ShouldRerank  bool                       `json:"shouldRerank"`
	// Reason is a short log-friendly account of why this strategy won.
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Refinement Diffs
// =============================================================================

// RefinementDiff records how a follow-up utterance changed the session's
// active filters, keyed by field name.
type RefinementDiff struct {
	AddedFields   []string `json:"addedFields"`
	UpdatedFields []string `json:"updatedFields"`
	RemovedFields []string `json:"removedFields"`
}

// UnresolvedReference is returned when a comparative utterance ("more like
// that one") is ambiguous over several prior results. The client echoes it
// back with a selection rather than the service guessing.
type UnresolvedReference struct {
	Message    string   `json:"message"`
	Candidates []string `json:"candidateIds"`
}

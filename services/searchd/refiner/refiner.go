// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package refiner merges a follow-up utterance's constraints into the
// session's active filters and resolves references to prior results
// ("cheaper ones", "remove the price limit").
package refiner

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/mollie-ward/vehiclesearch/services/searchd/composer"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/mapping"
	"github.com/mollie-ward/vehiclesearch/services/searchd/session"
)

// priceEpsilon is subtracted from the cheapest prior result so "cheaper
// ones" strictly excludes everything already shown.
const priceEpsilon = 1.0

// Reference phrases resolved against the session's last results.
var (
	cheaperRe      = regexp.MustCompile(`(?i)\bcheaper\b|\bless expensive\b|\blower price`)
	lowerMileageRe = regexp.MustCompile(`(?i)\blower mileage\b|\bfewer miles\b|\bless miles\b`)
	likeThatRe     = regexp.MustCompile(`(?i)\b(?:more )?like (?:that|this)(?: one)?\b|\bsimilar to (?:that|this)\b`)
	removePriceRe  = regexp.MustCompile(`(?i)\b(?:remove|drop|undo|clear|forget|scrap)\b.{0,12}\b(?:price|budget)\b|\bno (?:price|budget) limit\b|\bany price\b`)
)

// Result is one refinement turn's outcome.
//
// When the utterance contains an ambiguous reference, Unresolved is set
// and Query is nil; the client picks a candidate and retries.
type Result struct {
	Query  *datatypes.ComposedQuery              `json:"composedQuery,omitempty"`
	Diff   datatypes.RefinementDiff              `json:"diff"`
	Merged map[string]datatypes.SearchConstraint `json:"activeFilters,omitempty"`

	Unresolved *datatypes.UnresolvedReference `json:"unresolvedReference,omitempty"`
}

// Refiner owns the merge of new constraints into session search state.
type Refiner struct {
	store    *session.Store
	mapper   *mapping.Mapper
	composer *composer.Composer
}

// NewRefiner wires the refiner to its collaborators.
func NewRefiner(store *session.Store, mapper *mapping.Mapper, comp *composer.Composer) *Refiner {
	return &Refiner{store: store, mapper: mapper, composer: comp}
}

// Refine merges the parsed utterance into the session's active filters.
//
// # Description
//
// Steps:
//  1. Resolve references against the session's last results. An
//     ambiguous "more like that one" over several candidates returns an
//     UnresolvedReference instead of guessing.
//  2. Map the utterance's entities to constraints and merge them into
//     activeFilters, last-write-wins per field. Each transition is
//     logged per field.
//  3. Compose the merged constraint set and persist the new filters on
//     the session.
//
// # Outputs
//
//   - *Result: The composed query, the per-field diff, and the merged
//     filters; or an UnresolvedReference.
//   - error: datatypes.ErrSessionNotFound when the session is absent or
//     expired.
func (r *Refiner) Refine(sessionID string, parsed *datatypes.ParsedQuery) (*Result, error) {
	sess, err := r.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	state := sess.SearchState

	if unresolved := detectAmbiguousReference(parsed.Utterance, state.LastResults); unresolved != nil {
		return &Result{Unresolved: unresolved}, nil
	}

	mapped := r.mapper.Map(parsed)
	refs := resolveReferences(parsed.Utterance, state.LastResults)
	mapped.Constraints = append(mapped.Constraints, refs...)

	merged, semantic, diff := r.merge(sessionID, state.ActiveFilters, mapped, parsed.Utterance)

	composed := r.composer.Compose(&datatypes.MappedQuery{
		Constraints:     append(orderedConstraints(merged), semantic...),
		UnmappableTerms: mapped.UnmappableTerms,
		Metadata:        mapped.Metadata,
	})

	state.ActiveFilters = merged
	if err := r.store.UpdateSearchState(sessionID, state); err != nil {
		return nil, fmt.Errorf("persisting refined filters: %w", err)
	}

	return &Result{Query: composed, Diff: diff, Merged: merged}, nil
}

// merge applies removals then last-write-wins per field. Semantic
// constraints are per-turn and never enter activeFilters; they are
// returned separately for composition.
func (r *Refiner) merge(
	sessionID string,
	active map[string]datatypes.SearchConstraint,
	mapped *datatypes.MappedQuery,
	utterance string,
) (map[string]datatypes.SearchConstraint, []datatypes.SearchConstraint, datatypes.RefinementDiff) {
	merged := make(map[string]datatypes.SearchConstraint, len(active))
	for field, c := range active {
		merged[field] = c
	}

	var diff datatypes.RefinementDiff

	for _, field := range removalTargets(utterance) {
		if old, ok := merged[field]; ok {
			delete(merged, field)
			diff.RemovedFields = append(diff.RemovedFields, field)
			slog.Info("Removed filter",
				"session_id", sessionID, "field", field, "was", old.Value.String())
		}
	}

	var semantic []datatypes.SearchConstraint
	for _, c := range mapped.Constraints {
		if c.Kind == datatypes.KindSemantic {
			semantic = append(semantic, c)
			continue
		}

		old, existed := merged[c.FieldName]
		merged[c.FieldName] = c

		switch {
		case !existed:
			diff.AddedFields = append(diff.AddedFields, c.FieldName)
			slog.Info("Added filter",
				"session_id", sessionID, "field", c.FieldName, "value", c.Value.String())
		case !sameConstraint(old, c):
			diff.UpdatedFields = append(diff.UpdatedFields, c.FieldName)
			slog.Info("Updated filter",
				"session_id", sessionID, "field", c.FieldName,
				"from", old.Value.String(), "to", c.Value.String())
		}
	}

	sort.Strings(diff.AddedFields)
	sort.Strings(diff.UpdatedFields)
	sort.Strings(diff.RemovedFields)
	return merged, semantic, diff
}

// =============================================================================
// Reference resolution
// =============================================================================

// detectAmbiguousReference returns an UnresolvedReference when the
// utterance points at "that one" but several prior results qualify.
func detectAmbiguousReference(utterance string, last []datatypes.ResultSnapshot) *datatypes.UnresolvedReference {
	if !likeThatRe.MatchString(utterance) || len(last) <= 1 {
		return nil
	}
	candidates := make([]string, len(last))
	for i, r := range last {
		candidates[i] = r.ID
	}
	return &datatypes.UnresolvedReference{
		Message:    "Which vehicle did you mean? Pick one and I'll find similar matches.",
		Candidates: candidates,
	}
}

// resolveReferences turns comparative phrases into concrete constraints
// derived from the prior result set. No prior results means nothing to
// compare against, so the phrases are ignored.
func resolveReferences(utterance string, last []datatypes.ResultSnapshot) []datatypes.SearchConstraint {
	if len(last) == 0 {
		return nil
	}

	var out []datatypes.SearchConstraint
	if cheaperRe.MatchString(utterance) {
		min := last[0].Price
		for _, r := range last[1:] {
			if r.Price < min {
				min = r.Price
			}
		}
		if limit := min - priceEpsilon; limit > 0 {
			out = append(out, datatypes.SearchConstraint{
				FieldName:  datatypes.FieldPrice,
				Operator:   datatypes.OpLe,
				Value:      datatypes.NumberValue(limit),
				Kind:       datatypes.KindRange,
				Confidence: 0.85,
			})
		}
	}
	if lowerMileageRe.MatchString(utterance) {
		min := last[0].Mileage
		for _, r := range last[1:] {
			if r.Mileage < min {
				min = r.Mileage
			}
		}
		out = append(out, datatypes.SearchConstraint{
			FieldName:  datatypes.FieldMileage,
			Operator:   datatypes.OpLe,
			Value:      datatypes.NumberValue(float64(min)),
			Kind:       datatypes.KindRange,
			Confidence: 0.85,
		})
	}
	return out
}

// removalTargets maps removal phrases to the fields they strip.
func removalTargets(utterance string) []string {
	var fields []string
	if removePriceRe.MatchString(utterance) {
		fields = append(fields, datatypes.FieldPrice)
	}
	return fields
}

// =============================================================================
// Helpers
// =============================================================================

// orderedConstraints flattens the filter map in field-name order so a
// given filter set always composes to the same expression.
func orderedConstraints(filters map[string]datatypes.SearchConstraint) []datatypes.SearchConstraint {
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]datatypes.SearchConstraint, 0, len(filters))
	for _, f := range fields {
		out = append(out, filters[f])
	}
	return out
}

func sameConstraint(a, b datatypes.SearchConstraint) bool {
	return a.Operator == b.Operator &&
		a.Kind == b.Kind &&
		a.Value.Tag == b.Value.Tag &&
		a.Value.String() == b.Value.String()
}

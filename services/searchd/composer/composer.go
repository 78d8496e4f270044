// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package composer assembles mapped constraints into an executable
// ComposedQuery: grouped by priority, conflict-checked, with the filter
// expression pre-rendered for the index.
package composer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// Priority tiers. Constraints are bucketed high/medium/low and each
// tier becomes one And-group.
const (
	tierHigh = 0.8
	tierMed  = 0.5
)

// Composer turns a MappedQuery into a ComposedQuery.
type Composer struct{}

// NewComposer creates a composer.
func NewComposer() *Composer { return &Composer{} }

// Compose groups, conflict-checks, and renders the filter expression.
//
// # Description
//
// Steps:
//  1. Detect OR semantics from metadata or OR-ish unmappable terms.
//  2. Merge overlapping range constraints per field; an empty merged
//     interval is a critical conflict (warning, hasConflicts).
//  3. Detect contradictory Eq values per field; the composer warns and
//     keeps both rather than guessing a winner.
//  4. Group: by field with intra-group Or under OR semantics, otherwise
//     by priority tier with intra-group And.
//  5. Classify the query type and render the filter expression.
//
// Compose never fails; Validate reports whether the result is runnable.
func (c *Composer) Compose(mapped *datatypes.MappedQuery) *datatypes.ComposedQuery {
	out := &datatypes.ComposedQuery{GroupOp: datatypes.LogicalAnd}

	useOr := orRequested(mapped)

	constraints := mapped.Constraints
	if !useOr {
		constraints = c.resolveConflicts(constraints, out)
	}

	if useOr {
		out.Groups = groupByField(constraints)
	} else {
		out.Groups = groupByTier(constraints)
	}

	out.Type = classify(constraints)

	expr, err := TranslateFilter(out.Groups, out.GroupOp)
	if err != nil {
		out.Warnings = append(out.Warnings, err.Error())
		out.HasConflicts = true
	}
	out.FilterExpression = expr

	slog.Debug("Composed query",
		"type", out.Type,
		"groups", len(out.Groups),
		"hasConflicts", out.HasConflicts,
	)
	return out
}

// Validate reports whether the composed query can be executed.
//
// Critical conflicts (range inversion, contradictory Eq) make the query
// invalid, as does a query with filterable constraints but an empty
// rendered filter. A purely semantic query with no filter is valid.
func (c *Composer) Validate(q *datatypes.ComposedQuery) error {
	if q.HasConflicts {
		return fmt.Errorf("%w: query has conflicting constraints: %s",
			datatypes.ErrInvalidQuery, strings.Join(q.Warnings, "; "))
	}
	if len(q.AllConstraints()) == 0 {
		return fmt.Errorf("%w: query has no constraints", datatypes.ErrInvalidQuery)
	}
	if len(q.FilterableConstraints()) > 0 && q.FilterExpression == "" {
		return fmt.Errorf("%w: filterable constraints produced an empty filter expression",
			datatypes.ErrInvariantViolation)
	}
	return nil
}

// =============================================================================
// Conflict handling
// =============================================================================

// resolveConflicts merges per-field ranges and flags contradictions.
func (c *Composer) resolveConflicts(constraints []datatypes.SearchConstraint, out *datatypes.ComposedQuery) []datatypes.SearchConstraint {
	byField := make(map[string][]datatypes.SearchConstraint)
	var order []string
	for _, con := range constraints {
		if _, seen := byField[con.FieldName]; !seen {
			order = append(order, con.FieldName)
		}
		byField[con.FieldName] = append(byField[con.FieldName], con)
	}

	var result []datatypes.SearchConstraint
	for _, field := range order {
		group := byField[field]

		// Contradictory Eq: distinct values pinned on one field.
		if values := distinctEqValues(group); len(values) > 1 {
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"conflicting values for %s: %s", field, strings.Join(values, " vs ")))
			out.HasConflicts = true
			result = append(result, group...)
			continue
		}

		ranges, rest := splitNumericRanges(group)
		if len(ranges) < 2 {
			inverted := false
			for _, r := range ranges {
				if r.Operator == datatypes.OpBetween && r.Value.Low > r.Value.High {
					out.Warnings = append(out.Warnings, fmt.Sprintf(
						"conflicting range for %s: lower bound exceeds upper bound", field))
					out.HasConflicts = true
					inverted = true
				}
			}
			if inverted {
				result = append(result, rest...)
				continue
			}
			result = append(result, group...)
			continue
		}

		merged, empty := mergeRanges(field, ranges)
		if empty {
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"conflicting range for %s: lower bound exceeds upper bound", field))
			out.HasConflicts = true
			// The field is dropped rather than sent to the index as an
			// unsatisfiable filter.
			result = append(result, rest...)
			continue
		}
		result = append(result, rest...)
		result = append(result, merged)
	}
	return result
}

func distinctEqValues(group []datatypes.SearchConstraint) []string {
	seen := make(map[string]bool)
	var values []string
	for _, c := range group {
		if c.Operator != datatypes.OpEq || c.Kind != datatypes.KindExact {
			continue
		}
		v := c.Value.String()
		key := strings.ToLower(v)
		if !seen[key] {
			seen[key] = true
			values = append(values, v)
		}
	}
	return values
}

// splitNumericRanges separates mergeable numeric range constraints from
// everything else on the field. Date ranges are left alone.
func splitNumericRanges(group []datatypes.SearchConstraint) (ranges, rest []datatypes.SearchConstraint) {
	for _, c := range group {
		mergeable := c.Kind == datatypes.KindRange &&
			(c.Value.Tag == datatypes.ValuePair || c.Value.IsNum)
		if mergeable {
			ranges = append(ranges, c)
		} else {
			rest = append(rest, c)
		}
	}
	return ranges, rest
}

// mergeRanges tightens multiple numeric ranges on one field into a
// single interval. Reports empty=true when the bounds cross.
func mergeRanges(field string, ranges []datatypes.SearchConstraint) (datatypes.SearchConstraint, bool) {
	const unset = -1.0
	lo, hi := unset, unset
	confidence := 0.0

	for _, c := range ranges {
		if c.Confidence > confidence {
			confidence = c.Confidence
		}
		switch c.Operator {
		case datatypes.OpBetween:
			lo = maxBound(lo, c.Value.Low)
			hi = minBound(hi, c.Value.High)
		case datatypes.OpGt, datatypes.OpGe:
			lo = maxBound(lo, c.Value.Num)
		case datatypes.OpLt, datatypes.OpLe:
			hi = minBound(hi, c.Value.Num)
		case datatypes.OpEq:
			lo = maxBound(lo, c.Value.Num)
			hi = minBound(hi, c.Value.Num)
		}
	}

	if lo != unset && hi != unset {
		if lo > hi {
			return datatypes.SearchConstraint{}, true
		}
		return datatypes.SearchConstraint{
			FieldName:  field,
			Operator:   datatypes.OpBetween,
			Value:      datatypes.PairValue(lo, hi),
			Kind:       datatypes.KindRange,
			Confidence: confidence,
		}, false
	}
	op, num := datatypes.OpGe, lo
	if hi != unset {
		op, num = datatypes.OpLe, hi
	}
	return datatypes.SearchConstraint{
		FieldName:  field,
		Operator:   op,
		Value:      datatypes.NumberValue(num),
		Kind:       datatypes.KindRange,
		Confidence: confidence,
	}, false
}

func maxBound(current, candidate float64) float64 {
	if current < 0 || candidate > current {
		return candidate
	}
	return current
}

func minBound(current, candidate float64) float64 {
	if current < 0 || candidate < current {
		return candidate
	}
	return current
}

// =============================================================================
// Grouping
// =============================================================================

func orRequested(mapped *datatypes.MappedQuery) bool {
	if mapped.Metadata["hasOrOperator"] == "true" {
		return true
	}
	for _, term := range mapped.UnmappableTerms {
		lower := strings.ToLower(term)
		if lower == "or" || lower == "either" {
			return true
		}
	}
	return false
}

// groupByField puts each field's constraints in one Or-joined group.
func groupByField(constraints []datatypes.SearchConstraint) []datatypes.ConstraintGroup {
	byField := make(map[string][]datatypes.SearchConstraint)
	var order []string
	for _, c := range constraints {
		if _, seen := byField[c.FieldName]; !seen {
			order = append(order, c.FieldName)
		}
		byField[c.FieldName] = append(byField[c.FieldName], c)
	}

	var groups []datatypes.ConstraintGroup
	for _, field := range order {
		group := byField[field]
		priority := 0.0
		for _, c := range group {
			if p := constraintPriority(c); p > priority {
				priority = p
			}
		}
		groups = append(groups, datatypes.ConstraintGroup{
			Constraints: group,
			Op:          datatypes.LogicalOr,
			Priority:    priority,
		})
	}
	return groups
}

// groupByTier buckets constraints into high/medium/low priority groups.
func groupByTier(constraints []datatypes.SearchConstraint) []datatypes.ConstraintGroup {
	var high, med, low []datatypes.SearchConstraint
	for _, c := range constraints {
		switch p := constraintPriority(c); {
		case p >= tierHigh:
			high = append(high, c)
		case p >= tierMed:
			med = append(med, c)
		default:
			low = append(low, c)
		}
	}

	var groups []datatypes.ConstraintGroup
	for _, tier := range []struct {
		constraints []datatypes.SearchConstraint
	}{{high}, {med}, {low}} {
		if len(tier.constraints) == 0 {
			continue
		}
		priority := 0.0
		for _, c := range tier.constraints {
			if p := constraintPriority(c); p > priority {
				priority = p
			}
		}
		groups = append(groups, datatypes.ConstraintGroup{
			Constraints: tier.constraints,
			Op:          datatypes.LogicalAnd,
			Priority:    priority,
		})
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Priority > groups[j].Priority })
	return groups
}

// constraintPriority ranks a constraint for tiering.
func constraintPriority(c datatypes.SearchConstraint) float64 {
	switch {
	case c.Kind == datatypes.KindExact && c.Operator == datatypes.OpEq &&
		(c.FieldName == datatypes.FieldMake || c.FieldName == datatypes.FieldModel):
		return 1.0
	case c.Kind == datatypes.KindExact && c.Operator == datatypes.OpEq:
		return 0.9
	case c.Kind == datatypes.KindRange:
		return 0.6
	case c.Kind == datatypes.KindSemantic:
		return 0.3
	default:
		return 0.5
	}
}

// =============================================================================
// Classification
// =============================================================================

func classify(constraints []datatypes.SearchConstraint) datatypes.QueryType {
	if len(constraints) == 1 {
		return datatypes.QuerySimple
	}

	exact, rng, semantic, composite := 0, 0, 0, 0
	for _, c := range constraints {
		switch c.Kind {
		case datatypes.KindExact:
			exact++
		case datatypes.KindRange:
			rng++
		case datatypes.KindSemantic:
			semantic++
		case datatypes.KindComposite:
			composite++
		}
	}

	switch {
	case semantic > 0 && exact+rng > 0:
		return datatypes.QueryMultiModal
	case composite > 0 || (len(constraints) > 3 && exact > 0 && rng > 0):
		return datatypes.QueryComplex
	case exact+rng >= 2:
		return datatypes.QueryFiltered
	default:
		return datatypes.QuerySimple
	}
}

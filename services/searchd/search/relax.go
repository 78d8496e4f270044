// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// RelaxationHint names a field whose constraint eliminated every result
// and suggests a loosened value.
type RelaxationHint struct {
	Field          string  `json:"field"`
	Message        string  `json:"message"`
	SuggestedValue float64 `json:"suggestedValue,omitempty"`
}

// relaxationHints probes which range constraint starved the query.
//
// # Description
//
// For each field carrying a range constraint, re-run the filter with
// that field dropped, limit 1. A probe that finds anything names its
// field as over-constraining. If no single-field drop helps (several
// constraints are jointly too tight), every range field gets a hint so
// the user always receives at least one suggestion.
func (o *Orchestrator) relaxationHints(ctx context.Context, q *datatypes.ComposedQuery) []RelaxationHint {
	fields := rangeFields(q)
	if len(fields) == 0 {
		return nil
	}

	var hints []RelaxationHint
	for _, field := range fields {
		probe := withoutField(q, field)
		hits, err := o.index.FilterSearch(ctx, probe, 1)
		if err != nil {
			slog.Warn("Relaxation probe failed", "field", field, "error", err)
			continue
		}
		if len(hits) > 0 {
			hints = append(hints, buildHint(q, field))
		}
	}

	if len(hints) == 0 {
		for _, field := range fields {
			hints = append(hints, buildHint(q, field))
		}
	}
	return hints
}

// rangeFields lists fields constrained by ranges, the usual suspects
// when a query matches nothing.
func rangeFields(q *datatypes.ComposedQuery) []string {
	var fields []string
	seen := make(map[string]bool)
	for _, c := range q.AllConstraints() {
		if c.Kind != datatypes.KindRange || seen[c.FieldName] {
			continue
		}
		seen[c.FieldName] = true
		fields = append(fields, c.FieldName)
	}
	return fields
}

// withoutField copies the query minus every constraint on the field.
func withoutField(q *datatypes.ComposedQuery, field string) *datatypes.ComposedQuery {
	out := &datatypes.ComposedQuery{GroupOp: q.GroupOp, Type: q.Type}
	for _, g := range q.Groups {
		var kept []datatypes.SearchConstraint
		for _, c := range g.Constraints {
			if c.FieldName != field {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			out.Groups = append(out.Groups, datatypes.ConstraintGroup{
				Constraints: kept, Op: g.Op, Priority: g.Priority,
			})
		}
	}
	return out
}

func buildHint(q *datatypes.ComposedQuery, field string) RelaxationHint {
	upper, hasUpper := upperBound(q, field)

	switch field {
	case datatypes.FieldPrice:
		if hasUpper {
			suggested := roundUpTo(upper*1.5, 1000)
			return RelaxationHint{
				Field:          field,
				Message:        fmt.Sprintf("Try increasing your budget to £%.0f", suggested),
				SuggestedValue: suggested,
			}
		}
		return RelaxationHint{Field: field, Message: "Try widening your price range"}

	case datatypes.FieldMileage:
		if hasUpper {
			suggested := math.Max(50000, roundUpTo(upper*2, 5000))
			return RelaxationHint{
				Field:          field,
				Message:        fmt.Sprintf("Allow up to %.0f miles", suggested),
				SuggestedValue: suggested,
			}
		}
		return RelaxationHint{Field: field, Message: "Try widening your mileage range"}

	default:
		return RelaxationHint{
			Field:   field,
			Message: fmt.Sprintf("Try relaxing your %s requirement", field),
		}
	}
}

// upperBound finds the field's effective upper limit, if any.
func upperBound(q *datatypes.ComposedQuery, field string) (float64, bool) {
	for _, c := range q.AllConstraints() {
		if c.FieldName != field {
			continue
		}
		switch c.Operator {
		case datatypes.OpLe, datatypes.OpLt:
			return c.Value.Num, true
		case datatypes.OpBetween:
			return c.Value.High, true
		}
	}
	return 0, false
}

func roundUpTo(v, step float64) float64 {
	return math.Ceil(v/step) * step
}

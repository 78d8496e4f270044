// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package composer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// TranslateFilter renders grouped constraints as an OData-style filter
// string for the index.
//
// # Description
//
// Formatting rules: strings single-quoted with internal quotes doubled,
// booleans lowercase, numbers bare, dates ISO-8601 with a Z suffix.
// Between renders as `(f ge lo and f le hi)`, Contains on text as
// `search.ismatch(...)`, Contains on a collection as a `/any` lambda,
// and In as `search.in(...)`. Field names are validated against the
// whitelist; semantic constraints are skipped (they are scored, not
// filtered).
//
// # Outputs
//
//   - string: The filter expression; empty when no group holds a
//     filterable constraint.
//   - error: Non-nil on a non-whitelisted field or an untranslatable
//     operator/value pairing.
func TranslateFilter(groups []datatypes.ConstraintGroup, groupOp datatypes.LogicalOp) (string, error) {
	var rendered []string
	for _, g := range groups {
		clause, err := translateGroup(g)
		if err != nil {
			return "", err
		}
		if clause != "" {
			rendered = append(rendered, clause)
		}
	}
	return strings.Join(rendered, " "+string(groupOp)+" "), nil
}

func translateGroup(g datatypes.ConstraintGroup) (string, error) {
	var clauses []string
	for _, c := range g.Constraints {
		if !c.IsFilterable() {
			continue
		}
		clause, err := translateConstraint(c)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	switch len(clauses) {
	case 0:
		return "", nil
	case 1:
		return clauses[0], nil
	default:
		return "(" + strings.Join(clauses, " "+string(g.Op)+" ") + ")", nil
	}
}

func translateConstraint(c datatypes.SearchConstraint) (string, error) {
	if !datatypes.IsFilterableField(c.FieldName) {
		return "", fmt.Errorf("field %q is not filterable", c.FieldName)
	}

	switch c.Operator {
	case datatypes.OpBetween:
		return fmt.Sprintf("(%s ge %s and %s le %s)",
			c.FieldName, formatNumber(c.Value.Low),
			c.FieldName, formatNumber(c.Value.High)), nil

	case datatypes.OpContains:
		if datatypes.IsCollectionField(c.FieldName) {
			return fmt.Sprintf("%s/any(x: x eq %s)",
				c.FieldName, quoteString(c.Value.Str)), nil
		}
		return fmt.Sprintf("search.ismatch(%s, '%s')",
			quoteString(c.Value.Str), c.FieldName), nil

	case datatypes.OpIn:
		return fmt.Sprintf("search.in(%s, %s, ',')",
			c.FieldName, quoteString(strings.Join(c.Value.Set, ","))), nil

	case datatypes.OpEq, datatypes.OpNe, datatypes.OpGt, datatypes.OpGe,
		datatypes.OpLt, datatypes.OpLe:
		value, err := formatScalar(c.Value)
		if err != nil {
			return "", fmt.Errorf("constraint on %q: %w", c.FieldName, err)
		}
		return fmt.Sprintf("%s %s %s", c.FieldName, c.Operator, value), nil
	}
	return "", fmt.Errorf("operator %q on %q is not translatable", c.Operator, c.FieldName)
}

func formatScalar(v datatypes.ConstraintValue) (string, error) {
	if v.Tag != datatypes.ValueScalar {
		return "", fmt.Errorf("expected a scalar value, got %s", v.Tag)
	}
	switch {
	case v.Date != nil:
		return v.Date.UTC().Format(time.RFC3339), nil
	case v.IsNum:
		return formatNumber(v.Num), nil
	case v.IsBool:
		return strconv.FormatBool(v.Bool), nil
	default:
		return quoteString(v.Str), nil
	}
}

// quoteString single-quotes s, doubling internal single quotes.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

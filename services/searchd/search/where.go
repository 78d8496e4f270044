// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// intFields are schema properties stored as Weaviate ints; their filter
// values must go through valueInt rather than valueNumber.
var intFields = map[string]bool{
	datatypes.FieldMileage:          true,
	datatypes.FieldNumberOfDoors:    true,
	datatypes.FieldNumberOfServices: true,
	datatypes.FieldPreviousOwners:   true,
}

// buildWhere renders the query's filterable constraints as a Weaviate
// where filter mirroring the composed group structure. Returns nil when
// the query is purely semantic.
func buildWhere(q *datatypes.ComposedQuery) *filters.WhereBuilder {
	var groupClauses []*filters.WhereBuilder
	for _, g := range q.Groups {
		if clause := buildGroup(g); clause != nil {
			groupClauses = append(groupClauses, clause)
		}
	}
	return joinClauses(groupClauses, q.GroupOp)
}

func buildGroup(g datatypes.ConstraintGroup) *filters.WhereBuilder {
	var clauses []*filters.WhereBuilder
	for _, c := range g.Constraints {
		if !c.IsFilterable() {
			continue
		}
		if clause := buildConstraint(c); clause != nil {
			clauses = append(clauses, clause)
		}
	}
	return joinClauses(clauses, g.Op)
}

func joinClauses(clauses []*filters.WhereBuilder, op datatypes.LogicalOp) *filters.WhereBuilder {
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	}
	operator := filters.And
	if op == datatypes.LogicalOr {
		operator = filters.Or
	}
	return filters.Where().WithOperator(operator).WithOperands(clauses)
}

func buildConstraint(c datatypes.SearchConstraint) *filters.WhereBuilder {
	switch c.Operator {
	case datatypes.OpBetween:
		return filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
			scalarClause(c.FieldName, filters.GreaterThanEqual,
				datatypes.NumberValue(c.Value.Low)),
			scalarClause(c.FieldName, filters.LessThanEqual,
				datatypes.NumberValue(c.Value.High)),
		})

	case datatypes.OpContains:
		if datatypes.IsCollectionField(c.FieldName) {
			return filters.Where().
				WithPath([]string{c.FieldName}).
				WithOperator(filters.ContainsAny).
				WithValueText(c.Value.Str)
		}
		// Fuzzy substring on text fields ("320d" within "3 Series 320d").
		return filters.Where().
			WithPath([]string{c.FieldName}).
			WithOperator(filters.Like).
			WithValueText("*" + c.Value.Str + "*")

	case datatypes.OpIn:
		return filters.Where().
			WithPath([]string{c.FieldName}).
			WithOperator(filters.ContainsAny).
			WithValueText(c.Value.Set...)

	case datatypes.OpEq:
		return scalarClause(c.FieldName, filters.Equal, c.Value)
	case datatypes.OpNe:
		return scalarClause(c.FieldName, filters.NotEqual, c.Value)
	case datatypes.OpGt:
		return scalarClause(c.FieldName, filters.GreaterThan, c.Value)
	case datatypes.OpGe:
		return scalarClause(c.FieldName, filters.GreaterThanEqual, c.Value)
	case datatypes.OpLt:
		return scalarClause(c.FieldName, filters.LessThan, c.Value)
	case datatypes.OpLe:
		return scalarClause(c.FieldName, filters.LessThanEqual, c.Value)
	}
	return nil
}

func scalarClause(field string, op filters.WhereOperator, v datatypes.ConstraintValue) *filters.WhereBuilder {
	clause := filters.Where().WithPath([]string{field}).WithOperator(op)
	switch {
	case v.Date != nil:
		return clause.WithValueDate(*v.Date)
	case v.IsNum && intFields[field]:
		return clause.WithValueInt(int64(v.Num))
	case v.IsNum:
		return clause.WithValueNumber(v.Num)
	case v.IsBool:
		return clause.WithValueBoolean(v.Bool)
	default:
		return clause.WithValueString(v.Str)
	}
}

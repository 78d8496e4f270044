// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

func composedWith(constraints ...datatypes.SearchConstraint) *datatypes.ComposedQuery {
	return &datatypes.ComposedQuery{
		GroupOp: datatypes.LogicalAnd,
		Groups: []datatypes.ConstraintGroup{{
			Constraints: constraints, Op: datatypes.LogicalAnd, Priority: 1,
		}},
	}
}

func exactOn(field, value string) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: field, Operator: datatypes.OpEq,
		Value: datatypes.StringValue(value), Kind: datatypes.KindExact, Confidence: 0.9,
	}
}

func rangeOn(field string, op datatypes.Operator, v float64) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: field, Operator: op,
		Value: datatypes.NumberValue(v), Kind: datatypes.KindRange, Confidence: 0.9,
	}
}

func semanticFor(term, field string) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: field, Operator: datatypes.OpLt,
		Value: datatypes.NumberValue(60000), Kind: datatypes.KindSemantic,
		SourceTerm: term, Weight: 0.3, Confidence: 0.85,
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name string
		q    *datatypes.ComposedQuery
		want datatypes.StrategyType
	}{
		{"exact only", composedWith(exactOn(datatypes.FieldMake, "BMW")), datatypes.StrategyExactOnly},
		{"semantic only", composedWith(semanticFor("reliable", datatypes.FieldMileage)), datatypes.StrategySemanticOnly},
		{"both", composedWith(
			exactOn(datatypes.FieldMake, "BMW"),
			semanticFor("reliable", datatypes.FieldMileage),
		), datatypes.StrategyHybrid},
		{"neither", &datatypes.ComposedQuery{}, datatypes.StrategySemanticOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectStrategy(tt.q)
			assert.Equal(t, tt.want, got.Type)

			sum := 0.0
			for _, w := range got.Weights {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "weights must sum to 1")
		})
	}
}

func TestHybridWeightsScaleWithExactCount(t *testing.T) {
	q := composedWith(
		exactOn(datatypes.FieldMake, "BMW"),
		rangeOn(datatypes.FieldPrice, datatypes.OpLe, 20000),
		semanticFor("reliable", datatypes.FieldMileage),
	)
	got := SelectStrategy(q)

	require.Equal(t, datatypes.StrategyHybrid, got.Type)
	assert.True(t, got.ShouldRerank)
	assert.InDelta(t, 0.30, got.Weights[datatypes.ApproachExactMatch], 1e-9)
	assert.InDelta(t, 0.70, got.Weights[datatypes.ApproachSemanticSearch], 1e-9)
}

func TestHybridExactWeightCapped(t *testing.T) {
	q := composedWith(
		exactOn(datatypes.FieldMake, "BMW"),
		exactOn(datatypes.FieldColour, "Blue"),
		exactOn(datatypes.FieldFuelType, "Diesel"),
		exactOn(datatypes.FieldTransmission, "Automatic"),
		exactOn(datatypes.FieldBodyType, "Estate"),
		rangeOn(datatypes.FieldPrice, datatypes.OpLe, 20000),
		semanticFor("reliable", datatypes.FieldMileage),
	)
	got := SelectStrategy(q)

	require.Equal(t, datatypes.StrategyHybrid, got.Type)
	assert.InDelta(t, 0.70, got.Weights[datatypes.ApproachExactMatch], 1e-9)
}

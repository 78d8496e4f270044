// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package composer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

func eqMake(value string) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: datatypes.FieldMake, Operator: datatypes.OpEq,
		Value: datatypes.StringValue(value), Kind: datatypes.KindExact, Confidence: 0.95,
	}
}

func priceLe(v float64) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: datatypes.FieldPrice, Operator: datatypes.OpLe,
		Value: datatypes.NumberValue(v), Kind: datatypes.KindRange, Confidence: 0.9,
	}
}

func priceGe(v float64) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: datatypes.FieldPrice, Operator: datatypes.OpGe,
		Value: datatypes.NumberValue(v), Kind: datatypes.KindRange, Confidence: 0.9,
	}
}

func semanticOn(field, term string, weight float64) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: field, Operator: datatypes.OpLt,
		Value: datatypes.NumberValue(60000), Kind: datatypes.KindSemantic,
		SourceTerm: term, Weight: weight, Confidence: 0.85,
	}
}

func mappedFrom(constraints ...datatypes.SearchConstraint) *datatypes.MappedQuery {
	return &datatypes.MappedQuery{Constraints: constraints}
}

func TestComposeHybridQuery(t *testing.T) {
	c := NewComposer()
	q := c.Compose(mappedFrom(
		eqMake("BMW"),
		priceLe(20000),
		semanticOn(datatypes.FieldMileage, "reliable", 0.3),
	))

	assert.Equal(t, datatypes.QueryMultiModal, q.Type)
	assert.False(t, q.HasConflicts)
	assert.GreaterOrEqual(t, len(q.Groups), 2)
	assert.Equal(t, "make eq 'BMW' and price le 20000", q.FilterExpression)
	require.NoError(t, c.Validate(q))
}

func TestComposeGroupsByPriorityTier(t *testing.T) {
	c := NewComposer()
	q := c.Compose(mappedFrom(
		eqMake("BMW"),
		priceLe(20000),
		semanticOn(datatypes.FieldMileage, "reliable", 0.3),
	))

	require.Len(t, q.Groups, 3)
	// Descending priority: Eq make (1.0), Range (0.6), Semantic (0.3).
	assert.Equal(t, datatypes.FieldMake, q.Groups[0].Constraints[0].FieldName)
	assert.Equal(t, 1.0, q.Groups[0].Priority)
	assert.Equal(t, datatypes.FieldPrice, q.Groups[1].Constraints[0].FieldName)
	assert.Equal(t, datatypes.KindSemantic, q.Groups[2].Constraints[0].Kind)
}

func TestContradictoryEqFlagsConflict(t *testing.T) {
	c := NewComposer()
	q := c.Compose(mappedFrom(eqMake("BMW"), eqMake("Audi")))

	assert.True(t, q.HasConflicts)
	require.Len(t, q.Warnings, 1)
	assert.Contains(t, q.Warnings[0], "make")
	assert.Error(t, c.Validate(q))
}

func TestRangeInversionFlagsConflictNamingField(t *testing.T) {
	c := NewComposer()
	q := c.Compose(mappedFrom(priceGe(30000), priceLe(20000)))

	assert.True(t, q.HasConflicts)
	require.NotEmpty(t, q.Warnings)
	assert.Contains(t, q.Warnings[0], "price")
	assert.Error(t, c.Validate(q))

	// The unsatisfiable field never reaches the filter expression.
	assert.NotContains(t, q.FilterExpression, "price")
}

func TestOverlappingRangesMergeToTightenedInterval(t *testing.T) {
	c := NewComposer()
	q := c.Compose(mappedFrom(priceGe(10000), priceLe(20000), priceLe(18000)))

	assert.False(t, q.HasConflicts)
	all := q.AllConstraints()
	require.Len(t, all, 1)
	assert.Equal(t, datatypes.OpBetween, all[0].Operator)
	assert.Equal(t, 10000.0, all[0].Value.Low)
	assert.Equal(t, 18000.0, all[0].Value.High)
	assert.Equal(t, "(price ge 10000 and price le 18000)", q.FilterExpression)
}

func TestOrGroupingByField(t *testing.T) {
	c := NewComposer()
	mapped := &datatypes.MappedQuery{
		Constraints: []datatypes.SearchConstraint{
			{FieldName: datatypes.FieldModel, Operator: datatypes.OpContains,
				Value: datatypes.StringValue("Golf"), Kind: datatypes.KindExact, Confidence: 0.9},
			{FieldName: datatypes.FieldModel, Operator: datatypes.OpContains,
				Value: datatypes.StringValue("Polo"), Kind: datatypes.KindExact, Confidence: 0.9},
		},
		Metadata: map[string]string{"hasOrOperator": "true"},
	}
	q := c.Compose(mapped)

	require.Len(t, q.Groups, 1)
	assert.Equal(t, datatypes.LogicalOr, q.Groups[0].Op)
	assert.Equal(t,
		"(search.ismatch('Golf', 'model') or search.ismatch('Polo', 'model'))",
		q.FilterExpression)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name        string
		constraints []datatypes.SearchConstraint
		want        datatypes.QueryType
	}{
		{"single constraint", []datatypes.SearchConstraint{eqMake("BMW")}, datatypes.QuerySimple},
		{"semantic plus exact", []datatypes.SearchConstraint{
			eqMake("BMW"), semanticOn(datatypes.FieldMileage, "reliable", 0.3),
		}, datatypes.QueryMultiModal},
		{"two filterable", []datatypes.SearchConstraint{
			eqMake("BMW"), priceLe(20000),
		}, datatypes.QueryFiltered},
		{"many mixed exact and range", []datatypes.SearchConstraint{
			eqMake("BMW"),
			{FieldName: datatypes.FieldColour, Operator: datatypes.OpEq,
				Value: datatypes.StringValue("Blue"), Kind: datatypes.KindExact, Confidence: 0.9},
			{FieldName: datatypes.FieldFuelType, Operator: datatypes.OpEq,
				Value: datatypes.StringValue("Diesel"), Kind: datatypes.KindExact, Confidence: 0.9},
			priceLe(20000),
		}, datatypes.QueryComplex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.constraints))
		})
	}
}

func TestSemanticOnlyQueryHasEmptyFilterAndValidates(t *testing.T) {
	c := NewComposer()
	q := c.Compose(mappedFrom(
		semanticOn(datatypes.FieldMileage, "reliable", 0.3),
		semanticOn(datatypes.FieldPrice, "economical", 0.3),
	))

	assert.Empty(t, q.FilterExpression)
	require.NoError(t, c.Validate(q))
}

func TestValidateRejectsEmptyQuery(t *testing.T) {
	c := NewComposer()
	q := c.Compose(&datatypes.MappedQuery{})
	assert.ErrorIs(t, c.Validate(q), datatypes.ErrInvalidQuery)
}

func TestTranslateFilterFormatting(t *testing.T) {
	date := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		constraint datatypes.SearchConstraint
		want       string
	}{
		{
			"string with embedded quote",
			datatypes.SearchConstraint{FieldName: datatypes.FieldSaleLocation,
				Operator: datatypes.OpEq, Value: datatypes.StringValue("King's Lynn"),
				Kind: datatypes.KindExact},
			"saleLocation eq 'King''s Lynn'",
		},
		{
			"boolean lowercase",
			datatypes.SearchConstraint{FieldName: datatypes.FieldServiceHistory,
				Operator: datatypes.OpEq, Value: datatypes.BoolValue(true),
				Kind: datatypes.KindExact},
			"serviceHistoryPresent eq true",
		},
		{
			"date with Z suffix",
			datatypes.SearchConstraint{FieldName: datatypes.FieldRegistrationDate,
				Operator: datatypes.OpGe, Value: datatypes.DateValue(date),
				Kind: datatypes.KindRange},
			"registrationDate ge 2022-01-01T00:00:00Z",
		},
		{
			"between renders as paired comparison",
			datatypes.SearchConstraint{FieldName: datatypes.FieldPrice,
				Operator: datatypes.OpBetween, Value: datatypes.PairValue(10000, 15000),
				Kind: datatypes.KindRange},
			"(price ge 10000 and price le 15000)",
		},
		{
			"collection contains uses any lambda",
			datatypes.SearchConstraint{FieldName: datatypes.FieldFeatures,
				Operator: datatypes.OpContains, Value: datatypes.StringValue("sat nav"),
				Kind: datatypes.KindExact},
			"features/any(x: x eq 'sat nav')",
		},
		{
			"in uses search.in",
			datatypes.SearchConstraint{FieldName: datatypes.FieldFuelType,
				Operator: datatypes.OpIn, Value: datatypes.SetValue("Electric", "Hybrid"),
				Kind: datatypes.KindExact},
			"search.in(fuelType, 'Electric,Hybrid', ',')",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translateConstraint(tt.constraint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateFilterRejectsUnknownField(t *testing.T) {
	_, err := translateConstraint(datatypes.SearchConstraint{
		FieldName: "ownerPhoneNumber", Operator: datatypes.OpEq,
		Value: datatypes.StringValue("x"), Kind: datatypes.KindExact,
	})
	assert.Error(t, err)
}

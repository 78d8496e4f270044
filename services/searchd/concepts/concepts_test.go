// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package concepts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

func testMapper() *Mapper {
	m := NewMapper()
	m.now = fixedNow
	return m
}

func TestBuiltinConceptsAreValid(t *testing.T) {
	for _, c := range builtinConcepts() {
		require.NoError(t, c.Validate(), "concept %q", c.Name)
	}
}

func TestLookupResolvesAliases(t *testing.T) {
	m := testMapper()

	tests := []struct {
		term string
		want string
	}{
		{"reliable", "reliable"},
		{"Dependable", "reliable"},
		{"  RELIABLE  ", "reliable"},
		{"cheap to run", "economical"},
		{"premium", "luxury"},
		{"family", "family car"},
	}
	for _, tt := range tests {
		c, ok := m.Lookup(tt.term)
		require.True(t, ok, "term %q", tt.term)
		assert.Equal(t, tt.want, c.Name, "term %q", tt.term)
	}

	_, ok := m.Lookup("purple")
	assert.False(t, ok)
}

func TestLinearDecayScoring(t *testing.T) {
	tests := []struct {
		name   string
		actual float64
		target float64
		want   float64
	}{
		{"well under target", 40000, 60000, 1.0},
		{"at 70 percent", 42000, 60000, 1.0},
		{"at target", 60000, 60000, 0.6},
		{"at 130 percent", 78000, 60000, 0.2},
		{"far over", 120000, 60000, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, linearLess(tt.actual, tt.target), 0.001)
		})
	}
}

func TestLinearGreaterMirrorsLess(t *testing.T) {
	assert.InDelta(t, 1.0, linearGreater(2.6, 2.0), 0.001)
	assert.InDelta(t, 0.2, linearGreater(1.4, 2.0), 0.001)
	assert.InDelta(t, 0.6, linearGreater(2.0, 2.0), 0.001)
}

func TestScoreReliableVehicle(t *testing.T) {
	m := testMapper()
	concept, ok := m.Lookup("reliable")
	require.True(t, ok)

	mot := fixedNow().AddDate(0, 6, 0)
	v := &datatypes.Vehicle{
		ID:                    "v1",
		Make:                  "Toyota",
		Model:                 "Corolla",
		Mileage:               30000,
		ServiceHistoryPresent: true,
		PreviousOwners:        1,
		MOTExpiryDate:         &mot,
		Description:           "One owner, full service history, well maintained.",
	}

	score := m.Score(v, concept)

	// All four attributes satisfied plus three positive indicators.
	assert.InDelta(t, 1.0, score.Overall, 0.001)
	assert.Len(t, score.MatchingAttributes, 4)
	assert.Empty(t, score.MismatchingAttributes)
	assert.InDelta(t, 0.15, score.DescriptionBoost, 0.001)
}

func TestScoreUnreliableVehicle(t *testing.T) {
	m := testMapper()
	concept, ok := m.Lookup("reliable")
	require.True(t, ok)

	mot := fixedNow().AddDate(0, 0, 10)
	v := &datatypes.Vehicle{
		ID:             "v2",
		Mileage:        120000,
		PreviousOwners: 5,
		MOTExpiryDate:  &mot,
		Description:    "Sold as spares or repairs, non runner.",
	}

	score := m.Score(v, concept)

	assert.Less(t, score.Overall, 0.3)
	assert.Contains(t, score.MismatchingAttributes, datatypes.FieldMileage)
	assert.InDelta(t, -0.2, score.DescriptionBoost, 0.001)
}

func TestScoreNeutralOnUnknownAttributes(t *testing.T) {
	m := testMapper()
	concept, ok := m.Lookup("reliable")
	require.True(t, ok)

	// No MOT date, no owners recorded.
	v := &datatypes.Vehicle{ID: "v3", Mileage: 30000, ServiceHistoryPresent: true}
	score := m.Score(v, concept)

	assert.InDelta(t, neutralScore, score.ComponentScores[datatypes.FieldMOTExpiryDate], 0.001)
	assert.InDelta(t, neutralScore, score.ComponentScores[datatypes.FieldPreviousOwners], 0.001)
}

func TestDescriptionBoostClamped(t *testing.T) {
	c := Concept{
		NegativeIndicators: []string{"a", "b", "c", "d", "e", "f", "g"},
	}
	// Seven negative hits would be -0.70 unclamped.
	got := descriptionBoost("a b c d e f g", c)
	assert.InDelta(t, -0.5, got, 0.001)
}

func TestEconomicalFuelTypeIn(t *testing.T) {
	m := testMapper()
	concept, ok := m.Lookup("economical")
	require.True(t, ok)

	electric := &datatypes.Vehicle{FuelType: "Electric", EngineSize: 1.0, Price: 15000}
	diesel := &datatypes.Vehicle{FuelType: "Diesel", EngineSize: 3.0, Price: 40000}

	assert.Greater(t, m.Score(electric, concept).Overall, 0.9)
	assert.Less(t, m.Score(diesel, concept).Overall, 0.3)
}

func TestExpandProducesValidSemanticConstraints(t *testing.T) {
	m := testMapper()
	constraints := m.Expand("reliable", 0.9)
	require.Len(t, constraints, 4)

	weightSum := 0.0
	for _, c := range constraints {
		assert.Equal(t, datatypes.KindSemantic, c.Kind)
		assert.Equal(t, "reliable", c.SourceTerm)
		require.NoError(t, c.Validate())
		weightSum += c.Weight
	}
	assert.InDelta(t, 1.0, weightSum, 0.01)

	assert.Nil(t, m.Expand("no such concept", 0.9))
}

func TestExplainStrongMatch(t *testing.T) {
	m := testMapper()
	mot := fixedNow().AddDate(1, 0, 0)
	v := &datatypes.Vehicle{
		ID:                    "v9",
		Make:                  "BMW",
		Model:                 "3 Series",
		Price:                 18000,
		Mileage:               25000,
		ServiceHistoryPresent: true,
		PreviousOwners:        1,
		MOTExpiryDate:         &mot,
	}
	parsed := &datatypes.ParsedQuery{
		Utterance: "reliable BMW under 25000",
		Intent:    datatypes.IntentSearch,
		Entities: []datatypes.ExtractedEntity{
			{Type: datatypes.EntityMake, Value: "BMW", Confidence: 0.95},
			{Type: datatypes.EntityPrice, Value: "25000", NumericValue: 25000, Confidence: 0.9},
			{Type: datatypes.EntityQualitativeTerm, Value: "reliable", Confidence: 0.85},
		},
	}

	explained := m.Explain(v, parsed)

	assert.Equal(t, "v9", explained.VehicleID)
	assert.Greater(t, explained.Score, 0.75)
	assert.Len(t, explained.Components, 3)
	assert.Contains(t, explained.Explanation, "strongly matches")
	assert.Contains(t, explained.Explanation, "BMW")
}

func TestExplainWeakMatch(t *testing.T) {
	m := testMapper()
	v := &datatypes.Vehicle{ID: "v10", Make: "Ford", Model: "Ka", Price: 45000}
	parsed := &datatypes.ParsedQuery{
		Entities: []datatypes.ExtractedEntity{
			{Type: datatypes.EntityMake, Value: "BMW"},
			{Type: datatypes.EntityPrice, Value: "15000", NumericValue: 15000},
		},
	}

	explained := m.Explain(v, parsed)
	assert.Less(t, explained.Score, 0.45)
	assert.Contains(t, explained.Explanation, "weakly matches")
}

func TestReplaceSwapsTable(t *testing.T) {
	m := testMapper()
	custom := []Concept{{
		Name:            "cheap",
		CanonicalPhrase: "cheap bargain low price",
		Attributes: []AttributeWeight{
			{Attribute: datatypes.FieldPrice, Weight: 1.0, Comparison: CompareLess, Number: fptr(5000)},
		},
	}}
	require.NoError(t, custom[0].Validate())

	m.Replace(custom)

	_, ok := m.Lookup("reliable")
	assert.False(t, ok, "builtin table should be gone after replace")
	c, ok := m.Lookup("cheap")
	require.True(t, ok)
	assert.Equal(t, "cheap", c.Name)
}

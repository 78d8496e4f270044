// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package understanding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

func testExtractor() *Extractor {
	return NewExtractor(concepts.NewMapper())
}

func findEntity(t *testing.T, entities []datatypes.ExtractedEntity, typ datatypes.EntityType) datatypes.ExtractedEntity {
	t.Helper()
	for _, e := range entities {
		if e.Type == typ {
			return e
		}
	}
	t.Fatalf("no entity of type %s in %+v", typ, entities)
	return datatypes.ExtractedEntity{}
}

func hasEntity(entities []datatypes.ExtractedEntity, typ datatypes.EntityType, value string) bool {
	for _, e := range entities {
		if e.Type == typ && e.Value == value {
			return true
		}
	}
	return false
}

func TestExtractPriceForms(t *testing.T) {
	e := testExtractor()

	tests := []struct {
		utterance string
		want      float64
	}{
		{"show me cars under £15,000", 15000},
		{"budget of 15k", 15000},
		{"something around £20k", 20000},
		{"less than 8 grand", 8000},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			price := findEntity(t, e.Extract(tt.utterance), datatypes.EntityPrice)
			assert.Equal(t, tt.want, price.NumericValue)
		})
	}
}

func TestExtractPriceRange(t *testing.T) {
	e := testExtractor()
	entities := e.Extract("diesel estate between £10,000 and £15,000")

	pr := findEntity(t, entities, datatypes.EntityPriceRange)
	assert.Equal(t, 10000.0, pr.NumericValue)
	assert.Equal(t, 15000.0, pr.NumericValueHigh)
	assert.True(t, hasEntity(entities, datatypes.EntityFuelType, "Diesel"))
	assert.True(t, hasEntity(entities, datatypes.EntityBodyType, "Estate"))
}

func TestExtractMileage(t *testing.T) {
	e := testExtractor()

	m := findEntity(t, e.Extract("under 50,000 miles please"), datatypes.EntityMileage)
	assert.Equal(t, 50000.0, m.NumericValue)

	m = findEntity(t, e.Extract("max 60k miles"), datatypes.EntityMileage)
	assert.Equal(t, 60000.0, m.NumericValue)
}

func TestLowMileageMarker(t *testing.T) {
	e := testExtractor()
	m := findEntity(t, e.Extract("a low mileage hatchback"), datatypes.EntityMileage)
	assert.Equal(t, float64(lowMileageMarker), m.NumericValue)
	assert.Equal(t, lowMileageConfidence, m.Confidence)
}

func TestMileageBeatsPriceOnOverlap(t *testing.T) {
	e := testExtractor()
	entities := e.Extract("under 50k miles")

	assert.True(t, hasEntity(entities, datatypes.EntityMileage, "50000"))
	for _, ent := range entities {
		assert.NotEqual(t, datatypes.EntityPrice, ent.Type,
			"the mileage span must not also parse as a price")
	}
}

func TestExtractYear(t *testing.T) {
	e := testExtractor()
	y := findEntity(t, e.Extract("a 2020 golf"), datatypes.EntityYear)
	assert.Equal(t, 2020.0, y.NumericValue)

	// "under 2015" reads as a year bound, not a price.
	entities := e.Extract("nothing older than 2015")
	y = findEntity(t, entities, datatypes.EntityYear)
	assert.Equal(t, 2015.0, y.NumericValue)
	for _, ent := range entities {
		assert.NotEqual(t, datatypes.EntityPrice, ent.Type)
	}
}

func TestDictionaryEntities(t *testing.T) {
	e := testExtractor()
	entities := e.Extract("blue BMW 3 Series automatic in Manchester with sat nav")

	assert.True(t, hasEntity(entities, datatypes.EntityMake, "BMW"))
	assert.True(t, hasEntity(entities, datatypes.EntityModel, "3 Series"))
	assert.True(t, hasEntity(entities, datatypes.EntityColour, "Blue"))
	assert.True(t, hasEntity(entities, datatypes.EntityTransmission, "Automatic"))
	assert.True(t, hasEntity(entities, datatypes.EntityLocation, "Manchester"))
	assert.True(t, hasEntity(entities, datatypes.EntityFeature, "sat nav"))
}

func TestSynonymFoldingWithPenalty(t *testing.T) {
	e := testExtractor()
	entities := e.Extract("got any beamers? a beamer would be great")

	mk := findEntity(t, entities, datatypes.EntityMake)
	assert.Equal(t, "BMW", mk.Value)
	assert.Equal(t, synonymConfidence, mk.Confidence)
}

func TestFuzzyMakeMatch(t *testing.T) {
	e := testExtractor()

	mk := findEntity(t, e.Extract("a tyota please"), datatypes.EntityMake)
	assert.Equal(t, "Toyota", mk.Value)
	assert.InDelta(t, 0.7, mk.Confidence, 0.001) // distance 1

	// Too far from anything.
	for _, ent := range e.Extract("a zxqwv please") {
		assert.NotEqual(t, datatypes.EntityMake, ent.Type)
	}
}

func TestQualitativeTerms(t *testing.T) {
	e := testExtractor()
	entities := e.Extract("a reliable family car")

	assert.True(t, hasEntity(entities, datatypes.EntityQualitativeTerm, "reliable"))
	assert.True(t, hasEntity(entities, datatypes.EntityQualitativeTerm, "family car"))
}

func TestDuplicateEntitiesCollapse(t *testing.T) {
	e := testExtractor()
	entities := e.Extract("BMW or BMW, definitely a BMW")

	count := 0
	for _, ent := range entities {
		if ent.Type == datatypes.EntityMake && ent.Value == "BMW" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestHasOrOperator(t *testing.T) {
	assert.True(t, HasOrOperator("a golf or a polo"))
	assert.False(t, HasOrOperator("an orange golf"))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"bmw", "bmw", 0},
		{"tyota", "toyota", 1},
		{"hunda", "honda", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestOverlapResolutionKeepsHighestConfidence(t *testing.T) {
	entities := []datatypes.ExtractedEntity{
		{Type: datatypes.EntityPrice, Value: "50000", Confidence: 0.85, Start: 0, End: 10},
		{Type: datatypes.EntityMileage, Value: "50000", Confidence: 0.9, Start: 6, End: 16},
	}
	kept := resolveOverlaps(entities)
	require.Len(t, kept, 1)
	assert.Equal(t, datatypes.EntityMileage, kept[0].Type)
}

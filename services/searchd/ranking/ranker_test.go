// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

var fixedNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func newTestRanker() *Ranker {
	r := NewRanker(DefaultConfig())
	r.now = func() time.Time { return fixedNow }
	return r
}

func datePtr(t time.Time) *time.Time { return &t }

func vehicle(id, mk, model string, price float64, mileage int) datatypes.Vehicle {
	return datatypes.Vehicle{
		ID: id, Make: mk, Model: model, Price: price, Mileage: mileage,
		FuelType:         "Petrol",
		RegistrationDate: datePtr(fixedNow.AddDate(-2, 0, 0)),
		MOTExpiryDate:    datePtr(fixedNow.AddDate(0, 6, 0)),
	}
}

func result(v datatypes.Vehicle, semantic float64) datatypes.VehicleResult {
	return datatypes.VehicleResult{
		Vehicle:   v,
		Score:     semantic,
		Breakdown: datatypes.ScoreBreakdown{Semantic: semantic, Final: semantic},
	}
}

func eqMakeQuery(mk string) *datatypes.ComposedQuery {
	return &datatypes.ComposedQuery{
		GroupOp: datatypes.LogicalAnd,
		Groups: []datatypes.ConstraintGroup{{
			Op: datatypes.LogicalAnd, Priority: 1,
			Constraints: []datatypes.SearchConstraint{{
				FieldName: datatypes.FieldMake, Operator: datatypes.OpEq,
				Value: datatypes.StringValue(mk), Kind: datatypes.KindExact,
			}},
		}},
	}
}

func TestRankScoresStayWithinBounds(t *testing.T) {
	r := newTestRanker()

	sporty := vehicle("v1", "Porsche", "911", 80000, 20000)
	sporty.ServiceHistoryPresent = true
	sporty.FuelType = "Electric"
	wreck := vehicle("v2", "Rover", "25", 500, 180000)
	wreck.Declarations = []string{"accident damage recorded"}

	ranked := r.Rank([]datatypes.VehicleResult{result(sporty, 0.95), result(wreck, 0.1)}, nil)
	require.Len(t, ranked, 2)
	for _, res := range ranked {
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
		assert.Equal(t, res.Score, res.Breakdown.Final)
	}
	assert.Equal(t, "v1", ranked[0].Vehicle.ID)
}

func TestExactMatchFraction(t *testing.T) {
	r := newTestRanker()
	q := &datatypes.ComposedQuery{
		GroupOp: datatypes.LogicalAnd,
		Groups: []datatypes.ConstraintGroup{{
			Op: datatypes.LogicalAnd, Priority: 1,
			Constraints: []datatypes.SearchConstraint{
				{FieldName: datatypes.FieldMake, Operator: datatypes.OpEq,
					Value: datatypes.StringValue("BMW"), Kind: datatypes.KindExact},
				{FieldName: datatypes.FieldPrice, Operator: datatypes.OpLe,
					Value: datatypes.NumberValue(20000), Kind: datatypes.KindRange},
			},
		}},
	}

	matching := vehicle("v1", "BMW", "320d", 18000, 40000)
	halfMatch := vehicle("v2", "BMW", "320d", 25000, 40000)
	noMatch := vehicle("v3", "Audi", "A4", 25000, 40000)

	assert.Equal(t, 1.0, r.exactMatchFraction(&matching, q.FilterableConstraints()))
	assert.Equal(t, 0.5, r.exactMatchFraction(&halfMatch, q.FilterableConstraints()))
	assert.Equal(t, 0.0, r.exactMatchFraction(&noMatch, q.FilterableConstraints()))

	// Neutral when the query has no filterable constraints.
	assert.Equal(t, 0.5, r.exactMatchFraction(&matching, nil))
}

func TestSatisfiesOperatorSemantics(t *testing.T) {
	r := newTestRanker()
	v := vehicle("v1", "BMW", "3 Series 320d", 18000, 40000)
	v.FuelType = "Diesel"
	v.Features = []string{"Satellite Navigation", "Heated Seats"}

	tests := []struct {
		name string
		c    datatypes.SearchConstraint
		want bool
	}{
		{"model contains", datatypes.SearchConstraint{
			FieldName: datatypes.FieldModel, Operator: datatypes.OpContains,
			Value: datatypes.StringValue("320d"), Kind: datatypes.KindExact}, true},
		{"feature contains", datatypes.SearchConstraint{
			FieldName: datatypes.FieldFeatures, Operator: datatypes.OpContains,
			Value: datatypes.StringValue("sat nav"), Kind: datatypes.KindExact}, false},
		{"feature substring", datatypes.SearchConstraint{
			FieldName: datatypes.FieldFeatures, Operator: datatypes.OpContains,
			Value: datatypes.StringValue("navigation"), Kind: datatypes.KindExact}, true},
		{"between inside", datatypes.SearchConstraint{
			FieldName: datatypes.FieldPrice, Operator: datatypes.OpBetween,
			Value: datatypes.PairValue(15000, 20000), Kind: datatypes.KindRange}, true},
		{"between outside", datatypes.SearchConstraint{
			FieldName: datatypes.FieldMileage, Operator: datatypes.OpBetween,
			Value: datatypes.PairValue(0, 30000), Kind: datatypes.KindRange}, false},
		{"in matches fold", datatypes.SearchConstraint{
			FieldName: datatypes.FieldFuelType, Operator: datatypes.OpIn,
			Value: datatypes.SetValue("diesel", "petrol"), Kind: datatypes.KindExact}, true},
		{"date ge", datatypes.SearchConstraint{
			FieldName: datatypes.FieldRegistrationDate, Operator: datatypes.OpGe,
			Value: datatypes.DateValue(fixedNow.AddDate(-3, 0, 0)), Kind: datatypes.KindRange}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.satisfies(&v, tt.c))
		})
	}
}

func TestBusinessRules(t *testing.T) {
	r := newTestRanker()

	base := vehicle("v1", "Ford", "Focus", 15000, 60000)
	assert.InDelta(t, 0.0, r.businessAdjustment(&base), 1e-9)

	premium := base
	premium.Make = "BMW"
	assert.InDelta(t, premiumMakeBoost, r.businessAdjustment(&premium), 1e-9)

	tired := base
	tired.Mileage = 120000
	assert.InDelta(t, -highMileagePenalty, r.businessAdjustment(&tired), 1e-9)

	serviced := base
	serviced.ServiceHistoryPresent = true
	assert.InDelta(t, serviceHistoryBoost, r.businessAdjustment(&serviced), 1e-9)

	damaged := base
	damaged.Declarations = []string{"Accident recorded 2023"}
	assert.InDelta(t, -damagePenalty, r.businessAdjustment(&damaged), 1e-9)

	electric := base
	electric.FuelType = "Electric"
	assert.InDelta(t, lowEmissionBoost, r.businessAdjustment(&electric), 1e-9)

	motSoon := base
	motSoon.MOTExpiryDate = datePtr(fixedNow.AddDate(0, 0, 14))
	assert.InDelta(t, -motExpiringPenalty, r.businessAdjustment(&motSoon), 1e-9)
}

func TestConditionScoreComposite(t *testing.T) {
	r := newTestRanker()

	pristine := vehicle("v1", "BMW", "320d", 20000, 30000)
	pristine.ServiceHistoryPresent = true
	pristine.NumberOfServices = 6
	// 0.3 history + 0.2 mileage + 0.2 MOT + 0.2 services + 0.1 clean = 1.0
	assert.InDelta(t, 1.0, r.conditionScore(&pristine), 1e-9)

	middling := vehicle("v2", "BMW", "320d", 20000, 70000)
	middling.MOTExpiryDate = datePtr(fixedNow.AddDate(0, 0, 45))
	middling.NumberOfServices = 3
	// 0.1 mileage + 0.1 MOT + 0.1 services + 0.1 clean = 0.4
	assert.InDelta(t, 0.4, r.conditionScore(&middling), 1e-9)
}

func TestRecencyLadder(t *testing.T) {
	r := newTestRanker()
	tests := []struct {
		age  int
		want float64
	}{{0, 1.0}, {2, 0.8}, {4, 0.6}, {8, 0.4}, {12, 0.2}}
	for _, tt := range tests {
		v := vehicle("v", "BMW", "320d", 20000, 30000)
		v.RegistrationDate = datePtr(fixedNow.AddDate(-tt.age, 0, 0))
		assert.InDelta(t, tt.want, r.recencyScore(&v), 1e-9, "age %d", tt.age)
	}

	unknown := vehicle("v", "BMW", "320d", 20000, 30000)
	unknown.RegistrationDate = nil
	assert.Equal(t, 0.5, r.recencyScore(&unknown))
}

func TestDiversityCapsPerMakeAndModel(t *testing.T) {
	r := newTestRanker()

	var results []datatypes.VehicleResult
	for i := 0; i < 5; i++ {
		results = append(results,
			result(vehicle(fmt.Sprintf("bmw-3-%d", i), "BMW", "3 Series", 20000+float64(i), 40000), 0.9))
	}
	for i := 0; i < 3; i++ {
		results = append(results,
			result(vehicle(fmt.Sprintf("bmw-5-%d", i), "BMW", "5 Series", 30000+float64(i), 40000), 0.85))
	}
	results = append(results, result(vehicle("audi-1", "Audi", "A4", 22000, 40000), 0.8))

	ranked := r.Rank(results, nil)

	makeCount := map[string]int{}
	modelCount := map[string]int{}
	for _, res := range ranked {
		makeCount[res.Vehicle.Make]++
		modelCount[res.Vehicle.Make+"/"+res.Vehicle.Model]++
	}
	assert.LessOrEqual(t, makeCount["BMW"], 3)
	assert.LessOrEqual(t, modelCount["BMW/3 Series"], 2)
	assert.Equal(t, 1, makeCount["Audi"])
}

func TestDiversitySkippedWhenMakePinned(t *testing.T) {
	r := newTestRanker()

	var results []datatypes.VehicleResult
	for i := 0; i < 5; i++ {
		results = append(results,
			result(vehicle(fmt.Sprintf("bmw-%d", i), "BMW", "3 Series", 20000+float64(i), 40000), 0.9))
	}

	ranked := r.Rank(results, eqMakeQuery("BMW"))
	assert.Len(t, ranked, 5, "Eq(make) disables diversity caps")
}

func TestTieBreaksPriceThenMileageThenID(t *testing.T) {
	r := newTestRanker()

	a := result(vehicle("bbb", "Ford", "Focus", 15000, 50000), 0.8)
	b := result(vehicle("aaa", "Ford", "Fiesta", 15000, 50000), 0.8)
	c := result(vehicle("ccc", "Ford", "Mondeo", 14000, 50000), 0.8)

	ranked := r.Rank([]datatypes.VehicleResult{a, b, c}, nil)
	require.Len(t, ranked, 3)
	assert.Equal(t, "ccc", ranked[0].Vehicle.ID, "cheaper first on equal score")
	assert.Equal(t, "aaa", ranked[1].Vehicle.ID, "id breaks the full tie")
	assert.Equal(t, "bbb", ranked[2].Vehicle.ID)
}

func TestRankIsIdempotent(t *testing.T) {
	r := newTestRanker()
	q := eqMakeQuery("BMW")

	var results []datatypes.VehicleResult
	for i := 0; i < 6; i++ {
		v := vehicle(fmt.Sprintf("v%d", i), "BMW", "3 Series", 18000+float64(i*500), 30000+i*5000)
		results = append(results, result(v, 0.6+float64(i)*0.05))
	}

	once := r.Rank(results, q)
	twice := r.Rank(once, q)

	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].Vehicle.ID, twice[i].Vehicle.ID)
		assert.InDelta(t, once[i].Score, twice[i].Score, 1e-9)
	}
}

func TestRankEmptyInput(t *testing.T) {
	r := newTestRanker()
	assert.Empty(t, r.Rank(nil, nil))
}

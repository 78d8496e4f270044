// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package concepts

import (
	"sort"
	"strings"
	"time"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

const (
	positiveIndicatorBoost = 0.05
	negativeIndicatorCost  = 0.10
	maxDescriptionBoost    = 0.5
	matchThreshold         = 0.5
	// neutralScore is used when the vehicle does not carry the attribute
	// at all, so an unknown never counts for or against a concept hard.
	neutralScore = 0.5
)

// Score measures how well a vehicle fits one concept.
//
// # Description
//
// Each attribute is scored in [0, 1] by its comparison, multiplied by its
// weight, and summed. The description boost adds 0.05 per positive
// indicator phrase and subtracts 0.10 per negative one, clamped to
// plus/minus 0.5. The overall score is clamped to [0, 1]. Attributes
// scoring at least 0.5 land in MatchingAttributes.
func (m *Mapper) Score(v *datatypes.Vehicle, c Concept) datatypes.SimilarityScore {
	now := m.now()

	score := datatypes.SimilarityScore{
		Concept:         c.Name,
		ComponentScores: make(map[string]float64, len(c.Attributes)),
	}

	weighted := 0.0
	for _, a := range c.Attributes {
		s := scoreAttribute(v, a, now)
		score.ComponentScores[a.Attribute] = s
		weighted += s * a.Weight
		if s >= matchThreshold {
			score.MatchingAttributes = append(score.MatchingAttributes, a.Attribute)
		} else {
			score.MismatchingAttributes = append(score.MismatchingAttributes, a.Attribute)
		}
	}

	score.DescriptionBoost = descriptionBoost(v.Description, c)
	score.Overall = datatypes.ClampScore(weighted + score.DescriptionBoost)
	return score
}

// BestMatches returns the concept's matching attributes ordered by their
// component score, strongest first. Used when assembling explanations.
func BestMatches(s datatypes.SimilarityScore) []string {
	out := append([]string(nil), s.MatchingAttributes...)
	sort.SliceStable(out, func(i, j int) bool {
		return s.ComponentScores[out[i]] > s.ComponentScores[out[j]]
	})
	return out
}

func descriptionBoost(description string, c Concept) float64 {
	if description == "" {
		return 0
	}
	lower := strings.ToLower(description)
	boost := 0.0
	for _, p := range c.PositiveIndicators {
		if strings.Contains(lower, strings.ToLower(p)) {
			boost += positiveIndicatorBoost
		}
	}
	for _, n := range c.NegativeIndicators {
		if strings.Contains(lower, strings.ToLower(n)) {
			boost -= negativeIndicatorCost
		}
	}
	if boost > maxDescriptionBoost {
		return maxDescriptionBoost
	}
	if boost < -maxDescriptionBoost {
		return -maxDescriptionBoost
	}
	return boost
}

// =============================================================================
// Per-attribute scoring
// =============================================================================

func scoreAttribute(v *datatypes.Vehicle, a AttributeWeight, now time.Time) float64 {
	switch a.Comparison {
	case CompareLess, CompareGreater, CompareLessOrEqual, CompareGreaterOrEqual:
		actual, target, known := numericPair(v, a, now)
		if !known {
			return neutralScore
		}
		switch a.Comparison {
		case CompareLess:
			return linearLess(actual, target)
		case CompareGreater:
			return linearGreater(actual, target)
		case CompareLessOrEqual:
			return step(actual <= target)
		default:
			return step(actual >= target)
		}

	case CompareEquals:
		return scoreEquals(v, a)

	case CompareIn:
		actual, known := stringAttribute(v, a.Attribute)
		if !known {
			return neutralScore
		}
		for _, want := range a.Strings {
			if strings.EqualFold(actual, want) {
				return 1.0
			}
		}
		return 0.0

	case CompareContains:
		actual, known := stringAttribute(v, a.Attribute)
		if !known {
			return neutralScore
		}
		if foldContains(actual, a.String) {
			return 1.0
		}
		return 0.0

	case CompareContainsAny:
		values, known := collectionAttribute(v, a.Attribute)
		if !known {
			return neutralScore
		}
		for _, want := range a.Strings {
			for _, have := range values {
				if foldContains(have, want) {
					return 1.0
				}
			}
		}
		return 0.0
	}
	return neutralScore
}

// linearLess scores "prefer smaller": full marks at or below 70% of the
// target, floor 0.2 at or above 130%, linear in between.
func linearLess(actual, target float64) float64 {
	if target == 0 {
		return step(actual <= 0)
	}
	lo, hi := 0.7*target, 1.3*target
	switch {
	case actual <= lo:
		return 1.0
	case actual >= hi:
		return 0.2
	default:
		return 1.0 - (actual-lo)/(hi-lo)*0.8
	}
}

// linearGreater is the mirror: full marks at or above 130% of target.
func linearGreater(actual, target float64) float64 {
	if target == 0 {
		return step(actual >= 0)
	}
	lo, hi := 0.7*target, 1.3*target
	switch {
	case actual >= hi:
		return 1.0
	case actual <= lo:
		return 0.2
	default:
		return 0.2 + (actual-lo)/(hi-lo)*0.8
	}
}

func step(satisfied bool) float64 {
	if satisfied {
		return 1.0
	}
	return 0.2
}

func scoreEquals(v *datatypes.Vehicle, a AttributeWeight) float64 {
	if a.Bool != nil {
		actual, known := boolAttribute(v, a.Attribute)
		if !known {
			return neutralScore
		}
		if actual == *a.Bool {
			return 1.0
		}
		return 0.0
	}
	if a.Number != nil {
		actual, known := numericAttribute(v, a.Attribute)
		if !known {
			return neutralScore
		}
		if actual == *a.Number {
			return 1.0
		}
		return 0.0
	}
	actual, known := stringAttribute(v, a.Attribute)
	if !known {
		return neutralScore
	}
	if strings.EqualFold(actual, a.String) {
		return 1.0
	}
	return 0.0
}

// =============================================================================
// Vehicle attribute access
// =============================================================================

func numericPair(v *datatypes.Vehicle, a AttributeWeight, now time.Time) (actual, target float64, known bool) {
	if a.DaysFromNow != nil {
		d, ok := dateAttribute(v, a.Attribute)
		if !ok {
			return 0, 0, false
		}
		return d.Sub(now).Hours() / 24, float64(*a.DaysFromNow), true
	}
	if a.Number == nil {
		return 0, 0, false
	}
	actual, known = numericAttribute(v, a.Attribute)
	return actual, *a.Number, known
}

func numericAttribute(v *datatypes.Vehicle, name string) (float64, bool) {
	switch name {
	case datatypes.FieldPrice:
		return v.Price, v.Price > 0
	case datatypes.FieldMileage:
		return float64(v.Mileage), true
	case datatypes.FieldEngineSize:
		return v.EngineSize, v.EngineSize > 0
	case datatypes.FieldNumberOfDoors:
		return float64(v.NumberOfDoors), v.NumberOfDoors > 0
	case datatypes.FieldNumberOfServices:
		return float64(v.NumberOfServices), v.NumberOfServices > 0
	case datatypes.FieldPreviousOwners:
		return float64(v.PreviousOwners), v.PreviousOwners > 0
	}
	return 0, false
}

func stringAttribute(v *datatypes.Vehicle, name string) (string, bool) {
	switch name {
	case datatypes.FieldMake:
		return v.Make, v.Make != ""
	case datatypes.FieldModel:
		return v.Model, v.Model != ""
	case datatypes.FieldDerivative:
		return v.Derivative, v.Derivative != ""
	case datatypes.FieldBodyType:
		return v.BodyType, v.BodyType != ""
	case datatypes.FieldFuelType:
		return v.FuelType, v.FuelType != ""
	case datatypes.FieldTransmission:
		return v.TransmissionType, v.TransmissionType != ""
	case datatypes.FieldColour:
		return v.Colour, v.Colour != ""
	case datatypes.FieldSaleLocation:
		return v.SaleLocation, v.SaleLocation != ""
	case datatypes.FieldChannel:
		return v.Channel, v.Channel != ""
	}
	return "", false
}

func boolAttribute(v *datatypes.Vehicle, name string) (bool, bool) {
	if name == datatypes.FieldServiceHistory {
		return v.ServiceHistoryPresent, true
	}
	return false, false
}

func collectionAttribute(v *datatypes.Vehicle, name string) ([]string, bool) {
	switch name {
	case datatypes.FieldFeatures:
		return v.Features, len(v.Features) > 0
	case datatypes.FieldDeclarations:
		return v.Declarations, len(v.Declarations) > 0
	}
	return nil, false
}

func dateAttribute(v *datatypes.Vehicle, name string) (time.Time, bool) {
	switch name {
	case datatypes.FieldMOTExpiryDate:
		if v.MOTExpiryDate != nil {
			return *v.MOTExpiryDate, true
		}
	case datatypes.FieldRegistrationDate:
		if v.RegistrationDate != nil {
			return *v.RegistrationDate, true
		}
	case datatypes.FieldLastServiceDate:
		if v.LastServiceDate != nil {
			return *v.LastServiceDate, true
		}
	}
	return time.Time{}, false
}

func foldContains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

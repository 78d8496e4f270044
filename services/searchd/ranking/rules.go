// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ranking

import (
	"strings"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// Business-rule adjustments, applied after the weighted blend.
const (
	premiumMakeBoost    = 0.05
	highMileagePenalty  = 0.15
	serviceHistoryBoost = 0.10
	damagePenalty       = 0.20
	lowEmissionBoost    = 0.08
	motExpiringPenalty  = 0.10

	highMileageThreshold = 100000
	motWarningDays       = 30
)

var premiumMakes = map[string]bool{
	"audi":          true,
	"bmw":           true,
	"jaguar":        true,
	"land rover":    true,
	"lexus":         true,
	"mercedes-benz": true,
	"porsche":       true,
	"tesla":         true,
}

var damageTerms = []string{"damage", "accident", "write-off", "category"}

// businessAdjustment sums the rule deltas for one vehicle. The result
// is added to the weighted score and clamped by the caller.
func (r *Ranker) businessAdjustment(v *datatypes.Vehicle) float64 {
	adj := 0.0

	if premiumMakes[strings.ToLower(v.Make)] {
		adj += premiumMakeBoost
	}
	if v.Mileage > highMileageThreshold {
		adj -= highMileagePenalty
	}
	if v.ServiceHistoryPresent {
		adj += serviceHistoryBoost
	}
	if hasDamageDeclaration(v) {
		adj -= damagePenalty
	}
	switch strings.ToLower(v.FuelType) {
	case "electric", "hybrid":
		adj += lowEmissionBoost
	}
	if days := r.motDaysLeft(v); v.MOTExpiryDate != nil && days < motWarningDays {
		adj -= motExpiringPenalty
	}
	return adj
}

func hasDamageDeclaration(v *datatypes.Vehicle) bool {
	for _, term := range damageTerms {
		if v.HasDeclaration(term) {
			return true
		}
	}
	return false
}

// =============================================================================
// Constraint evaluation
// =============================================================================

// satisfies evaluates one filterable constraint against the vehicle with
// the same operator semantics the composer renders into the filter.
func (r *Ranker) satisfies(v *datatypes.Vehicle, c datatypes.SearchConstraint) bool {
	switch c.Operator {
	case datatypes.OpBetween:
		n, ok := numericField(v, c.FieldName)
		return ok && n >= c.Value.Low && n <= c.Value.High

	case datatypes.OpContains:
		if c.FieldName == datatypes.FieldFeatures {
			return v.HasFeature(c.Value.Str)
		}
		s, ok := stringField(v, c.FieldName)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(c.Value.Str))

	case datatypes.OpIn:
		s, ok := stringField(v, c.FieldName)
		if !ok {
			return false
		}
		for _, member := range c.Value.Set {
			if strings.EqualFold(s, member) {
				return true
			}
		}
		return false

	case datatypes.OpEq, datatypes.OpNe:
		eq := fieldEquals(v, c)
		if c.Operator == datatypes.OpNe {
			return !eq
		}
		return eq

	case datatypes.OpGt, datatypes.OpGe, datatypes.OpLt, datatypes.OpLe:
		return orderedCompare(v, c)
	}
	return false
}

func fieldEquals(v *datatypes.Vehicle, c datatypes.SearchConstraint) bool {
	switch {
	case c.Value.IsBool:
		if c.FieldName == datatypes.FieldServiceHistory {
			return v.ServiceHistoryPresent == c.Value.Bool
		}
		return false
	case c.Value.IsNum:
		n, ok := numericField(v, c.FieldName)
		return ok && n == c.Value.Num
	default:
		s, ok := stringField(v, c.FieldName)
		return ok && strings.EqualFold(s, c.Value.Str)
	}
}

func orderedCompare(v *datatypes.Vehicle, c datatypes.SearchConstraint) bool {
	var actual, target float64
	if c.Value.Date != nil {
		d, ok := dateField(v, c.FieldName)
		if !ok {
			return false
		}
		actual = float64(d)
		target = float64(c.Value.Date.Unix())
	} else {
		n, ok := numericField(v, c.FieldName)
		if !ok {
			return false
		}
		actual, target = n, c.Value.Num
	}

	switch c.Operator {
	case datatypes.OpGt:
		return actual > target
	case datatypes.OpGe:
		return actual >= target
	case datatypes.OpLt:
		return actual < target
	default:
		return actual <= target
	}
}

func numericField(v *datatypes.Vehicle, field string) (float64, bool) {
	switch field {
	case datatypes.FieldPrice:
		return v.Price, true
	case datatypes.FieldMileage:
		return float64(v.Mileage), true
	case datatypes.FieldEngineSize:
		return v.EngineSize, true
	case datatypes.FieldNumberOfDoors:
		return float64(v.NumberOfDoors), v.NumberOfDoors > 0
	case datatypes.FieldNumberOfServices:
		return float64(v.NumberOfServices), true
	case datatypes.FieldPreviousOwners:
		return float64(v.PreviousOwners), v.PreviousOwners > 0
	}
	return 0, false
}

func stringField(v *datatypes.Vehicle, field string) (string, bool) {
	switch field {
	case datatypes.FieldMake:
		return v.Make, true
	case datatypes.FieldModel:
		return v.Model, true
	case datatypes.FieldDerivative:
		return v.Derivative, true
	case datatypes.FieldBodyType:
		return v.BodyType, true
	case datatypes.FieldFuelType:
		return v.FuelType, true
	case datatypes.FieldTransmission:
		return v.TransmissionType, true
	case datatypes.FieldColour:
		return v.Colour, true
	case datatypes.FieldSaleLocation:
		return v.SaleLocation, true
	case datatypes.FieldChannel:
		return v.Channel, true
	}
	return "", false
}

func dateField(v *datatypes.Vehicle, field string) (t int64, ok bool) {
	switch field {
	case datatypes.FieldRegistrationDate:
		if v.RegistrationDate != nil {
			return v.RegistrationDate.Unix(), true
		}
	case datatypes.FieldMOTExpiryDate:
		if v.MOTExpiryDate != nil {
			return v.MOTExpiryDate.Unix(), true
		}
	case datatypes.FieldLastServiceDate:
		if v.LastServiceDate != nil {
			return v.LastServiceDate.Unix(), true
		}
	}
	return 0, false
}

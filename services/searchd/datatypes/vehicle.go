// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"
)

// =============================================================================
// Vehicle
// =============================================================================

// Vehicle is an immutable inventory record as stored in the search index.
//
// # Description
//
// A Vehicle carries every attribute the pipeline can filter, rank, or
// explain on, plus the description embedding used for semantic search.
// Vehicles are produced by the index adapter and never mutated by the
// core; treat every field as read-only.
//
// # Invariants
//
//   - ID is unique across the inventory.
//   - Embedding has the same dimension for every vehicle and matches the
//     query embedder's dimension.
type Vehicle struct {
	ID         string `json:"id"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	Derivative string `json:"derivative"`

	// Price is in whole pounds. Always >= 0.
	Price float64 `json:"price"`
	// Mileage in miles. Always >= 0.
	Mileage int `json:"mileage"`

	BodyType         string  `json:"bodyType"`
	FuelType         string  `json:"fuelType"`
	TransmissionType string  `json:"transmissionType"`
	Colour           string  `json:"colour"`
	EngineSize       float64 `json:"engineSize"`
	// NumberOfDoors is 2-7 when known, 0 when the feed omitted it.
	NumberOfDoors int `json:"numberOfDoors,omitempty"`

	RegistrationDate *time.Time `json:"registrationDate,omitempty"`
	MOTExpiryDate    *time.Time `json:"motExpiryDate,omitempty"`
	LastServiceDate  *time.Time `json:"lastServiceDate,omitempty"`

	SaleLocation string `json:"saleLocation"`
	Channel      string `json:"channel"`

	Features     []string `json:"features"`
	Declarations []string `json:"declarations"`

	ServiceHistoryPresent bool `json:"serviceHistoryPresent"`
	NumberOfServices      int  `json:"numberOfServices,omitempty"`
	// PreviousOwners is 0 when the feed omitted it, which scoring treats
	// as unknown rather than zero owners.
	PreviousOwners int `json:"previousOwners,omitempty"`

	Description string `json:"description"`

	// Embedding is the description vector. Omitted from API responses.
	Embedding []float32 `json:"-"`
}

// HasFeature reports whether the vehicle lists the feature, matched
// case-insensitively as a substring so "sat nav" hits "Satellite Navigation".
func (v *Vehicle) HasFeature(feature string) bool {
	return containsFold(v.Features, feature)
}

// HasDeclaration reports whether any declaration contains the given term,
// case-insensitively. Used for damage/accident checks in ranking.
func (v *Vehicle) HasDeclaration(term string) bool {
	return containsFold(v.Declarations, term)
}

// RegistrationYear returns the registration year, or 0 when unknown.
func (v *Vehicle) RegistrationYear() int {
	if v.RegistrationDate == nil {
		return 0
	}
	return v.RegistrationDate.Year()
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if foldContains(s, needle) {
			return true
		}
	}
	return false
}

// =============================================================================
// Search Results
// =============================================================================

// ScoreBreakdown records the per-approach scores that produced a result's
// final score. All values are within [0, 1] and never NaN.
type ScoreBreakdown struct {
	Exact    float64 `json:"exact"`
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Final    float64 `json:"final"`
}

// VehicleResult pairs a Vehicle with its relevance score.
//
// # Invariants
//
//   - Score is finite and within [0, 1].
//   - Breakdown.Final equals Score after ranking.
type VehicleResult struct {
	Vehicle   Vehicle        `json:"vehicle"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"scoreBreakdown"`
}

// ClampScore forces a score into [0, 1] and maps NaN to 0.
// Every scoring path runs its output through this before results leave
// the component, which is what keeps the score invariant checkable.
func ClampScore(s float64) float64 {
	if s != s { // NaN
		return 0
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

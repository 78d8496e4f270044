// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Concept Similarity and Explanations
// =============================================================================

// SimilarityScore measures how well a vehicle fits one qualitative concept.
//
// # Fields
//
//   - Overall: Weighted sum of attribute scores plus the description boost,
//     clamped to [0, 1].
//   - ComponentScores: Per-attribute scores, each in [0, 1].
//   - MatchingAttributes: Attributes scoring >= 0.5.
//   - MismatchingAttributes: Attributes scoring < 0.5.
//   - DescriptionBoost: Net description-indicator adjustment in [-0.5, 0.5].
type SimilarityScore struct {
	Concept               string             `json:"concept"`
	Overall               float64            `json:"overall"`
	ComponentScores       map[string]float64 `json:"componentScores"`
	MatchingAttributes    []string           `json:"matchingAttributes"`
	MismatchingAttributes []string           `json:"mismatchingAttributes"`
	DescriptionBoost      float64            `json:"descriptionBoost"`
}

// ScoreComponent is one factor in an explained score.
type ScoreComponent struct {
	Factor string  `json:"factor"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// ExplainedScore is the per-result explanation returned by /search/explain:
// the weighted-average score, a human-readable sentence, and the components
// that produced it.
type ExplainedScore struct {
	VehicleID   string           `json:"vehicleId"`
	Score       float64          `json:"score"`
	Explanation string           `json:"explanation"`
	Components  []ScoreComponent `json:"components"`
}

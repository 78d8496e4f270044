// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ranking re-scores executor output with weighted factors and
// business rules, then enforces result diversity.
package ranking

import (
	"log/slog"
	"sort"
	"time"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// FactorWeights control the weighted scoring blend. They are
// renormalized to sum to 1 before use.
type FactorWeights struct {
	SemanticRelevance    float64
	ExactMatchCount      float64
	PriceCompetitiveness float64
	VehicleCondition     float64
	Recency              float64
}

// DefaultWeights returns the production blend.
func DefaultWeights() FactorWeights {
	return FactorWeights{
		SemanticRelevance:    0.40,
		ExactMatchCount:      0.25,
		PriceCompetitiveness: 0.15,
		VehicleCondition:     0.10,
		Recency:              0.10,
	}
}

func (w FactorWeights) sum() float64 {
	return w.SemanticRelevance + w.ExactMatchCount + w.PriceCompetitiveness +
		w.VehicleCondition + w.Recency
}

// normalized scales the weights to sum to 1; zero weights fall back to
// the defaults.
func (w FactorWeights) normalized() FactorWeights {
	total := w.sum()
	if total <= 0 {
		return DefaultWeights()
	}
	return FactorWeights{
		SemanticRelevance:    w.SemanticRelevance / total,
		ExactMatchCount:      w.ExactMatchCount / total,
		PriceCompetitiveness: w.PriceCompetitiveness / total,
		VehicleCondition:     w.VehicleCondition / total,
		Recency:              w.Recency / total,
	}
}

// Config tunes the ranker.
type Config struct {
	Weights     FactorWeights
	MaxPerMake  int
	MaxPerModel int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), MaxPerMake: 3, MaxPerModel: 2}
}

// Ranker re-scores and diversifies executor output.
//
// # Thread Safety
//
// Safe for concurrent use; Rank never mutates its input slice.
type Ranker struct {
	config Config

	// now is swapped out in tests so MOT and recency scoring is stable.
	now func() time.Time
}

// NewRanker creates a ranker. Non-positive diversity caps take defaults.
func NewRanker(config Config) *Ranker {
	if config.Weights.sum() <= 0 {
		config.Weights = DefaultWeights()
	}
	if config.MaxPerMake <= 0 {
		config.MaxPerMake = 3
	}
	if config.MaxPerModel <= 0 {
		config.MaxPerModel = 2
	}
	return &Ranker{config: config, now: time.Now}
}

// Rank re-scores the results against the query and returns them ordered
// best-first with diversity applied.
//
// # Description
//
// Ranking never fails a request: it is a pure function of the executor
// output, and any internal panic falls back to the input order. Ranking
// the same output twice yields the same order (idempotent), because
// every factor reads vehicle attributes and the executor's semantic
// score, neither of which ranking changes.
func (r *Ranker) Rank(results []datatypes.VehicleResult, q *datatypes.ComposedQuery) (out []datatypes.VehicleResult) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Ranking panicked, falling back to executor order", "panic", p)
			out = results
		}
	}()

	if len(results) == 0 {
		return results
	}

	weights := r.config.Weights.normalized()
	minPrice, maxPrice := priceBounds(results)
	exactConstraints := filterableConstraints(q)

	scored := make([]datatypes.VehicleResult, len(results))
	for i, res := range results {
		v := res.Vehicle

		score := weights.SemanticRelevance*semanticRelevance(res) +
			weights.ExactMatchCount*r.exactMatchFraction(&v, exactConstraints) +
			weights.PriceCompetitiveness*priceCompetitiveness(v.Price, minPrice, maxPrice) +
			weights.VehicleCondition*r.conditionScore(&v) +
			weights.Recency*r.recencyScore(&v)

		score = datatypes.ClampScore(score + r.businessAdjustment(&v))

		res.Score = score
		res.Breakdown.Final = score
		scored[i] = res
	}

	sort.SliceStable(scored, func(i, j int) bool { return lessRanked(scored[i], scored[j]) })

	if r.diversityApplies(q) {
		scored = r.diversify(scored)
	}
	return scored
}

// lessRanked orders by score descending with deterministic tie-breaks:
// price ascending, then mileage ascending, then id.
func lessRanked(a, b datatypes.VehicleResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Vehicle.Price != b.Vehicle.Price {
		return a.Vehicle.Price < b.Vehicle.Price
	}
	if a.Vehicle.Mileage != b.Vehicle.Mileage {
		return a.Vehicle.Mileage < b.Vehicle.Mileage
	}
	return a.Vehicle.ID < b.Vehicle.ID
}

// =============================================================================
// Factors
// =============================================================================

// semanticRelevance reads the semantic component of the breakdown. Pure
// exact results carry no semantic score, so their exact component stands
// in; reading the breakdown rather than the mutable Score keeps ranking
// idempotent.
func semanticRelevance(r datatypes.VehicleResult) float64 {
	if r.Breakdown.Semantic > 0 {
		return r.Breakdown.Semantic
	}
	if r.Breakdown.Exact > 0 {
		return r.Breakdown.Exact
	}
	return datatypes.ClampScore(r.Score)
}

// exactMatchFraction is the share of filterable constraints the vehicle
// satisfies; neutral 0.5 when the query carries none.
func (r *Ranker) exactMatchFraction(v *datatypes.Vehicle, constraints []datatypes.SearchConstraint) float64 {
	if len(constraints) == 0 {
		return 0.5
	}
	satisfied := 0
	for _, c := range constraints {
		if r.satisfies(v, c) {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(constraints))
}

func priceCompetitiveness(price, min, max float64) float64 {
	if max <= min {
		return 0.5
	}
	return datatypes.ClampScore(1 - (price-min)/(max-min))
}

// conditionScore is a composite of history, mileage, MOT headroom,
// service count, and clean declarations, capped at 1.0.
func (r *Ranker) conditionScore(v *datatypes.Vehicle) float64 {
	score := 0.0
	if v.ServiceHistoryPresent {
		score += 0.3
	}

	switch {
	case v.Mileage < 50000:
		score += 0.2
	case v.Mileage < 80000:
		score += 0.1
	}

	if days := r.motDaysLeft(v); days > 90 {
		score += 0.2
	} else if days > 30 {
		score += 0.1
	}

	switch {
	case v.NumberOfServices >= 5:
		score += 0.2
	case v.NumberOfServices >= 3:
		score += 0.1
	}

	if !hasDamageDeclaration(v) {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// recencyScore ladders by registration age; 0.5 when unknown.
func (r *Ranker) recencyScore(v *datatypes.Vehicle) float64 {
	if v.RegistrationDate == nil {
		return 0.5
	}
	years := r.now().Sub(*v.RegistrationDate).Hours() / (24 * 365.25)
	switch {
	case years <= 1:
		return 1.0
	case years <= 3:
		return 0.8
	case years <= 5:
		return 0.6
	case years <= 10:
		return 0.4
	default:
		return 0.2
	}
}

func (r *Ranker) motDaysLeft(v *datatypes.Vehicle) int {
	if v.MOTExpiryDate == nil {
		return 0
	}
	return int(v.MOTExpiryDate.Sub(r.now()).Hours() / 24)
}

func priceBounds(results []datatypes.VehicleResult) (min, max float64) {
	min, max = results[0].Vehicle.Price, results[0].Vehicle.Price
	for _, r := range results[1:] {
		if r.Vehicle.Price < min {
			min = r.Vehicle.Price
		}
		if r.Vehicle.Price > max {
			max = r.Vehicle.Price
		}
	}
	return min, max
}

func filterableConstraints(q *datatypes.ComposedQuery) []datatypes.SearchConstraint {
	if q == nil {
		return nil
	}
	return q.FilterableConstraints()
}

// =============================================================================
// Diversity
// =============================================================================

// diversityApplies is false when the user pinned a make or model; a
// narrowed query should not have its own results capped away.
func (r *Ranker) diversityApplies(q *datatypes.ComposedQuery) bool {
	if q == nil {
		return true
	}
	if q.HasEqOn(datatypes.FieldMake) || q.HasEqOn(datatypes.FieldModel) {
		return false
	}
	// The mapper pins models with Contains rather than Eq, so an exact
	// Contains on model counts as pinning too.
	for _, c := range q.AllConstraints() {
		if c.FieldName == datatypes.FieldModel &&
			c.Operator == datatypes.OpContains && c.Kind == datatypes.KindExact {
			return false
		}
	}
	return true
}

// diversify admits results in score order while capping per-make and
// per-(make,model) counts.
func (r *Ranker) diversify(results []datatypes.VehicleResult) []datatypes.VehicleResult {
	makeCount := make(map[string]int)
	modelCount := make(map[[2]string]int)

	var out []datatypes.VehicleResult
	for _, res := range results {
		mk := res.Vehicle.Make
		pair := [2]string{mk, res.Vehicle.Model}
		if makeCount[mk] >= r.config.MaxPerMake || modelCount[pair] >= r.config.MaxPerModel {
			continue
		}
		makeCount[mk]++
		modelCount[pair]++
		out = append(out, res)
	}
	return out
}

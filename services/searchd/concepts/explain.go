// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package concepts

import (
	"fmt"
	"strings"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

const (
	exactComponentWeight   = 0.4
	conceptComponentWeight = 0.3
)

// Explain scores one vehicle against a parsed query and assembles a
// human-readable breakdown.
//
// # Description
//
// Builds one component per recognized exact field (make, model, price,
// location) at weight 0.4 and one per qualitative concept at weight 0.3,
// then takes the weighted average. The explanation sentence is built
// from fixed fragments so it stays stable across runs.
func (m *Mapper) Explain(v *datatypes.Vehicle, parsed *datatypes.ParsedQuery) datatypes.ExplainedScore {
	var components []datatypes.ScoreComponent
	var matchedFields []string
	var matchedConcepts []string

	for _, e := range parsed.Entities {
		switch e.Type {
		case datatypes.EntityMake:
			s := boolScore(strings.EqualFold(v.Make, e.Value))
			components = append(components, datatypes.ScoreComponent{
				Factor: "make",
				Score:  s,
				Weight: exactComponentWeight,
				Reason: exactReason("make", e.Value, v.Make, s),
			})
			if s == 1.0 {
				matchedFields = append(matchedFields, fmt.Sprintf("make %s", v.Make))
			}

		case datatypes.EntityModel:
			s := boolScore(foldContains(v.Model, e.Value))
			components = append(components, datatypes.ScoreComponent{
				Factor: "model",
				Score:  s,
				Weight: exactComponentWeight,
				Reason: exactReason("model", e.Value, v.Model, s),
			})
			if s == 1.0 {
				matchedFields = append(matchedFields, fmt.Sprintf("model %s", v.Model))
			}

		case datatypes.EntityPrice, datatypes.EntityPriceRange:
			s, reason := priceScore(v.Price, e)
			components = append(components, datatypes.ScoreComponent{
				Factor: "price",
				Score:  s,
				Weight: exactComponentWeight,
				Reason: reason,
			})
			if s >= matchThreshold {
				matchedFields = append(matchedFields,
					fmt.Sprintf("price £%.0f against your target", v.Price))
			}

		case datatypes.EntityLocation:
			s := boolScore(strings.EqualFold(v.SaleLocation, e.Value))
			components = append(components, datatypes.ScoreComponent{
				Factor: "location",
				Score:  s,
				Weight: exactComponentWeight,
				Reason: exactReason("location", e.Value, v.SaleLocation, s),
			})
			if s == 1.0 {
				matchedFields = append(matchedFields, fmt.Sprintf("location %s", v.SaleLocation))
			}

		case datatypes.EntityQualitativeTerm:
			concept, ok := m.Lookup(e.Value)
			if !ok {
				continue
			}
			sim := m.Score(v, concept)
			components = append(components, datatypes.ScoreComponent{
				Factor: fmt.Sprintf("concept:%s", concept.Name),
				Score:  sim.Overall,
				Weight: conceptComponentWeight,
				Reason: conceptReason(concept.Name, sim),
			})
			if sim.Overall >= matchThreshold {
				matchedConcepts = append(matchedConcepts, conceptFragment(concept.Name, sim))
			}
		}
	}

	score := weightedAverage(components)
	return datatypes.ExplainedScore{
		VehicleID:   v.ID,
		Score:       score,
		Explanation: buildExplanation(v, score, matchedFields, matchedConcepts),
		Components:  components,
	}
}

func weightedAverage(components []datatypes.ScoreComponent) float64 {
	totalWeight := 0.0
	sum := 0.0
	for _, c := range components {
		sum += c.Score * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return datatypes.ClampScore(sum / totalWeight)
}

func buildExplanation(v *datatypes.Vehicle, score float64, fields, concepts []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("This %s %s ", v.Make, v.Model))
	switch {
	case score >= 0.75:
		b.WriteString("strongly matches your search")
	case score >= 0.45:
		b.WriteString("partially matches your search")
	default:
		b.WriteString("weakly matches your search")
	}
	if len(fields) > 0 {
		b.WriteString(": matches " + strings.Join(fields, ", "))
	}
	if len(concepts) > 0 {
		if len(fields) > 0 {
			b.WriteString("; ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(strings.Join(concepts, "; "))
	}
	b.WriteString(".")
	return b.String()
}

func conceptFragment(name string, sim datatypes.SimilarityScore) string {
	best := BestMatches(sim)
	if len(best) > 2 {
		best = best[:2]
	}
	if len(best) == 0 {
		return fmt.Sprintf("fits %q", name)
	}
	return fmt.Sprintf("fits %q (%s)", name, strings.Join(best, ", "))
}

func exactReason(field, wanted, actual string, score float64) string {
	if score == 1.0 {
		return fmt.Sprintf("%s is %s", field, actual)
	}
	return fmt.Sprintf("%s is %s, you asked for %s", field, orNone(actual), wanted)
}

func conceptReason(name string, sim datatypes.SimilarityScore) string {
	return fmt.Sprintf("%q similarity %.2f (%d of %d attributes match)",
		name, sim.Overall, len(sim.MatchingAttributes), len(sim.ComponentScores))
}

// priceScore treats a target price as a "less" style preference and a
// range as a hard window.
func priceScore(price float64, e datatypes.ExtractedEntity) (float64, string) {
	if e.Type == datatypes.EntityPriceRange && e.NumericValueHigh > 0 {
		if price >= e.NumericValue && price <= e.NumericValueHigh {
			return 1.0, fmt.Sprintf("price £%.0f is within £%.0f-£%.0f", price, e.NumericValue, e.NumericValueHigh)
		}
		return 0.0, fmt.Sprintf("price £%.0f is outside £%.0f-£%.0f", price, e.NumericValue, e.NumericValueHigh)
	}
	if e.NumericValue <= 0 {
		return neutralScore, "no usable price target"
	}
	s := linearLess(price, e.NumericValue)
	return s, fmt.Sprintf("price £%.0f against target £%.0f", price, e.NumericValue)
}

func boolScore(ok bool) float64 {
	if ok {
		return 1.0
	}
	return 0.0
}

func orNone(s string) string {
	if s == "" {
		return "not listed"
	}
	return s
}

// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"fmt"
	"math"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// maxExactWeight caps how much the exact leg can dominate a hybrid plan.
const maxExactWeight = 0.7

// SelectStrategy picks the execution plan for a composed query.
//
// # Description
//
//   - Only filterable constraints: ExactOnly.
//   - Only semantic constraints: SemanticOnly.
//   - Both: Hybrid with exactWeight = min(0.7, 0.15 per filterable
//     constraint) and the remainder on the semantic leg; reranking on.
//   - Neither: SemanticOnly over all documents, the broadest fallback.
func SelectStrategy(q *datatypes.ComposedQuery) datatypes.SearchStrategy {
	exact := len(q.FilterableConstraints())
	semantic := len(q.SemanticConstraints())

	switch {
	case semantic == 0 && exact > 0:
		return datatypes.SearchStrategy{
			Type:    datatypes.StrategyExactOnly,
			Weights: map[datatypes.SearchApproach]float64{datatypes.ApproachExactMatch: 1},
			Reason:  fmt.Sprintf("%d filterable constraints, nothing semantic", exact),
		}

	case semantic > 0 && exact == 0:
		return datatypes.SearchStrategy{
			Type:    datatypes.StrategySemanticOnly,
			Weights: map[datatypes.SearchApproach]float64{datatypes.ApproachSemanticSearch: 1},
			Reason:  fmt.Sprintf("%d semantic constraints, nothing filterable", semantic),
		}

	case semantic > 0 && exact > 0:
		exactWeight := math.Min(maxExactWeight, 0.15*float64(exact))
		return datatypes.SearchStrategy{
			Type: datatypes.StrategyHybrid,
			Weights: map[datatypes.SearchApproach]float64{
				datatypes.ApproachExactMatch:     exactWeight,
				datatypes.ApproachSemanticSearch: 1 - exactWeight,
			},
			ShouldRerank: true,
			Reason: fmt.Sprintf("%d filterable and %d semantic constraints",
				exact, semantic),
		}

	default:
		return datatypes.SearchStrategy{
			Type:    datatypes.StrategySemanticOnly,
			Weights: map[datatypes.SearchApproach]float64{datatypes.ApproachSemanticSearch: 1},
			Reason:  "no constraints, falling back to broad semantic search",
		}
	}
}

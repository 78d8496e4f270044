// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"sort"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// rrfK is the reciprocal-rank-fusion constant.
const rrfK = 60

// RankedList is one executor's ordered output plus its fusion weight.
type RankedList struct {
	Weight  float64
	Results []datatypes.VehicleResult
}

// MergeRRF fuses ranked lists with weighted reciprocal rank fusion.
//
// # Description
//
// Each document scores sum(w_i / (k + rank_i)) over the lists that hold
// it, rank 1-based; lists missing the document contribute nothing. The
// representative copy comes from the list where the document ranked
// best, with its score breakdown merged across legs. Output is ordered
// by fused score descending, ties by id, so the merge is deterministic
// and symmetric in its inputs.
func MergeRRF(k int, lists ...RankedList) []datatypes.VehicleResult {
	if k <= 0 {
		k = rrfK
	}

	type fused struct {
		result   datatypes.VehicleResult
		score    float64
		bestRank int
	}
	merged := make(map[string]*fused)

	for _, list := range lists {
		for i, r := range list.Results {
			rank := i + 1
			contribution := list.Weight / float64(k+rank)

			f, ok := merged[r.Vehicle.ID]
			if !ok {
				f = &fused{result: r, bestRank: rank}
				merged[r.Vehicle.ID] = f
			} else {
				if rank < f.bestRank {
					vehicle := r.Vehicle
					f.result.Vehicle = vehicle
					f.bestRank = rank
				}
				f.result.Breakdown = mergeBreakdowns(f.result.Breakdown, r.Breakdown)
			}
			f.score += contribution
		}
	}

	out := make([]datatypes.VehicleResult, 0, len(merged))
	for _, f := range merged {
		f.result.Score = datatypes.ClampScore(f.score)
		f.result.Breakdown.Final = f.result.Score
		out = append(out, f.result)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Vehicle.ID < out[j].Vehicle.ID
	})
	return out
}

// mergeBreakdowns keeps the strongest per-approach component seen for a
// document across legs.
func mergeBreakdowns(a, b datatypes.ScoreBreakdown) datatypes.ScoreBreakdown {
	if b.Exact > a.Exact {
		a.Exact = b.Exact
	}
	if b.Semantic > a.Semantic {
		a.Semantic = b.Semantic
	}
	if b.Keyword > a.Keyword {
		a.Keyword = b.Keyword
	}
	return a
}

// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

func resultList(ids ...string) []datatypes.VehicleResult {
	out := make([]datatypes.VehicleResult, len(ids))
	for i, id := range ids {
		out[i] = datatypes.VehicleResult{
			Vehicle: datatypes.Vehicle{ID: id},
			Score:   1.0 - float64(i)*0.1,
		}
	}
	return out
}

func TestMergeRRFIdenticalListsScoreReciprocalRank(t *testing.T) {
	a := resultList("v1", "v2", "v3")
	b := resultList("v1", "v2", "v3")

	merged := MergeRRF(60,
		RankedList{Weight: 0.4, Results: a},
		RankedList{Weight: 0.6, Results: b},
	)

	require.Len(t, merged, 3)
	// Weights sum to 1, so equal lists collapse to 1/(k+rank) per document.
	assert.InDelta(t, 1.0/61.0, merged[0].Score, 1e-12)
	assert.InDelta(t, 1.0/62.0, merged[1].Score, 1e-12)
	assert.InDelta(t, 1.0/63.0, merged[2].Score, 1e-12)
	assert.Equal(t, "v1", merged[0].Vehicle.ID)
}

func TestMergeRRFCommutative(t *testing.T) {
	a := resultList("v1", "v2", "v3")
	b := resultList("v3", "v4")

	ab := MergeRRF(60,
		RankedList{Weight: 0.3, Results: a},
		RankedList{Weight: 0.7, Results: b},
	)
	ba := MergeRRF(60,
		RankedList{Weight: 0.7, Results: b},
		RankedList{Weight: 0.3, Results: a},
	)

	require.Equal(t, len(ab), len(ba))
	for i := range ab {
		assert.Equal(t, ab[i].Vehicle.ID, ba[i].Vehicle.ID)
		assert.InDelta(t, ab[i].Score, ba[i].Score, 1e-12)
	}
}

func TestMergeRRFMissingDocumentContributesNothing(t *testing.T) {
	a := resultList("v1", "v2")
	b := resultList("v2")

	merged := MergeRRF(60,
		RankedList{Weight: 0.5, Results: a},
		RankedList{Weight: 0.5, Results: b},
	)

	byID := make(map[string]float64)
	for _, r := range merged {
		byID[r.Vehicle.ID] = r.Score
	}
	assert.InDelta(t, 0.5/61.0, byID["v1"], 1e-12)
	assert.InDelta(t, 0.5/62.0+0.5/61.0, byID["v2"], 1e-12)
	// v2 appears in both lists and outranks v1's single contribution.
	assert.Equal(t, "v2", merged[0].Vehicle.ID)
}

func TestMergeRRFRepresentativeFromBestRankedList(t *testing.T) {
	a := []datatypes.VehicleResult{
		{Vehicle: datatypes.Vehicle{ID: "v1", Make: "from-a"},
			Breakdown: datatypes.ScoreBreakdown{Exact: 1.0}},
	}
	b := []datatypes.VehicleResult{
		{Vehicle: datatypes.Vehicle{ID: "v0"}},
		{Vehicle: datatypes.Vehicle{ID: "v1", Make: "from-b"},
			Breakdown: datatypes.ScoreBreakdown{Semantic: 0.8}},
	}

	merged := MergeRRF(60,
		RankedList{Weight: 0.5, Results: a},
		RankedList{Weight: 0.5, Results: b},
	)

	var v1 datatypes.VehicleResult
	for _, r := range merged {
		if r.Vehicle.ID == "v1" {
			v1 = r
		}
	}
	// Rank 1 in list a beats rank 2 in list b.
	assert.Equal(t, "from-a", v1.Vehicle.Make)
	// The breakdown still carries both legs' components.
	assert.Equal(t, 1.0, v1.Breakdown.Exact)
	assert.Equal(t, 0.8, v1.Breakdown.Semantic)
}

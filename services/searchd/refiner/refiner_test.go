// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package refiner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/composer"
	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/mapping"
	"github.com/mollie-ward/vehiclesearch/services/searchd/session"
)

func newTestRefiner() (*Refiner, *session.Store) {
	store := session.NewStore(session.DefaultConfig())
	mapper := mapping.NewMapper(concepts.NewMapper())
	return NewRefiner(store, mapper, composer.NewComposer()), store
}

func makeFilter(value string) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: datatypes.FieldMake, Operator: datatypes.OpEq,
		Value: datatypes.StringValue(value), Kind: datatypes.KindExact, Confidence: 0.95,
	}
}

func priceFilter(op datatypes.Operator, v float64) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName: datatypes.FieldPrice, Operator: op,
		Value: datatypes.NumberValue(v), Kind: datatypes.KindRange, Confidence: 0.9,
	}
}

func seedSession(t *testing.T, store *session.Store, state datatypes.SearchState) string {
	t.Helper()
	id := store.Create().SessionID
	require.NoError(t, store.UpdateSearchState(id, state))
	return id
}

func priceEntity(utterance string, amount float64, start, end int) datatypes.ParsedQuery {
	return datatypes.ParsedQuery{
		Utterance: utterance,
		Intent:    datatypes.IntentRefine,
		Entities: []datatypes.ExtractedEntity{{
			Type: datatypes.EntityPrice, Raw: utterance[start:end],
			NumericValue: amount, Confidence: 0.9, Start: start, End: end,
		}},
	}
}

func TestRefineAddsNewField(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldMake] = makeFilter("BMW")
	id := seedSession(t, store, state)

	parsed := priceEntity("under £20k", 20000, 0, 10)
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)
	require.Nil(t, result.Unresolved)

	assert.Equal(t, []string{"price"}, result.Diff.AddedFields)
	assert.Empty(t, result.Diff.UpdatedFields)
	assert.Empty(t, result.Diff.RemovedFields)

	require.Len(t, result.Merged, 2)
	assert.Contains(t, result.Query.FilterExpression, "make eq 'BMW'")
	assert.Contains(t, result.Query.FilterExpression, "price le 20000")
}

func TestRefineLastWriteWinsPerField(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldPrice] = priceFilter(datatypes.OpLe, 30000)
	id := seedSession(t, store, state)

	parsed := priceEntity("under £20k", 20000, 0, 10)
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)

	assert.Equal(t, []string{"price"}, result.Diff.UpdatedFields)
	assert.Empty(t, result.Diff.AddedFields)

	require.Len(t, result.Merged, 1)
	assert.Equal(t, 20000.0, result.Merged[datatypes.FieldPrice].Value.Num)

	// The store holds the merged filters for the next turn.
	sess, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, sess.SearchState.ActiveFilters[datatypes.FieldPrice].Value.Num)
}

func TestRefineRestatedFilterIsNotADiff(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldPrice] = datatypes.SearchConstraint{
		FieldName: datatypes.FieldPrice, Operator: datatypes.OpLe,
		Value: datatypes.NumberValue(20000), Kind: datatypes.KindRange, Confidence: 0.9,
	}
	id := seedSession(t, store, state)

	parsed := priceEntity("under £20k", 20000, 0, 10)
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)

	assert.Empty(t, result.Diff.AddedFields)
	assert.Empty(t, result.Diff.UpdatedFields)
	assert.Empty(t, result.Diff.RemovedFields)
}

func TestRefineRemovesPriceLimit(t *testing.T) {
	tests := []string{
		"remove the price limit",
		"undo my budget",
		"no budget limit",
		"any price is fine",
	}
	for _, utterance := range tests {
		t.Run(utterance, func(t *testing.T) {
			r, store := newTestRefiner()
			state := datatypes.NewSearchState()
			state.ActiveFilters[datatypes.FieldMake] = makeFilter("BMW")
			state.ActiveFilters[datatypes.FieldPrice] = priceFilter(datatypes.OpLe, 20000)
			id := seedSession(t, store, state)

			parsed := datatypes.ParsedQuery{Utterance: utterance, Intent: datatypes.IntentRefine}
			result, err := r.Refine(id, &parsed)
			require.NoError(t, err)

			assert.Equal(t, []string{"price"}, result.Diff.RemovedFields)
			assert.NotContains(t, result.Merged, datatypes.FieldPrice)
			assert.Contains(t, result.Merged, datatypes.FieldMake)
			assert.NotContains(t, result.Query.FilterExpression, "price")
		})
	}
}

func TestRefineCheaperOnesUsesPriorResults(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldMake] = makeFilter("BMW")
	state.LastResults = []datatypes.ResultSnapshot{
		{ID: "v1", Price: 18500, Mileage: 40000},
		{ID: "v2", Price: 15000, Mileage: 55000},
		{ID: "v3", Price: 19900, Mileage: 30000},
	}
	id := seedSession(t, store, state)

	parsed := datatypes.ParsedQuery{Utterance: "show me cheaper ones", Intent: datatypes.IntentRefine}
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)
	require.Nil(t, result.Unresolved)

	price, ok := result.Merged[datatypes.FieldPrice]
	require.True(t, ok)
	assert.Equal(t, datatypes.OpLe, price.Operator)
	assert.Equal(t, 14999.0, price.Value.Num)
	assert.Contains(t, result.Merged, datatypes.FieldMake)
}

func TestRefineLowerMileageUsesPriorResults(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.LastResults = []datatypes.ResultSnapshot{
		{ID: "v1", Price: 18500, Mileage: 40000},
		{ID: "v2", Price: 15000, Mileage: 55000},
	}
	id := seedSession(t, store, state)

	parsed := datatypes.ParsedQuery{Utterance: "lower mileage please", Intent: datatypes.IntentRefine}
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)

	mileage, ok := result.Merged[datatypes.FieldMileage]
	require.True(t, ok)
	assert.Equal(t, datatypes.OpLe, mileage.Operator)
	assert.Equal(t, 40000.0, mileage.Value.Num)
}

func TestRefineAmbiguousReferenceReturnsCandidates(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldMake] = makeFilter("BMW")
	state.LastResults = []datatypes.ResultSnapshot{
		{ID: "v1", Price: 18500}, {ID: "v2", Price: 15000},
	}
	id := seedSession(t, store, state)

	parsed := datatypes.ParsedQuery{Utterance: "more like that one", Intent: datatypes.IntentCompare}
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)

	require.NotNil(t, result.Unresolved)
	assert.Nil(t, result.Query)
	assert.ElementsMatch(t, []string{"v1", "v2"}, result.Unresolved.Candidates)

	// An ambiguous turn must not disturb the stored filters.
	sess, err := store.Get(id)
	require.NoError(t, err)
	assert.Len(t, sess.SearchState.ActiveFilters, 1)
}

func TestRefineComparativeWithoutPriorResultsIsIgnored(t *testing.T) {
	r, store := newTestRefiner()
	id := seedSession(t, store, datatypes.NewSearchState())

	parsed := datatypes.ParsedQuery{Utterance: "show me cheaper ones", Intent: datatypes.IntentRefine}
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)

	assert.Nil(t, result.Unresolved)
	assert.NotContains(t, result.Merged, datatypes.FieldPrice)
}

func TestRefineUnknownSession(t *testing.T) {
	r, _ := newTestRefiner()
	parsed := datatypes.ParsedQuery{Utterance: "under £20k"}
	_, err := r.Refine("nope", &parsed)
	assert.ErrorIs(t, err, datatypes.ErrSessionNotFound)
}

func TestMergedFiltersHoldOneConstraintPerField(t *testing.T) {
	r, store := newTestRefiner()
	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldMake] = makeFilter("BMW")
	state.ActiveFilters[datatypes.FieldPrice] = priceFilter(datatypes.OpGe, 10000)
	id := seedSession(t, store, state)

	parsed := priceEntity("under £20k", 20000, 0, 10)
	result, err := r.Refine(id, &parsed)
	require.NoError(t, err)

	seen := map[string]int{}
	for field, c := range result.Merged {
		assert.Equal(t, field, c.FieldName)
		seen[c.FieldName]++
	}
	for field, n := range seen {
		assert.Equal(t, 1, n, "field %s duplicated", field)
	}
	// Last write wins: the Ge 10000 filter was replaced by Le 20000.
	assert.Equal(t, datatypes.OpLe, result.Merged[datatypes.FieldPrice].Operator)
}

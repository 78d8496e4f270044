// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search selects an execution strategy for a composed query and
// runs it against the vehicle index: exact filtering, semantic vector
// search, or a hybrid of both fused by reciprocal rank fusion.
package search

import (
	"context"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// SearchIndex is the document store the executors query. Implemented by
// WeaviateIndex in production and by fakes in tests.
//
// All methods honor ctx cancellation and return hits already shaped as
// VehicleHit so score extraction is uniform across query styles.
type SearchIndex interface {
	// FilterSearch runs a filter-only query, ordered by price ascending.
	FilterSearch(ctx context.Context, q *datatypes.ComposedQuery, limit int) ([]datatypes.VehicleHit, error)

	// VectorSearch runs a kNN cosine query over the description vector,
	// constrained by the query's filter when it has one. minCertainty is
	// pushed down so the index never returns hits below the floor.
	VectorSearch(ctx context.Context, q *datatypes.ComposedQuery, vector []float32, minCertainty float64, limit int) ([]datatypes.VehicleHit, error)

	// HybridSearch runs a fused text+vector query in one backend call.
	// alpha is the vector share of the fusion, [0, 1].
	HybridSearch(ctx context.Context, q *datatypes.ComposedQuery, text string, vector []float32, alpha float64, limit int) ([]datatypes.VehicleHit, error)

	// SupportsHybrid reports whether HybridSearch is backed natively.
	// When false the hybrid executor fans out and fuses locally.
	SupportsHybrid() bool

	// GetVehicle fetches one vehicle by its stable id.
	GetVehicle(ctx context.Context, id string) (*datatypes.Vehicle, error)

	// VectorDimensions reports the stored vector dimension, probed from a
	// live document. Used by the startup dimension assertion.
	VectorDimensions(ctx context.Context) (int, error)
}

// Embedder produces query embeddings. Satisfied by embedding.CachingEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

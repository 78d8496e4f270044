// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

var weaviateTracer = otel.Tracer("vehiclesearch.search.weaviate")

// VehicleClassName is the Weaviate class holding the inventory.
const VehicleClassName = "Vehicle"

// WeaviateIndex adapts a Weaviate instance to the SearchIndex interface.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is stateless per call.
type WeaviateIndex struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateIndex wraps an already-connected client.
func NewWeaviateIndex(client *weaviate.Client) *WeaviateIndex {
	return &WeaviateIndex{client: client, class: VehicleClassName}
}

// WithClass overrides the vehicle class name for deployments that shard
// inventory into per-tenant classes.
func (w *WeaviateIndex) WithClass(name string) *WeaviateIndex {
	if name != "" {
		w.class = name
	}
	return w
}

// vehicleFields lists every Vehicle property the executors read back.
func vehicleFields(additional string) []graphql.Field {
	fields := []graphql.Field{
		{Name: "vehicleId"},
		{Name: "make"},
		{Name: "model"},
		{Name: "derivative"},
		{Name: "price"},
		{Name: "mileage"},
		{Name: "bodyType"},
		{Name: "fuelType"},
		{Name: "transmissionType"},
		{Name: "colour"},
		{Name: "engineSize"},
		{Name: "numberOfDoors"},
		{Name: "registrationDate"},
		{Name: "motExpiryDate"},
		{Name: "lastServiceDate"},
		{Name: "saleLocation"},
		{Name: "channel"},
		{Name: "features"},
		{Name: "declarations"},
		{Name: "serviceHistoryPresent"},
		{Name: "numberOfServices"},
		{Name: "previousOwners"},
		{Name: "description"},
	}
	return append(fields, graphql.Field{Name: additional})
}

// FilterSearch runs a filter-only query ordered by price ascending.
func (w *WeaviateIndex) FilterSearch(ctx context.Context, q *datatypes.ComposedQuery, limit int) ([]datatypes.VehicleHit, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateFilterSearch")
	defer span.End()

	query := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(vehicleFields("_additional { id }")...).
		WithSort(graphql.Sort{Path: []string{datatypes.FieldPrice}, Order: graphql.Asc}).
		WithLimit(limit)

	if where := buildWhere(q); where != nil {
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: filter search: %v", datatypes.ErrDependencyUnavailable, err)
	}
	return parseHits(resp)
}

// VectorSearch runs a kNN cosine query with the certainty floor pushed down.
func (w *WeaviateIndex) VectorSearch(ctx context.Context, q *datatypes.ComposedQuery, vector []float32, minCertainty float64, limit int) ([]datatypes.VehicleHit, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateVectorSearch")
	defer span.End()

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(float32(minCertainty))

	query := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(vehicleFields("_additional { id certainty distance }")...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if where := buildWhere(q); where != nil {
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", datatypes.ErrDependencyUnavailable, err)
	}
	return parseHits(resp)
}

// HybridSearch issues one fused text+vector query.
func (w *WeaviateIndex) HybridSearch(ctx context.Context, q *datatypes.ComposedQuery, text string, vector []float32, alpha float64, limit int) ([]datatypes.VehicleHit, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateHybridSearch")
	defer span.End()

	hybrid := w.client.GraphQL().HybridArgumentBuilder().
		WithQuery(text).
		WithVector(vector).
		WithAlpha(float32(alpha))

	query := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(vehicleFields("_additional { id score }")...).
		WithHybrid(hybrid).
		WithLimit(limit)

	if where := buildWhere(q); where != nil {
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: hybrid search: %v", datatypes.ErrDependencyUnavailable, err)
	}
	return parseHits(resp)
}

// SupportsHybrid is true: Weaviate fuses text and vector rankings with
// RRF natively.
func (w *WeaviateIndex) SupportsHybrid() bool { return true }

// GetVehicle fetches one vehicle by its stable id.
func (w *WeaviateIndex) GetVehicle(ctx context.Context, id string) (*datatypes.Vehicle, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateGetVehicle")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"vehicleId"}).
		WithOperator(filters.Equal).
		WithValueString(id)

	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(vehicleFields("_additional { id }")...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get vehicle: %v", datatypes.ErrDependencyUnavailable, err)
	}

	hits, err := parseHits(resp)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: %q", datatypes.ErrVehicleNotFound, id)
	}
	v := hits[0].ToVehicle()
	return &v, nil
}

// vectorProbeResponse is the shape of the single-document vector probe.
type vectorProbeResponse struct {
	Get struct {
		Vehicle []struct {
			Additional struct {
				Vector []float32 `json:"vector"`
			} `json:"_additional"`
		} `json:"Vehicle"`
	} `json:"Get"`
}

// VectorDimensions probes one stored document for its vector length.
func (w *WeaviateIndex) VectorDimensions(ctx context.Context) (int, error) {
	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(graphql.Field{Name: "_additional { vector }"}).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: vector probe: %v", datatypes.ErrDependencyUnavailable, err)
	}

	probe, err := datatypes.ParseGraphQLResponse[vectorProbeResponse](resp)
	if err != nil {
		return 0, fmt.Errorf("parsing vector probe: %w", err)
	}
	if len(probe.Get.Vehicle) == 0 {
		return 0, fmt.Errorf("%w: index %q holds no documents to probe",
			datatypes.ErrDependencyMisconfigured, w.class)
	}
	return len(probe.Get.Vehicle[0].Additional.Vector), nil
}

// AssertDimensions refuses to run when the embedder and the index
// disagree on vector dimension. Called once at startup.
func AssertDimensions(ctx context.Context, index SearchIndex, embedder Embedder) error {
	stored, err := index.VectorDimensions(ctx)
	if err != nil {
		return err
	}
	if want := embedder.Dimensions(); stored != want {
		return fmt.Errorf("%w: index vectors have %d dimensions, embedder produces %d",
			datatypes.ErrDependencyMisconfigured, stored, want)
	}
	slog.Info("Vector dimensions verified", "dimensions", stored)
	return nil
}

func parseHits(resp *models.GraphQLResponse) ([]datatypes.VehicleHit, error) {
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.VehicleQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("parsing vehicle hits: %w", err)
	}
	return parsed.Get.Vehicle, nil
}

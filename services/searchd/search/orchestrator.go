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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

var searchTracer = otel.Tracer("vehiclesearch.search")

const (
	// DefaultMinRelevance is the semantic similarity floor.
	DefaultMinRelevance = 0.50

	// MaxResultsCap bounds every executor's output.
	MaxResultsCap = 100

	// overfetchFactor widens vector queries before the floor and cap apply.
	overfetchFactor = 3
)

// Config tunes the orchestrator.
type Config struct {
	MinRelevance float64
	MaxResults   int
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() Config {
	return Config{MinRelevance: DefaultMinRelevance, MaxResults: MaxResultsCap}
}

// Response is one search turn's outcome.
type Response struct {
	Results  []datatypes.VehicleResult `json:"results"`
	Strategy datatypes.SearchStrategy  `json:"strategy"`
	Duration time.Duration             `json:"duration"`

	// Degraded is set when a hybrid leg failed and the other carried on.
	Degraded bool `json:"degraded,omitempty"`

	// RelaxationHints are populated when the query matched nothing,
	// naming the over-constraining field and a suggested loosening.
	RelaxationHints []RelaxationHint `json:"relaxationHints,omitempty"`
}

// Orchestrator picks a strategy for each composed query and fans out to
// the executors.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type Orchestrator struct {
	index    SearchIndex
	embedder Embedder
	concepts *concepts.Mapper
	config   Config
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(index SearchIndex, embedder Embedder, conceptMapper *concepts.Mapper, config Config) *Orchestrator {
	if config.MinRelevance <= 0 {
		config.MinRelevance = DefaultMinRelevance
	}
	if config.MaxResults <= 0 || config.MaxResults > MaxResultsCap {
		config.MaxResults = MaxResultsCap
	}
	return &Orchestrator{index: index, embedder: embedder, concepts: conceptMapper, config: config}
}

// Search executes the composed query and returns scored results.
//
// # Inputs
//
//   - maxResults: Requested result count; clamped to [1, 100].
//
// # Outputs
//
//   - *Response: Results plus the strategy used. Zero results carry
//     relaxation hints instead of an error.
//   - error: Dependency failures after the degradation policy gave up.
func (o *Orchestrator) Search(ctx context.Context, q *datatypes.ComposedQuery, maxResults int) (*Response, error) {
	started := time.Now()

	ctx, span := searchTracer.Start(ctx, "Orchestrator.Search")
	defer span.End()

	limit := maxResults
	if limit <= 0 || limit > o.config.MaxResults {
		limit = o.config.MaxResults
	}

	strategy := SelectStrategy(q)
	span.SetAttributes(attribute.String("search.strategy", string(strategy.Type)))
	slog.Info("Executing search",
		"strategy", strategy.Type, "reason", strategy.Reason, "limit", limit)

	var (
		results  []datatypes.VehicleResult
		degraded bool
		err      error
	)
	switch strategy.Type {
	case datatypes.StrategyExactOnly:
		results, err = o.runExact(ctx, q, limit)
	case datatypes.StrategySemanticOnly:
		results, err = o.runSemantic(ctx, q, limit)
	default:
		results, degraded, err = o.runHybrid(ctx, q, strategy, limit)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	resp := &Response{
		Results:  results,
		Strategy: strategy,
		Duration: time.Since(started),
		Degraded: degraded,
	}
	if len(results) == 0 {
		resp.RelaxationHints = o.relaxationHints(ctx, q)
	}
	return resp, nil
}

// GetVehicle exposes single-document lookup for the /vehicles endpoint.
func (o *Orchestrator) GetVehicle(ctx context.Context, id string) (*datatypes.Vehicle, error) {
	return o.index.GetVehicle(ctx, id)
}

// =============================================================================
// Executors
// =============================================================================

// runExact pushes the filter down and scores every hit 1.0; the index
// orders by price ascending.
func (o *Orchestrator) runExact(ctx context.Context, q *datatypes.ComposedQuery, limit int) ([]datatypes.VehicleResult, error) {
	ctx, span := searchTracer.Start(ctx, "ExactSearch")
	defer span.End()

	hits, err := o.index.FilterSearch(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("exact executor: %w", err)
	}

	results := make([]datatypes.VehicleResult, len(hits))
	for i, h := range hits {
		results[i] = datatypes.VehicleResult{
			Vehicle:   h.ToVehicle(),
			Score:     1.0,
			Breakdown: datatypes.ScoreBreakdown{Exact: 1.0, Final: 1.0},
		}
	}
	return results, nil
}

// runSemantic embeds the semantic text, overfetches a kNN query, and
// keeps the top hits above the relevance floor.
func (o *Orchestrator) runSemantic(ctx context.Context, q *datatypes.ComposedQuery, limit int) ([]datatypes.VehicleResult, error) {
	ctx, span := searchTracer.Start(ctx, "SemanticSearch")
	defer span.End()

	vector, err := o.embedder.Embed(ctx, o.semanticText(q))
	if err != nil {
		return nil, fmt.Errorf("semantic executor: %w", err)
	}

	hits, err := o.index.VectorSearch(ctx, q, vector, o.config.MinRelevance, limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("semantic executor: %w", err)
	}

	var results []datatypes.VehicleResult
	for _, h := range hits {
		score := datatypes.ClampScore(h.SemanticScore())
		if score < o.config.MinRelevance {
			continue
		}
		results = append(results, datatypes.VehicleResult{
			Vehicle:   h.ToVehicle(),
			Score:     score,
			Breakdown: datatypes.ScoreBreakdown{Semantic: score, Final: score},
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// runHybrid prefers the backend's native fusion and falls back to local
// RRF over a parallel exact and semantic fan-out. One failing leg
// degrades the search; both failing fail it.
func (o *Orchestrator) runHybrid(ctx context.Context, q *datatypes.ComposedQuery, strategy datatypes.SearchStrategy, limit int) ([]datatypes.VehicleResult, bool, error) {
	ctx, span := searchTracer.Start(ctx, "HybridSearch")
	defer span.End()

	semanticWeight := strategy.Weights[datatypes.ApproachSemanticSearch]

	if o.index.SupportsHybrid() {
		results, err := o.runBackendHybrid(ctx, q, semanticWeight, limit)
		if err == nil {
			return results, false, nil
		}
		slog.Warn("Backend hybrid failed, falling back to exact only", "error", err)
		results, exactErr := o.runExact(ctx, q, limit)
		if exactErr != nil {
			return nil, false, fmt.Errorf("hybrid executor: both legs failed: %v; %w", err, exactErr)
		}
		return results, true, nil
	}

	// Each leg keeps its own error so one failure cannot cancel the
	// other: a degraded hybrid needs the surviving leg's results.
	var (
		exactResults, semanticResults []datatypes.VehicleResult
		exactErr, semanticErr         error
	)
	var g errgroup.Group
	g.Go(func() error {
		exactResults, exactErr = o.runExact(ctx, q, limit)
		return nil
	})
	g.Go(func() error {
		semanticResults, semanticErr = o.runSemantic(ctx, q, limit)
		return nil
	})
	_ = g.Wait()

	switch {
	case exactErr != nil && semanticErr != nil:
		return nil, false, fmt.Errorf("hybrid executor: both legs failed: %v; %w", exactErr, semanticErr)
	case semanticErr != nil:
		slog.Warn("Semantic leg failed, serving exact results only", "error", semanticErr)
		return exactResults, true, nil
	case exactErr != nil:
		slog.Warn("Exact leg failed, serving semantic results only", "error", exactErr)
		return semanticResults, true, nil
	}

	merged := MergeRRF(rrfK,
		RankedList{Weight: strategy.Weights[datatypes.ApproachExactMatch], Results: exactResults},
		RankedList{Weight: semanticWeight, Results: semanticResults},
	)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, false, nil
}

// runBackendHybrid issues one fused query; scores are normalized by the
// best hit since backend RRF scores are not comparable across queries.
func (o *Orchestrator) runBackendHybrid(ctx context.Context, q *datatypes.ComposedQuery, semanticWeight float64, limit int) ([]datatypes.VehicleResult, error) {
	ctx, span := searchTracer.Start(ctx, "BackendHybridSearch")
	defer span.End()

	text := o.semanticText(q)
	vector, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := o.index.HybridSearch(ctx, q, text, vector, semanticWeight, limit)
	if err != nil {
		return nil, err
	}

	best := 0.0
	for _, h := range hits {
		if s := h.SemanticScore(); s > best {
			best = s
		}
	}

	results := make([]datatypes.VehicleResult, len(hits))
	for i, h := range hits {
		score := 0.0
		if best > 0 {
			score = datatypes.ClampScore(h.SemanticScore() / best)
		}
		results[i] = datatypes.VehicleResult{
			Vehicle:   h.ToVehicle(),
			Score:     score,
			Breakdown: datatypes.ScoreBreakdown{Exact: 1.0, Semantic: score, Final: score},
		}
	}
	return results, nil
}

// semanticText concatenates the semantic constraints' source terms,
// enriched with canonical phrases for recognized concepts so the
// embedding sits closer to the inventory descriptions.
func (o *Orchestrator) semanticText(q *datatypes.ComposedQuery) string {
	var parts []string
	seen := make(map[string]bool)
	for _, c := range q.SemanticConstraints() {
		term := strings.ToLower(c.SourceTerm)
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		parts = append(parts, term)
		if o.concepts != nil {
			if phrase, ok := o.concepts.CanonicalPhrase(term); ok {
				parts = append(parts, phrase)
			}
		}
	}
	if len(parts) == 0 {
		return "a good car"
	}
	return strings.Join(parts, ". ")
}

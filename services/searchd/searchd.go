// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package searchd assembles the conversational vehicle search service:
// guardrail, understanding, constraint mapping, composition, session
// state, refinement, hybrid retrieval, and ranking behind one HTTP API.
package searchd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/mollie-ward/vehiclesearch/services/embedding"
	"github.com/mollie-ward/vehiclesearch/services/guardrail"
	"github.com/mollie-ward/vehiclesearch/services/llm"
	"github.com/mollie-ward/vehiclesearch/services/searchd/composer"
	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/handlers"
	"github.com/mollie-ward/vehiclesearch/services/searchd/mapping"
	"github.com/mollie-ward/vehiclesearch/services/searchd/observability"
	"github.com/mollie-ward/vehiclesearch/services/searchd/ranking"
	"github.com/mollie-ward/vehiclesearch/services/searchd/refiner"
	"github.com/mollie-ward/vehiclesearch/services/searchd/routes"
	"github.com/mollie-ward/vehiclesearch/services/searchd/search"
	"github.com/mollie-ward/vehiclesearch/services/searchd/session"
	"github.com/mollie-ward/vehiclesearch/services/searchd/understanding"
)

// Service is the running search service.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the configured Gin engine for integration tests.
	Router() *gin.Engine
}

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction; all fields are read-only once New
// returns.
type service struct {
	config Config
	router *gin.Engine
	deps   *handlers.Deps

	sweeper       *session.Sweeper
	tracerCleanup func(context.Context)
	watchCancel   context.CancelFunc
}

// New builds the full pipeline from configuration.
//
// # Description
//
// Initialization order:
//  1. Defaults and tracing.
//  2. Guardrail engine and session store, with the sweeper wired to
//     purge rate-limit counters alongside expired sessions.
//  3. Concept table, with file overrides loaded and watched when
//     configured.
//  4. Intent classifier per LLMBackend; "none" and any classifier
//     construction failure fall back to lexicon-only parsing.
//  5. Search index and embedder when WeaviateURL is set. A vector
//     dimension mismatch between embedder and index is fatal; an
//     unreachable or empty index only skips the check.
//
// Without a WeaviateURL the service runs in lightweight mode: parsing,
// composition, refinement, and sessions work, search answers 503.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	engine, err := guardrail.NewEngine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize guardrail: %w", err)
	}

	store := session.NewStore(session.Config{
		Timeout:     s.config.SessionTimeout,
		MaxMessages: s.config.MaxMessagesPerSession,
	})
	s.sweeper = session.NewSweeper(store, 0, func(now time.Time) {
		engine.PurgeRateCounters(now, s.config.SessionTimeout)
	})

	conceptMapper, err := s.initConcepts()
	if err != nil {
		s.cleanup()
		return nil, err
	}

	classifier := s.initClassifier()
	parser := understanding.NewParser(classifier, conceptMapper)
	queryMapper := mapping.NewMapper(conceptMapper)
	comp := composer.NewComposer()

	var metrics *observability.Metrics
	if s.config.EnableMetrics {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
		metrics.RegisterActiveSessions(func() float64 {
			return float64(len(store.List()))
		})
	}

	orchestrator, err := s.initSearch(conceptMapper)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	s.deps = &handlers.Deps{
		Store:        store,
		Guardrail:    engine,
		Parser:       parser,
		Mapper:       queryMapper,
		Composer:     comp,
		Refiner:      refiner.NewRefiner(store, queryMapper, comp),
		Orchestrator: orchestrator,
		Ranker:       ranking.NewRanker(ranking.DefaultConfig()),
		Concepts:     conceptMapper,
		Metrics:      metrics,
	}

	s.initRouter()
	return s, nil
}

// Run starts the session sweeper and the HTTP server, blocking until
// the server stops.
func (s *service) Run() error {
	defer s.cleanup()

	s.sweeper.Start()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting vehicle search server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP gRPC exporter. An empty endpoint leaves
// the global no-op tracer in place.
func (s *service) initTracer() (func(context.Context), error) {
	if s.config.OTelEndpoint == "" {
		return func(context.Context) {}, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("vehiclesearch")))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down OTLP exporter", "error", err)
		}
	}, nil
}

// initConcepts builds the qualitative term table, applying and watching
// file overrides when configured.
func (s *service) initConcepts() (*concepts.Mapper, error) {
	m := concepts.NewMapper()
	if s.config.ConceptOverridesPath == "" {
		return m, nil
	}

	table, err := concepts.LoadOverrides(s.config.ConceptOverridesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load concept overrides: %w", err)
	}
	m.Replace(table)

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	if err := concepts.WatchOverrides(watchCtx, m, s.config.ConceptOverridesPath); err != nil {
		cancel()
		s.watchCancel = nil
		return nil, fmt.Errorf("failed to watch concept overrides: %w", err)
	}
	return m, nil
}

// initClassifier picks the intent classifier. Classifier failures are
// not fatal; the parser's lexicon path carries intent on its own.
func (s *service) initClassifier() llm.IntentClassifier {
	if s.config.LLMBackend != "openai" {
		return llm.NewNoopClassifier()
	}
	classifier, err := llm.NewOpenAIClassifier()
	if err != nil {
		slog.Warn("OpenAI classifier unavailable, using lexicon-only intent classification",
			"error", err)
		return llm.NewNoopClassifier()
	}
	return classifier
}

// initSearch connects the index and the embedder. Returns a nil
// orchestrator in lightweight mode.
func (s *service) initSearch(conceptMapper *concepts.Mapper) (*search.Orchestrator, error) {
	if s.config.WeaviateURL == "" {
		slog.Info("No index configured, running in lightweight mode")
		return nil, nil
	}

	parsed, err := url.Parse(s.config.WeaviateURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q: %v", s.config.WeaviateURL, err)
	}

	clientConf := weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme}
	if s.config.WeaviateAPIKey != "" {
		clientConf.AuthConfig = auth.ApiKey{Value: s.config.WeaviateAPIKey}
	}
	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	index := search.NewWeaviateIndex(client).WithClass(s.config.IndexClassName)

	embedder, err := embedding.NewOpenAIEmbedder(embedding.Config{
		Model:      s.config.EmbeddingModel,
		Dimensions: s.config.VectorDimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	cached := embedding.NewCachingEmbedder(embedder,
		s.config.EmbeddingCacheSize, s.config.EmbeddingCacheTTL)

	// A dimension mismatch is a permanent misconfiguration and fatal.
	// An unreachable or empty index only skips the check; the first
	// search surfaces the real failure.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stored, err := index.VectorDimensions(ctx)
	switch {
	case err != nil:
		slog.Warn("Skipping vector dimension check", "error", err)
	case stored != cached.Dimensions():
		return nil, fmt.Errorf("index vectors have %d dimensions, embedder produces %d",
			stored, cached.Dimensions())
	default:
		slog.Info("Vector dimensions verified", "dimensions", stored)
	}

	return search.NewOrchestrator(index, cached, conceptMapper, search.Config{
		MinRelevance: s.config.MinRelevance,
		MaxResults:   s.config.MaxResults,
	}), nil
}

func (s *service) initRouter() {
	gin.SetMode(s.config.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if s.config.OTelEndpoint != "" {
		router.Use(otelgin.Middleware("vehiclesearch"))
	}
	routes.SetupRoutes(router, s.deps)
	s.router = router
}

func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)

// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedding provides the query-embedding capability: an OpenAI
// backed client with bounded concurrency and retry, wrapped in a caching
// decorator.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
)

var embedTracer = otel.Tracer("vehiclesearch.embedding")

// Embedder computes a fixed-dimension vector for a piece of text.
//
// Implementations must be deterministic within a model version and safe
// for concurrent use. Rate-limit errors are retriable; the OpenAI client
// retries them internally before surfacing ErrRateLimited.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector dimension D. The service refuses to
	// start if this disagrees with the index's configured dimension.
	Dimensions() int
}

// ErrRateLimited is surfaced after retry exhaustion on 429 responses.
var ErrRateLimited = errors.New("embedding rate limited")

// Config holds the embedding client settings.
type Config struct {
	Model         string
	Dimensions    int
	MaxConcurrent int
	MaxRetries    int
}

// DefaultConfig returns production defaults, overridable via environment.
func DefaultConfig() Config {
	return Config{
		Model:         "text-embedding-3-small",
		Dimensions:    1536,
		MaxConcurrent: 5,
		MaxRetries:    3,
	}
}

// OpenAIEmbedder calls the OpenAI embeddings API.
//
// # Thread Safety
//
// Safe for concurrent use. A counting semaphore caps in-flight requests
// at Config.MaxConcurrent.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
	sem    chan struct{}

	// sleep is swapped out in tests so backoff does not stall the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOpenAIEmbedder builds an embedder from the environment plus config.
func NewOpenAIEmbedder(config Config) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.Dimensions <= 0 {
		config.Dimensions = DefaultConfig().Dimensions
	}
	slog.Info("Initializing OpenAI embedder",
		"model", config.Model,
		"dimensions", config.Dimensions,
		"max_concurrent", config.MaxConcurrent,
	)
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
		sleep:  sleepCtx,
	}, nil
}

// Embed computes the embedding for text.
//
// # Description
//
// Acquires a semaphore slot, then calls the API with exponential backoff
// on 429s: 2^attempt seconds up to MaxRetries attempts. Cancellation is
// honored while waiting for a slot, during backoff, and inside the call.
//
// # Outputs
//
//   - []float32: Vector of length Dimensions().
//   - error: ErrRateLimited after retry exhaustion; other API errors as-is.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := embedTracer.Start(ctx, "EmbedText")
	defer span.End()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			slog.Warn("Embedding call rate limited, backing off",
				"attempt", attempt, "backoff", backoff)
			if err := e.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      openai.EmbeddingModel(e.config.Model),
			Input:      []string{text},
			Dimensions: e.config.Dimensions,
		})
		if err != nil {
			lastErr = err
			if isRateLimit(err) {
				continue
			}
			slog.Error("Embedding call failed", "error", err)
			return nil, fmt.Errorf("embedding call failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("embedding response contained no data")
		}
		return resp.Data[0].Embedding, nil
	}

	slog.Error("Embedding retries exhausted", "error", lastErr)
	return nil, fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
}

// Dimensions implements Embedder.
func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package searchd

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the search service configuration.
//
// # Description
//
// Values come from a YAML file loaded via LoadConfig, from environment
// variables in the CLI layer, or programmatically for testing. Zero
// values take defaults in New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int `yaml:"port" validate:"omitempty,min=1,max=65535"`

	// GinMode sets the Gin framework mode: debug, release, or test.
	GinMode string `yaml:"ginMode" validate:"omitempty,oneof=debug release test"`

	// OTelEndpoint is the OpenTelemetry collector endpoint. Empty
	// disables tracing export.
	OTelEndpoint string `yaml:"otelEndpoint"`

	// EnableMetrics enables the Prometheus /metrics endpoint. Default: true
	EnableMetrics bool `yaml:"enableMetrics"`

	// RequestTimeout bounds one request end to end. Default: 3s
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// WeaviateURL is the vehicle index URL. Empty runs the service in
	// lightweight mode: parse, compose, refine, and sessions work, but
	// search endpoints answer 503.
	WeaviateURL string `yaml:"weaviateUrl" validate:"omitempty,url"`

	// WeaviateAPIKey authenticates against a protected index. Optional.
	WeaviateAPIKey string `yaml:"weaviateApiKey"`

	// IndexClassName overrides the vehicle class name. Default: Vehicle
	IndexClassName string `yaml:"indexClassName"`

	// VectorDimensions is the embedding dimension the index was built
	// with. Checked against the embedder and the index at startup.
	// Default: 1536
	VectorDimensions int `yaml:"vectorDimensions" validate:"omitempty,min=1"`

	// LLMBackend selects the intent classifier: "openai" or "none".
	// Default: "none" (lexicon-only intent classification).
	LLMBackend string `yaml:"llmBackend" validate:"omitempty,oneof=openai none"`

	// EmbeddingModel names the embedding model. Default from the
	// embedding package.
	EmbeddingModel string `yaml:"embeddingModel"`

	// EmbeddingCacheSize is the LRU entry cap. Default: 1000
	EmbeddingCacheSize int `yaml:"embeddingCacheSize" validate:"omitempty,min=1"`

	// EmbeddingCacheTTL is how long cached vectors stay valid. Default: 1h
	EmbeddingCacheTTL time.Duration `yaml:"embeddingCacheTtl"`

	// SessionTimeout is the idle window before a session expires.
	// Default: 4h
	SessionTimeout time.Duration `yaml:"sessionTimeout"`

	// MaxMessagesPerSession bounds a session's history. Default: 100
	MaxMessagesPerSession int `yaml:"maxMessagesPerSession" validate:"omitempty,min=1"`

	// MinRelevance is the semantic score floor. Default: 0.50
	MinRelevance float64 `yaml:"minRelevance" validate:"omitempty,gt=0,lte=1"`

	// MaxResults caps top-k per search. Default: 100
	MaxResults int `yaml:"maxResults" validate:"omitempty,min=1,max=100"`

	// ConceptOverridesPath points at a YAML file replacing the built-in
	// qualitative term table. Watched for changes when set.
	ConceptOverridesPath string `yaml:"conceptOverridesPath"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:                  12310,
		GinMode:               "release",
		EnableMetrics:         true,
		RequestTimeout:        3 * time.Second,
		VectorDimensions:      1536,
		LLMBackend:            "none",
		EmbeddingCacheSize:    1000,
		EmbeddingCacheTTL:     time.Hour,
		SessionTimeout:        4 * time.Hour,
		MaxMessagesPerSession: 100,
		MinRelevance:          0.50,
		MaxResults:            100,
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Unmarshal over the defaults so omitted keys keep them.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints without applying defaults.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.GinMode == "" {
		cfg.GinMode = def.GinMode
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.VectorDimensions <= 0 {
		cfg.VectorDimensions = def.VectorDimensions
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = def.LLMBackend
	}
	if cfg.EmbeddingCacheSize <= 0 {
		cfg.EmbeddingCacheSize = def.EmbeddingCacheSize
	}
	if cfg.EmbeddingCacheTTL <= 0 {
		cfg.EmbeddingCacheTTL = def.EmbeddingCacheTTL
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = def.SessionTimeout
	}
	if cfg.MaxMessagesPerSession <= 0 {
		cfg.MaxMessagesPerSession = def.MaxMessagesPerSession
	}
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = def.MinRelevance
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	return cfg
}

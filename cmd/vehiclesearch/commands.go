// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mollie-ward/vehiclesearch/services/guardrail"
	"github.com/mollie-ward/vehiclesearch/services/llm"
	"github.com/mollie-ward/vehiclesearch/services/searchd"
	"github.com/mollie-ward/vehiclesearch/services/searchd/composer"
	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/mapping"
	"github.com/mollie-ward/vehiclesearch/services/searchd/understanding"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "vehiclesearch",
		Short: "Conversational vehicle search service",
		Long: `vehiclesearch turns natural-language vehicle queries into
structured index searches: guardrail, intent understanding, constraint
mapping, session-aware refinement, hybrid retrieval, and ranking.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Run:   runServe,
	}

	queryCmd = &cobra.Command{
		Use:   "query [utterance]",
		Short: "Parse and compose one utterance offline, printing the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		Run:   runQuery,
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file (optional)")
	rootCmd.AddCommand(serveCmd, queryCmd)
}

// runServe builds the configuration from file plus environment and
// blocks serving HTTP.
func runServe(cmd *cobra.Command, args []string) {
	cfg := searchd.DefaultConfig()
	if configPath != "" {
		loaded, err := searchd.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Environment overrides file settings, matching container wiring.
	cfg.Port = getEnvInt("SEARCHD_PORT", cfg.Port)
	cfg.WeaviateURL = strings.Trim(
		getEnvString("WEAVIATE_SERVICE_URL", cfg.WeaviateURL), "\"' ")
	cfg.WeaviateAPIKey = getEnvString("WEAVIATE_API_KEY", cfg.WeaviateAPIKey)
	cfg.LLMBackend = getEnvString("LLM_BACKEND_TYPE", cfg.LLMBackend)
	cfg.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)

	svc, err := searchd.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// runQuery runs the offline pipeline over one utterance: guardrail,
// parse, map, compose. No index, embedder, or LLM is contacted.
func runQuery(cmd *cobra.Command, args []string) {
	utterance := strings.Join(args, " ")

	engine, err := guardrail.NewEngine()
	if err != nil {
		log.Fatalf("Failed to initialize guardrail: %v", err)
	}
	decision := engine.Evaluate(utterance)
	if decision.Blocked() {
		fmt.Fprintf(os.Stderr, "Blocked (%s): %s\n", decision.Category, decision.Message)
		os.Exit(1)
	}

	conceptMapper := concepts.NewMapper()
	parser := understanding.NewParser(llm.NewNoopClassifier(), conceptMapper)
	parsed := parser.Parse(cmd.Context(), decision.Sanitized, "")

	mapped := mapping.NewMapper(conceptMapper).Map(parsed)
	composed := composer.NewComposer().Compose(mapped)

	out, err := json.MarshalIndent(map[string]any{
		"parsedQuery":   parsed,
		"mappedQuery":   mapped,
		"composedQuery": composed,
	}, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}

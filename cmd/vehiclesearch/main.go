// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vehiclesearch starts the conversational vehicle search
// service or runs one-shot pipeline commands.
//
// # Environment Variables
//
//   - SEARCHD_PORT: HTTP server port (default: 12310)
//   - WEAVIATE_SERVICE_URL: Vehicle index URL (optional; empty runs
//     lightweight mode without search)
//   - WEAVIATE_API_KEY: Index API key (optional)
//   - OPENAI_API_KEY: Embedding and classifier credential
//   - LLM_BACKEND_TYPE: Intent classifier - openai or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Serve with a config file
//	vehiclesearch serve --config config.yaml
//
//	# Parse and compose one utterance offline
//	vehiclesearch query "reliable family car under 15000"
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", value)
	}
	return defaultValue
}

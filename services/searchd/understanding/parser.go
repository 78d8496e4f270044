// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package understanding

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mollie-ward/vehiclesearch/services/llm"
	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// Parser composes intent classification and entity extraction into a
// ParsedQuery. It is the single entry point into the understanding
// stage; handlers and the refiner both go through it.
type Parser struct {
	intents   *IntentClassifier
	extractor *Extractor
}

// NewParser builds the understanding stage over the optional LLM
// capability and the shared concept mapper.
func NewParser(classifier llm.IntentClassifier, conceptMapper *concepts.Mapper) *Parser {
	return &Parser{
		intents:   NewIntentClassifier(classifier),
		extractor: NewExtractor(conceptMapper),
	}
}

// Parse analyses one utterance in the context of the previous one.
//
// # Outputs
//
//   - *datatypes.ParsedQuery: Intent, confidence, extracted entities,
//     and metadata hints ("hasOrOperator" when values are joined by or).
func (p *Parser) Parse(ctx context.Context, utterance, previous string) *datatypes.ParsedQuery {
	intent, confidence := p.intents.Classify(ctx, utterance, previous)
	entities := p.extractor.Extract(utterance)

	metadata := make(map[string]string)
	if HasOrOperator(utterance) {
		metadata["hasOrOperator"] = "true"
	}

	slog.Debug("Parsed utterance",
		"intent", intent,
		"confidence", confidence,
		"entities", len(entities),
	)

	return &datatypes.ParsedQuery{
		Utterance:        strings.TrimSpace(utterance),
		Intent:           intent,
		IntentConfidence: confidence,
		Entities:         entities,
		Metadata:         metadata,
	}
}

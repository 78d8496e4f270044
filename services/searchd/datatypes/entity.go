// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Extracted Entities
// =============================================================================

// EntityType identifies the kind of value extracted from an utterance.
type EntityType string

const (
	EntityMake            EntityType = "make"
	EntityModel           EntityType = "model"
	EntityDerivative      EntityType = "derivative"
	EntityPrice           EntityType = "price"
	EntityPriceRange      EntityType = "price_range"
	EntityMileage         EntityType = "mileage"
	EntityEngineSize      EntityType = "engine_size"
	EntityFuelType        EntityType = "fuel_type"
	EntityTransmission    EntityType = "transmission"
	EntityBodyType        EntityType = "body_type"
	EntityColour          EntityType = "colour"
	EntityFeature         EntityType = "feature"
	EntityLocation        EntityType = "location"
	EntityYear            EntityType = "year"
	EntityQualitativeTerm EntityType = "qualitative_term"
)

// ExtractedEntity is a typed value pulled out of free text.
//
// # Description
//
// Entities are pure values: the extractor creates them and nothing
// downstream mutates them. Offsets refer to byte positions in the
// original utterance and are used for overlap resolution.
//
// # Fields
//
//   - Type: The entity kind.
//   - Raw: The matched text exactly as it appeared.
//   - Value: The canonical value ("BMW" for "beamer").
//   - NumericValue: Parsed number for price/mileage/engine size/year.
//   - NumericValueHigh: Upper bound for range entities (price_range).
//   - DateValue: Parsed date where applicable.
//   - Confidence: Extraction confidence in [0, 1].
//   - Start, End: Byte offsets of Raw in the utterance.
type ExtractedEntity struct {
	Type             EntityType `json:"type"`
	Raw              string     `json:"raw"`
	Value            string     `json:"value"`
	NumericValue     float64    `json:"numericValue,omitempty"`
	NumericValueHigh float64    `json:"numericValueHigh,omitempty"`
	DateValue        *time.Time `json:"dateValue,omitempty"`
	Confidence       float64    `json:"confidence"`
	Start            int        `json:"start"`
	End              int        `json:"end"`
}

// Overlaps reports whether two entities cover intersecting character spans.
func (e ExtractedEntity) Overlaps(other ExtractedEntity) bool {
	return e.Start < other.End && other.Start < e.End
}

// =============================================================================
// Intent
// =============================================================================

// Intent is the classified purpose of an utterance.
type Intent string

const (
	IntentSearch      Intent = "search"
	IntentRefine      Intent = "refine"
	IntentCompare     Intent = "compare"
	IntentInformation Intent = "information"
	IntentOffTopic    Intent = "off_topic"
)

// ValidIntent reports whether s names one of the five intents.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentSearch, IntentRefine, IntentCompare, IntentInformation, IntentOffTopic:
		return true
	}
	return false
}

// ParsedQuery is the output of the understanding stage: the classified
// intent plus every entity extracted from the utterance.
type ParsedQuery struct {
	Utterance        string            `json:"utterance"`
	Intent           Intent            `json:"intent"`
	IntentConfidence float64           `json:"intentConfidence"`
	Entities         []ExtractedEntity `json:"entities"`
	// Metadata carries extractor hints consumed downstream, for example
	// "hasOrOperator" set when the utterance joins values with "or".
	Metadata map[string]string `json:"metadata,omitempty"`
}

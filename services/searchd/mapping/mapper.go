// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mapping turns extracted entities into search constraints:
// entity to field via a closed table, operator inference from the words
// surrounding the entity, and qualitative expansion through the concept
// mapper.
package mapping

import (
	"log/slog"
	"strings"
	"time"

	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// contextWindow is how far back from an entity the operator-inference
// scan looks, in bytes.
const contextWindow = 24

// aroundSpread is the relative half-width applied when "around X" turns
// into a Between constraint.
const aroundSpread = 0.10

// operatorKeywords maps context phrases to operators, checked longest
// phrase first so "less than" wins over "less".
var operatorKeywords = []struct {
	phrase string
	op     datatypes.Operator
	spread bool // widen to Between +/- aroundSpread
}{
	{"less than", datatypes.OpLt, false},
	{"fewer than", datatypes.OpLt, false},
	{"older than", datatypes.OpLt, false},
	{"newer than", datatypes.OpGt, false},
	{"no more than", datatypes.OpLe, false},
	{"more than", datatypes.OpGt, false},
	{"greater than", datatypes.OpGt, false},
	{"at least", datatypes.OpGe, false},
	{"at most", datatypes.OpLe, false},
	{"up to", datatypes.OpLe, false},
	{"approximately", datatypes.OpBetween, true},
	{"roughly", datatypes.OpBetween, true},
	{"around", datatypes.OpBetween, true},
	{"about", datatypes.OpBetween, true},
	{"between", datatypes.OpBetween, false},
	{"under", datatypes.OpLe, false},
	{"below", datatypes.OpLe, false},
	{"over", datatypes.OpGe, false},
	{"above", datatypes.OpGe, false},
	{"minimum", datatypes.OpGe, false},
	{"maximum", datatypes.OpLe, false},
	{"exactly", datatypes.OpEq, false},
	{"before", datatypes.OpLt, false},
	{"after", datatypes.OpGt, false},
	{"since", datatypes.OpGe, false},
	{"max", datatypes.OpLe, false},
	{"from", datatypes.OpGe, false},
}

// Mapper converts a ParsedQuery into a MappedQuery.
//
// # Thread Safety
//
// Safe for concurrent use; the only state is the shared concept mapper,
// which synchronizes internally.
type Mapper struct {
	concepts *concepts.Mapper
}

// NewMapper builds the constraint mapper over the shared concept table.
func NewMapper(conceptMapper *concepts.Mapper) *Mapper {
	return &Mapper{concepts: conceptMapper}
}

// Map turns each entity into zero or more constraints.
//
// # Description
//
// Every entity goes through the closed entity-to-field table. Numeric
// entities get their operator inferred from the utterance window before
// the entity; qualitative terms expand through the concept table into
// weighted semantic constraints. Entities that map to nothing land in
// UnmappableTerms rather than being dropped silently.
func (m *Mapper) Map(parsed *datatypes.ParsedQuery) *datatypes.MappedQuery {
	out := &datatypes.MappedQuery{
		Metadata: copyMetadata(parsed.Metadata),
	}

	for _, e := range parsed.Entities {
		constraints, ok := m.mapEntity(parsed.Utterance, e)
		if !ok {
			out.UnmappableTerms = append(out.UnmappableTerms, e.Raw)
			continue
		}
		out.Constraints = append(out.Constraints, constraints...)
	}

	slog.Debug("Mapped query",
		"constraints", len(out.Constraints),
		"unmappable", len(out.UnmappableTerms),
	)
	return out
}

func (m *Mapper) mapEntity(utterance string, e datatypes.ExtractedEntity) ([]datatypes.SearchConstraint, bool) {
	switch e.Type {
	case datatypes.EntityMake:
		return single(exact(datatypes.FieldMake, datatypes.OpEq, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityModel:
		// Contains tolerates "320d" against "3 Series 320d".
		return single(exact(datatypes.FieldModel, datatypes.OpContains, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityDerivative:
		return single(exact(datatypes.FieldDerivative, datatypes.OpContains, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityFuelType:
		return single(exact(datatypes.FieldFuelType, datatypes.OpEq, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityTransmission:
		return single(exact(datatypes.FieldTransmission, datatypes.OpEq, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityBodyType:
		return single(exact(datatypes.FieldBodyType, datatypes.OpEq, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityColour:
		return single(exact(datatypes.FieldColour, datatypes.OpEq, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityLocation:
		return single(exact(datatypes.FieldSaleLocation, datatypes.OpEq, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityFeature:
		return single(exact(datatypes.FieldFeatures, datatypes.OpContains, datatypes.StringValue(e.Value), e.Confidence))

	case datatypes.EntityPrice:
		return single(m.numeric(datatypes.FieldPrice, utterance, e))

	case datatypes.EntityMileage:
		return single(m.mileage(utterance, e))

	case datatypes.EntityEngineSize:
		return single(m.numeric(datatypes.FieldEngineSize, utterance, e))

	case datatypes.EntityPriceRange:
		if e.NumericValue <= 0 || e.NumericValueHigh <= e.NumericValue {
			return nil, false
		}
		return single(datatypes.SearchConstraint{
			FieldName:  datatypes.FieldPrice,
			Operator:   datatypes.OpBetween,
			Value:      datatypes.PairValue(e.NumericValue, e.NumericValueHigh),
			Kind:       datatypes.KindRange,
			Confidence: e.Confidence,
		})

	case datatypes.EntityYear:
		return single(m.year(utterance, e))

	case datatypes.EntityQualitativeTerm:
		expanded := m.concepts.Expand(e.Value, e.Confidence)
		if len(expanded) == 0 {
			return nil, false
		}
		return expanded, true
	}
	return nil, false
}

// numeric builds a range constraint with the inferred operator.
func (m *Mapper) numeric(field, utterance string, e datatypes.ExtractedEntity) datatypes.SearchConstraint {
	if e.NumericValue <= 0 {
		return datatypes.SearchConstraint{} // caught by caller via zero FieldName
	}
	if e.NumericValueHigh > e.NumericValue {
		return datatypes.SearchConstraint{
			FieldName:  field,
			Operator:   datatypes.OpBetween,
			Value:      datatypes.PairValue(e.NumericValue, e.NumericValueHigh),
			Kind:       datatypes.KindRange,
			Confidence: e.Confidence,
		}
	}

	op, spread := inferOperator(utterance, e.Start, e.End, datatypes.OpEq)
	if spread {
		return datatypes.SearchConstraint{
			FieldName:  field,
			Operator:   datatypes.OpBetween,
			Value:      datatypes.PairValue(e.NumericValue*(1-aroundSpread), e.NumericValue*(1+aroundSpread)),
			Kind:       datatypes.KindRange,
			Confidence: e.Confidence,
		}
	}
	kind := datatypes.KindRange
	if op == datatypes.OpEq {
		kind = datatypes.KindExact
	}
	return datatypes.SearchConstraint{
		FieldName:  field,
		Operator:   op,
		Value:      datatypes.NumberValue(e.NumericValue),
		Kind:       kind,
		Confidence: e.Confidence,
	}
}

// mileage is numeric plus the "low mileage" marker, which always means
// an upper bound.
func (m *Mapper) mileage(utterance string, e datatypes.ExtractedEntity) datatypes.SearchConstraint {
	if strings.Contains(strings.ToLower(e.Raw), "low") {
		return datatypes.SearchConstraint{
			FieldName:  datatypes.FieldMileage,
			Operator:   datatypes.OpLe,
			Value:      datatypes.NumberValue(e.NumericValue),
			Kind:       datatypes.KindRange,
			Confidence: e.Confidence,
		}
	}
	return m.numeric(datatypes.FieldMileage, utterance, e)
}

// year maps onto registrationDate. The default is Ge (a year mentioned
// alone means "that year or newer"); explicit upper-bound keywords flip
// it to the end of the year.
func (m *Mapper) year(utterance string, e datatypes.ExtractedEntity) datatypes.SearchConstraint {
	year := int(e.NumericValue)
	op, _ := inferOperator(utterance, e.Start, e.End, datatypes.OpGe)

	var value datatypes.ConstraintValue
	switch op {
	case datatypes.OpLe:
		value = datatypes.DateValue(time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC))
	case datatypes.OpLt:
		// "older than 2015" means registered before the year started.
		value = datatypes.DateValue(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
	case datatypes.OpGt:
		// "newer than 2015" means registered after the year ended.
		value = datatypes.DateValue(time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC))
	case datatypes.OpEq:
		// "exactly 2020" still wants the whole year, so widen to Between
		// is not expressible on dates; keep Ge from the year start and
		// let ranking sort it.
		op = datatypes.OpGe
		value = datatypes.DateValue(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
	default:
		op = datatypes.OpGe
		value = datatypes.DateValue(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
	}

	return datatypes.SearchConstraint{
		FieldName:  datatypes.FieldRegistrationDate,
		Operator:   op,
		Value:      value,
		Kind:       datatypes.KindRange,
		Confidence: e.Confidence,
	}
}

// inferOperator scans the utterance around the entity for an operator
// keyword. The window covers contextWindow bytes before the entity plus
// the entity span itself, because some extraction layers fold the
// keyword into the matched span ("under 15k"). Returns the default when
// nothing matches.
func inferOperator(utterance string, start, end int, def datatypes.Operator) (datatypes.Operator, bool) {
	from := start - contextWindow
	if from < 0 {
		from = 0
	}
	if end > len(utterance) {
		end = len(utterance)
	}
	if from > end {
		from = end
	}
	window := strings.ToLower(utterance[from:end])

	for _, kw := range operatorKeywords {
		if strings.Contains(window, kw.phrase) {
			return kw.op, kw.spread
		}
	}
	return def, false
}

func exact(field string, op datatypes.Operator, value datatypes.ConstraintValue, confidence float64) datatypes.SearchConstraint {
	return datatypes.SearchConstraint{
		FieldName:  field,
		Operator:   op,
		Value:      value,
		Kind:       datatypes.KindExact,
		Confidence: confidence,
	}
}

// single wraps one constraint, reporting failure on a zero value.
func single(c datatypes.SearchConstraint) ([]datatypes.SearchConstraint, bool) {
	if c.FieldName == "" {
		return nil, false
	}
	return []datatypes.SearchConstraint{c}, true
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package concepts maps qualitative search terms ("reliable", "sporty")
// onto weighted vehicle-attribute targets and scores vehicles against
// them. The built-in table can be overridden from a YAML file, with hot
// reload via fsnotify.
package concepts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// =============================================================================
// Concept Table Types
// =============================================================================

// Comparison selects how an attribute's actual value is scored against
// its target.
type Comparison string

const (
	CompareLess           Comparison = "less"
	CompareGreater        Comparison = "greater"
	CompareLessOrEqual    Comparison = "lessOrEqual"
	CompareGreaterOrEqual Comparison = "greaterOrEqual"
	CompareEquals         Comparison = "equals"
	CompareIn             Comparison = "in"
	CompareContains       Comparison = "contains"
	CompareContainsAny    Comparison = "containsAny"
)

// ValidComparison reports whether c is one of the supported comparisons.
func ValidComparison(c Comparison) bool {
	switch c {
	case CompareLess, CompareGreater, CompareLessOrEqual, CompareGreaterOrEqual,
		CompareEquals, CompareIn, CompareContains, CompareContainsAny:
		return true
	}
	return false
}

// AttributeWeight is one weighted attribute target within a concept.
//
// Exactly one of the target fields is set, matched to the comparison:
// Number for the numeric comparisons, Bool for boolean equals, String
// for string equals/contains, Strings for in/containsAny, and
// DaysFromNow for date fields where the target is relative to today.
type AttributeWeight struct {
	Attribute  string     `yaml:"attribute"`
	Weight     float64    `yaml:"weight"`
	Comparison Comparison `yaml:"comparison"`

	Number      *float64 `yaml:"number,omitempty"`
	Bool        *bool    `yaml:"bool,omitempty"`
	String      string   `yaml:"string,omitempty"`
	Strings     []string `yaml:"strings,omitempty"`
	DaysFromNow *int     `yaml:"daysFromNow,omitempty"`
}

// Concept is one qualitative term's full definition.
type Concept struct {
	Name            string   `yaml:"name"`
	Aliases         []string `yaml:"aliases,omitempty"`
	CanonicalPhrase string   `yaml:"canonicalPhrase"`
	// Attributes carry weights summing to 1.
	Attributes         []AttributeWeight `yaml:"attributes"`
	PositiveIndicators []string          `yaml:"positiveIndicators,omitempty"`
	NegativeIndicators []string          `yaml:"negativeIndicators,omitempty"`
}

// Validate checks the weight-sum and comparison invariants.
func (c *Concept) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("concept has no name")
	}
	if len(c.Attributes) == 0 {
		return fmt.Errorf("concept %q has no attributes", c.Name)
	}
	sum := 0.0
	for _, a := range c.Attributes {
		if !ValidComparison(a.Comparison) {
			return fmt.Errorf("concept %q attribute %q: unknown comparison %q",
				c.Name, a.Attribute, a.Comparison)
		}
		if a.Weight < 0 || a.Weight > 1 {
			return fmt.Errorf("concept %q attribute %q: weight %f out of range",
				c.Name, a.Attribute, a.Weight)
		}
		sum += a.Weight
	}
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("concept %q attribute weights sum to %f, want 1", c.Name, sum)
	}
	return nil
}

// =============================================================================
// Mapper
// =============================================================================

// Mapper resolves qualitative terms to concepts and scores vehicles
// against them.
//
// # Thread Safety
//
// Safe for concurrent use. The table is swapped atomically under a
// read-write mutex so hot reloads never tear an in-flight lookup.
type Mapper struct {
	mu      sync.RWMutex
	byTerm  map[string]*Concept // lowercased name and aliases
	ordered []*Concept

	// now is swapped out in tests to pin date-relative targets.
	now func() time.Time
}

// NewMapper builds a mapper over the built-in concept table.
func NewMapper() *Mapper {
	m := &Mapper{now: time.Now}
	m.Replace(builtinConcepts())
	return m
}

// Replace swaps the whole concept table. Invalid concepts are the
// caller's problem; Replace assumes the table was validated on load.
func (m *Mapper) Replace(table []Concept) {
	byTerm := make(map[string]*Concept, len(table)*2)
	ordered := make([]*Concept, 0, len(table))
	for i := range table {
		c := &table[i]
		ordered = append(ordered, c)
		byTerm[strings.ToLower(c.Name)] = c
		for _, alias := range c.Aliases {
			byTerm[strings.ToLower(alias)] = c
		}
	}
	m.mu.Lock()
	m.byTerm = byTerm
	m.ordered = ordered
	m.mu.Unlock()
}

// Lookup resolves a qualitative term (or one of its aliases) to its
// concept. The term is matched lowercased and trimmed.
func (m *Mapper) Lookup(term string) (Concept, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byTerm[strings.ToLower(strings.TrimSpace(term))]
	if !ok {
		return Concept{}, false
	}
	return *c, true
}

// Concepts returns a copy of every known concept, in table order.
func (m *Mapper) Concepts() []Concept {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Concept, len(m.ordered))
	for i, c := range m.ordered {
		out[i] = *c
	}
	return out
}

// Terms returns every recognized qualitative term, names and aliases
// alike, lowercased. The entity extractor builds its qualitative-term
// lexicon from this so the two stay in sync across hot reloads.
func (m *Mapper) Terms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byTerm))
	for term := range m.byTerm {
		out = append(out, term)
	}
	return out
}

// CanonicalPhrase returns the enrichment phrase for a recognized term,
// used by the semantic executor to sharpen the embedded query text.
func (m *Mapper) CanonicalPhrase(term string) (string, bool) {
	c, ok := m.Lookup(term)
	if !ok {
		return "", false
	}
	return c.CanonicalPhrase, true
}

// Expand converts a recognized qualitative term into weighted semantic
// constraints, one per concept attribute. Unrecognized terms return nil.
func (m *Mapper) Expand(term string, confidence float64) []datatypes.SearchConstraint {
	c, ok := m.Lookup(term)
	if !ok {
		return nil
	}
	out := make([]datatypes.SearchConstraint, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		out = append(out, datatypes.SearchConstraint{
			FieldName:  a.Attribute,
			Operator:   comparisonOperator(a.Comparison),
			Value:      targetConstraintValue(a),
			Kind:       datatypes.KindSemantic,
			SourceTerm: term,
			Weight:     a.Weight,
			Confidence: confidence,
		})
	}
	return out
}

func comparisonOperator(c Comparison) datatypes.Operator {
	switch c {
	case CompareLess:
		return datatypes.OpLt
	case CompareGreater:
		return datatypes.OpGt
	case CompareLessOrEqual:
		return datatypes.OpLe
	case CompareGreaterOrEqual:
		return datatypes.OpGe
	case CompareIn, CompareContainsAny:
		return datatypes.OpIn
	case CompareContains:
		return datatypes.OpContains
	default:
		return datatypes.OpEq
	}
}

func targetConstraintValue(a AttributeWeight) datatypes.ConstraintValue {
	switch {
	case a.Number != nil:
		return datatypes.NumberValue(*a.Number)
	case a.Bool != nil:
		return datatypes.BoolValue(*a.Bool)
	case len(a.Strings) > 0:
		return datatypes.SetValue(a.Strings...)
	case a.DaysFromNow != nil:
		return datatypes.NumberValue(float64(*a.DaysFromNow))
	default:
		return datatypes.StringValue(a.String)
	}
}

// =============================================================================
// Built-in Table
// =============================================================================

func fptr(f float64) *float64 { return &f }
func bptr(b bool) *bool       { return &b }
func iptr(i int) *int         { return &i }

// builtinConcepts is the default qualitative-term table. Weights within
// each concept sum to 1.
func builtinConcepts() []Concept {
	return []Concept{
		{
			Name:            "reliable",
			Aliases:         []string{"dependable", "trustworthy", "wont let me down"},
			CanonicalPhrase: "reliable dependable well maintained full service history",
			Attributes: []AttributeWeight{
				{Attribute: datatypes.FieldMileage, Weight: 0.3, Comparison: CompareLess, Number: fptr(60000)},
				{Attribute: datatypes.FieldServiceHistory, Weight: 0.3, Comparison: CompareEquals, Bool: bptr(true)},
				{Attribute: datatypes.FieldPreviousOwners, Weight: 0.2, Comparison: CompareLessOrEqual, Number: fptr(2)},
				{Attribute: datatypes.FieldMOTExpiryDate, Weight: 0.2, Comparison: CompareGreaterOrEqual, DaysFromNow: iptr(90)},
			},
			PositiveIndicators: []string{
				"full service history", "well maintained", "excellent condition",
				"one owner", "main dealer history",
			},
			NegativeIndicators: []string{
				"spares or repairs", "non runner", "engine warning",
				"head gasket", "not starting",
			},
		},
		{
			Name:            "economical",
			Aliases:         []string{"fuel efficient", "cheap to run", "good on fuel", "efficient"},
			CanonicalPhrase: "economical fuel efficient low running costs",
			Attributes: []AttributeWeight{
				{Attribute: datatypes.FieldFuelType, Weight: 0.4, Comparison: CompareIn, Strings: []string{"Electric", "Hybrid", "Petrol"}},
				{Attribute: datatypes.FieldEngineSize, Weight: 0.3, Comparison: CompareLess, Number: fptr(2.0)},
				{Attribute: datatypes.FieldPrice, Weight: 0.3, Comparison: CompareLess, Number: fptr(20000)},
			},
			PositiveIndicators: []string{
				"low running costs", "fuel efficient", "cheap to run", "low tax", "great mpg",
			},
			NegativeIndicators: []string{"thirsty", "high running costs"},
		},
		{
			Name:            "family car",
			Aliases:         []string{"family", "family friendly", "for the kids"},
			CanonicalPhrase: "spacious family car with room for child seats",
			Attributes: []AttributeWeight{
				{Attribute: datatypes.FieldBodyType, Weight: 0.35, Comparison: CompareIn, Strings: []string{"Estate", "SUV", "MPV", "Hatchback"}},
				{Attribute: datatypes.FieldNumberOfDoors, Weight: 0.25, Comparison: CompareGreaterOrEqual, Number: fptr(4)},
				{Attribute: datatypes.FieldFeatures, Weight: 0.2, Comparison: CompareContainsAny, Strings: []string{"isofix", "parking sensors", "rear camera"}},
				{Attribute: datatypes.FieldEngineSize, Weight: 0.2, Comparison: CompareLessOrEqual, Number: fptr(2.5)},
			},
			PositiveIndicators: []string{"family", "spacious", "roomy", "huge boot"},
			NegativeIndicators: []string{"two seater", "track car"},
		},
		{
			Name:            "sporty",
			Aliases:         []string{"fast", "quick", "performance"},
			CanonicalPhrase: "sporty performance car with responsive handling",
			Attributes: []AttributeWeight{
				{Attribute: datatypes.FieldBodyType, Weight: 0.3, Comparison: CompareIn, Strings: []string{"Coupe", "Convertible", "Hatchback"}},
				{Attribute: datatypes.FieldEngineSize, Weight: 0.3, Comparison: CompareGreater, Number: fptr(2.0)},
				{Attribute: datatypes.FieldTransmission, Weight: 0.2, Comparison: CompareEquals, String: "Manual"},
				{Attribute: datatypes.FieldFeatures, Weight: 0.2, Comparison: CompareContainsAny, Strings: []string{"sports seats", "spoiler", "paddle shift"}},
			},
			PositiveIndicators: []string{"sport", "performance", "turbo", "fast"},
			NegativeIndicators: []string{"economy", "eco mode only"},
		},
		{
			Name:            "luxury",
			Aliases:         []string{"luxurious", "premium", "high end", "executive"},
			CanonicalPhrase: "luxury premium vehicle with high-end trim and comfort",
			Attributes: []AttributeWeight{
				{Attribute: datatypes.FieldMake, Weight: 0.4, Comparison: CompareIn, Strings: []string{"Mercedes-Benz", "BMW", "Audi", "Jaguar", "Land Rover", "Porsche", "Lexus"}},
				{Attribute: datatypes.FieldPrice, Weight: 0.3, Comparison: CompareGreater, Number: fptr(30000)},
				{Attribute: datatypes.FieldFeatures, Weight: 0.3, Comparison: CompareContainsAny, Strings: []string{"leather", "heated seats", "panoramic roof", "premium sound"}},
			},
			PositiveIndicators: []string{"luxury", "premium", "immaculate", "top of the range"},
			NegativeIndicators: []string{"base model", "basic spec"},
		},
		{
			Name:            "practical",
			Aliases:         []string{"versatile", "spacious", "roomy"},
			CanonicalPhrase: "practical versatile car with flexible load space",
			Attributes: []AttributeWeight{
				{Attribute: datatypes.FieldBodyType, Weight: 0.4, Comparison: CompareIn, Strings: []string{"Estate", "SUV", "MPV", "Hatchback"}},
				{Attribute: datatypes.FieldNumberOfDoors, Weight: 0.3, Comparison: CompareGreaterOrEqual, Number: fptr(4)},
				{Attribute: datatypes.FieldFeatures, Weight: 0.3, Comparison: CompareContainsAny, Strings: []string{"roof rails", "folding seats", "parking sensors"}},
			},
			PositiveIndicators: []string{"practical", "spacious", "versatile"},
			NegativeIndicators: []string{"cramped"},
		},
	}
}

// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Operators and Kinds
// =============================================================================

// Operator is a comparison operator attached to a constraint.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGe       Operator = "ge"
	OpLt       Operator = "lt"
	OpLe       Operator = "le"
	OpBetween  Operator = "between"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// ConstraintKind classifies how a constraint is enforced.
//
//   - Exact and Range constraints are enforceable by the index as filters.
//   - Semantic constraints are evaluated over description embeddings and
//     concept attribute weights.
//   - Composite constraints wrap a group of child constraints.
type ConstraintKind string

const (
	KindExact     ConstraintKind = "exact"
	KindRange     ConstraintKind = "range"
	KindSemantic  ConstraintKind = "semantic"
	KindComposite ConstraintKind = "composite"
)

// =============================================================================
// Constraint Values (tagged variant)
// =============================================================================

// ValueTag discriminates the shape of a ConstraintValue.
type ValueTag string

const (
	ValueScalar ValueTag = "scalar"
	ValuePair   ValueTag = "pair"
	ValueSet    ValueTag = "set"
)

// ConstraintValue is a tagged variant over {scalar, pair, set}.
//
// # Description
//
// The source of a constraint decides the shape: Between carries a pair,
// In carries a set, everything else a scalar. The composer and the filter
// translator dispatch on Tag rather than reflecting on dynamic types.
//
// Scalars may be strings, numbers, booleans, or dates; the concrete slot
// that is non-zero determines the scalar type.
type ConstraintValue struct {
	Tag ValueTag `json:"tag"`

	Str  string     `json:"str,omitempty"`
	Num  float64    `json:"num,omitempty"`
	Bool bool       `json:"bool,omitempty"`
	Date *time.Time `json:"date,omitempty"`

	// Low/High are set when Tag == ValuePair.
	Low  float64 `json:"low,omitempty"`
	High float64 `json:"high,omitempty"`

	// Set is populated when Tag == ValueSet.
	Set []string `json:"set,omitempty"`

	// IsNum marks a numeric scalar so a legitimate 0 is distinguishable
	// from an unset slot.
	IsNum  bool `json:"isNum,omitempty"`
	IsBool bool `json:"isBool,omitempty"`
}

// StringValue builds a scalar string value.
func StringValue(s string) ConstraintValue {
	return ConstraintValue{Tag: ValueScalar, Str: s}
}

// NumberValue builds a scalar numeric value.
func NumberValue(n float64) ConstraintValue {
	return ConstraintValue{Tag: ValueScalar, Num: n, IsNum: true}
}

// BoolValue builds a scalar boolean value.
func BoolValue(b bool) ConstraintValue {
	return ConstraintValue{Tag: ValueScalar, Bool: b, IsBool: true}
}

// DateValue builds a scalar date value.
func DateValue(t time.Time) ConstraintValue {
	return ConstraintValue{Tag: ValueScalar, Date: &t}
}

// PairValue builds a two-ended range value for Between.
func PairValue(low, high float64) ConstraintValue {
	return ConstraintValue{Tag: ValuePair, Low: low, High: high}
}

// SetValue builds a set value for In.
func SetValue(members ...string) ConstraintValue {
	return ConstraintValue{Tag: ValueSet, Set: members}
}

// String renders the value for logs and warnings.
func (v ConstraintValue) String() string {
	switch v.Tag {
	case ValuePair:
		return fmt.Sprintf("[%g, %g]", v.Low, v.High)
	case ValueSet:
		return "{" + strings.Join(v.Set, ", ") + "}"
	default:
		switch {
		case v.Date != nil:
			return v.Date.Format("2006-01-02")
		case v.IsNum:
			return fmt.Sprintf("%g", v.Num)
		case v.IsBool:
			return fmt.Sprintf("%t", v.Bool)
		default:
			return v.Str
		}
	}
}

// =============================================================================
// SearchConstraint
// =============================================================================

// SearchConstraint binds a field to an operator and value.
//
// # Invariants
//
//   - Operator is type-compatible with Value: Between requires a pair,
//     In requires a set, everything else a scalar. Validate enforces this.
type SearchConstraint struct {
	FieldName string          `json:"fieldName"`
	Operator  Operator        `json:"operator"`
	Value     ConstraintValue `json:"value"`
	Kind      ConstraintKind  `json:"kind"`

	// SourceTerm is the qualitative term that produced a semantic
	// constraint ("reliable"). Empty for exact/range constraints.
	SourceTerm string `json:"sourceTerm,omitempty"`
	// Weight applies to semantic constraints; exact/range leave it 0.
	Weight float64 `json:"weight,omitempty"`
	// Confidence inherited from the originating entity.
	Confidence float64 `json:"confidence,omitempty"`
}

// Validate checks the operator/value compatibility invariant.
// A violation here is an internal invariant violation, never user error:
// the mapper should be incapable of producing one.
func (c SearchConstraint) Validate() error {
	switch c.Operator {
	case OpBetween:
		if c.Value.Tag != ValuePair {
			return fmt.Errorf("%w: between on %q requires a pair value, got %s",
				ErrInvariantViolation, c.FieldName, c.Value.Tag)
		}
	case OpIn:
		if c.Value.Tag != ValueSet {
			return fmt.Errorf("%w: in on %q requires a set value, got %s",
				ErrInvariantViolation, c.FieldName, c.Value.Tag)
		}
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpContains:
		if c.Value.Tag != ValueScalar {
			return fmt.Errorf("%w: %s on %q requires a scalar value, got %s",
				ErrInvariantViolation, c.Operator, c.FieldName, c.Value.Tag)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q on %q",
			ErrInvariantViolation, c.Operator, c.FieldName)
	}
	return nil
}

// IsFilterable reports whether the constraint can be pushed down to the
// index as a filter. Semantic constraints are scored, not filtered.
func (c SearchConstraint) IsFilterable() bool {
	return c.Kind == KindExact || c.Kind == KindRange
}

// MappedQuery is the mapper's output: every constraint derived from the
// parsed entities, plus terms that could not be mapped to any field.
type MappedQuery struct {
	Constraints     []SearchConstraint `json:"constraints"`
	UnmappableTerms []string           `json:"unmappableTerms,omitempty"`
	Metadata        map[string]string  `json:"metadata,omitempty"`
}

// FilterableCount returns how many constraints are index-enforceable.
func (m MappedQuery) FilterableCount() int {
	n := 0
	for _, c := range m.Constraints {
		if c.IsFilterable() {
			n++
		}
	}
	return n
}

// SemanticCount returns how many constraints are semantic.
func (m MappedQuery) SemanticCount() int {
	n := 0
	for _, c := range m.Constraints {
		if c.Kind == KindSemantic {
			n++
		}
	}
	return n
}

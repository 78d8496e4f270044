// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrail

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Action is what the guardrail decided to do with an utterance.
type Action string

const (
	// ActionAllow lets the pipeline run unchanged.
	ActionAllow Action = "allow"
	// ActionWarn lets the pipeline run with a mutation applied to the
	// query (currently: a hard cap on result count).
	ActionWarn Action = "warn"
	// ActionBlock terminates the turn before any pipeline work.
	ActionBlock Action = "block"
)

// Category names the violation class behind a warn/block decision.
type Category string

const (
	CategoryNone           Category = ""
	CategoryOffTopic       Category = "off_topic"
	CategoryBulkExtraction Category = "bulk_extraction"
	CategoryPII            Category = "pii"
	CategoryInjection      Category = "injection"
	CategoryProfanity      Category = "profanity"
	CategoryRateLimit      Category = "rate_limit"
	CategoryInputInvalid   Category = "input_invalid"
)

// Decision is the guardrail verdict for one utterance.
//
// # Fields
//
//   - Action: Allow, Warn, or Block.
//   - Category: The violation class; empty on Allow.
//   - Message: User-facing text from the polite catalog. Never exposes
//     rule internals, thresholds, or pattern text.
//   - MaxResultsCap: Non-zero on Warn; the pipeline must cap top-k to it.
//   - Sanitized: The utterance with control characters stripped. The
//     pipeline operates on this, not the raw input.
type Decision struct {
	Action        Action   `json:"action"`
	Category      Category `json:"category,omitempty"`
	Message       string   `json:"message,omitempty"`
	MaxResultsCap int      `json:"maxResultsCap,omitempty"`
	Sanitized     string   `json:"-"`
}

// Blocked reports whether the decision terminates the turn.
func (d Decision) Blocked() bool { return d.Action == ActionBlock }

// =============================================================================
// Rule File Types
// =============================================================================

// RuleFile is the embedded YAML policy document.
type RuleFile struct {
	MaxInputLength int            `yaml:"max_input_length"`
	RuleSets       []RuleSet      `yaml:"rule_sets"`
	Topic          TopicLexicon   `yaml:"topic"`
	Messages       map[string]string `yaml:"messages"`
}

// RuleSet groups patterns under one violation category.
type RuleSet struct {
	Category Category `yaml:"category"`
	// Priority orders evaluation; highest first, first match wins.
	Priority int    `yaml:"priority"`
	Action   Action `yaml:"action"`
	Patterns []Rule `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Rule is one detection pattern within a set.
type Rule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`
}

// TopicLexicon holds the word lists for the off-topic check.
type TopicLexicon struct {
	VehicleLexemes  []string `yaml:"vehicle_lexemes"`
	OffTopicLexemes []string `yaml:"offtopic_lexemes"`
}

// parseRuleFile unmarshals and compiles the embedded policy document.
func parseRuleFile(raw []byte) (*RuleFile, error) {
	var file RuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded guardrail rules: %w", err)
	}
	if file.MaxInputLength <= 0 {
		file.MaxInputLength = 500
	}
	for i := range file.RuleSets {
		set := &file.RuleSets[i]
		for _, p := range set.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile guardrail pattern %s: %w", p.ID, err)
			}
			set.compiled = append(set.compiled, re)
		}
	}
	// Highest priority evaluated first
	sort.Slice(file.RuleSets, func(i, j int) bool {
		return file.RuleSets[i].Priority > file.RuleSets[j].Priority
	})
	return &file, nil
}

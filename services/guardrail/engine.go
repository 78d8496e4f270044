// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guardrail rejects or sanitizes utterances before any pipeline
// work happens. It is the only component allowed to see raw user input.
package guardrail

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/mollie-ward/vehiclesearch/services/guardrail/enforcement"
)

// Engine evaluates utterances against the embedded rule sets and the
// per-session rate limiter.
//
// # Description
//
// Rules run in priority order with first-match-wins semantics:
// input length, injection, PII, profanity, bulk extraction, then the
// topic check. Rate limiting is a separate entry point (CheckRate)
// because middleware applies it before the body is even parsed.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Rule state is immutable after
// NewEngine; the rate limiter does its own locking.
type Engine struct {
	rules   *RuleFile
	limiter *RateLimiter

	vehicleLexemes  []string
	offTopicLexemes []string
}

// NewEngine compiles the embedded policy file and builds the rate limiter.
//
// # Outputs
//
//   - *Engine: Ready to evaluate utterances.
//   - error: Non-nil if the embedded YAML is malformed or a pattern does
//     not compile.
func NewEngine() (*Engine, error) {
	rules, err := parseRuleFile(enforcement.GuardrailPatterns)
	if err != nil {
		return nil, err
	}
	return &Engine{
		rules:           rules,
		limiter:         NewRateLimiter(DefaultRateLimits()),
		vehicleLexemes:  lowerAll(rules.Topic.VehicleLexemes),
		offTopicLexemes: lowerAll(rules.Topic.OffTopicLexemes),
	}, nil
}

// Evaluate runs every content rule against the utterance.
//
// # Description
//
// Applies rules in order, first match wins:
//
//  1. Length: inputs over the configured maximum are blocked.
//  2. Pattern sets by priority (injection, PII, profanity, extraction).
//  3. Topic: no vehicle lexeme AND an off-topic lexeme blocks as OffTopic.
//
// Control characters are stripped before matching; the sanitized text is
// returned in the decision and is what the pipeline must operate on.
//
// # Inputs
//
//   - utterance: Raw user input.
//
// # Outputs
//
//   - Decision: Allow, Warn (with result cap), or Block with category
//     and a user-facing message from the polite catalog.
func (e *Engine) Evaluate(utterance string) Decision {
	sanitized := stripControlChars(utterance)

	if len(sanitized) > e.rules.MaxInputLength {
		return e.block(CategoryInputInvalid, "input_invalid")
	}

	for _, set := range e.rules.RuleSets {
		for i, re := range set.compiled {
			if re.MatchString(sanitized) {
				slog.Warn("guardrail: pattern matched",
					"category", set.Category,
					"pattern_id", set.Patterns[i].ID,
				)
				if set.Action == ActionWarn {
					d := e.warn(set.Category, string(set.Category))
					d.Sanitized = sanitized
					return d
				}
				d := e.block(set.Category, string(set.Category))
				return d
			}
		}
	}

	if e.isOffTopic(sanitized) {
		return e.block(CategoryOffTopic, "off_topic")
	}

	return Decision{Action: ActionAllow, Sanitized: sanitized}
}

// CheckRate applies the sliding-window limits for one session.
//
// # Inputs
//
//   - sessionID: The session key; empty means anonymous, which shares a
//     single bucket.
//   - now: The evaluation instant (injectable for tests).
//
// # Outputs
//
//   - Decision: Allow, a soft Warn, or a Block with a cooldown message.
//   - time.Duration: The remaining cooldown on Block, zero otherwise.
func (e *Engine) CheckRate(sessionID string, now time.Time) (Decision, time.Duration) {
	verdict, cooldown := e.limiter.Record(sessionID, now)
	switch verdict {
	case RateOK:
		return Decision{Action: ActionAllow}, 0
	case RateSoftWarn:
		return Decision{
			Action:   ActionWarn,
			Category: CategoryRateLimit,
			Message:  e.rules.Messages["rate_limit_soft"],
		}, 0
	default:
		return Decision{
			Action:   ActionBlock,
			Category: CategoryRateLimit,
			Message:  e.rules.Messages["rate_limit_block"],
		}, cooldown
	}
}

// PurgeRateCounters drops rate-limit state for sessions idle longer than
// maxIdle and returns how many were removed. Wired into the session
// sweeper so expired sessions do not leak counters.
func (e *Engine) PurgeRateCounters(now time.Time, maxIdle time.Duration) int {
	return e.limiter.Purge(now, maxIdle)
}

// isOffTopic reports whether the utterance has no vehicle-domain lexeme
// and does match a non-vehicle topic lexeme.
func (e *Engine) isOffTopic(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, lex := range e.vehicleLexemes {
		if containsWord(lower, lex) {
			return false
		}
	}
	for _, lex := range e.offTopicLexemes {
		if containsWord(lower, lex) {
			return true
		}
	}
	return false
}

func (e *Engine) block(cat Category, messageKey string) Decision {
	return Decision{
		Action:   ActionBlock,
		Category: cat,
		Message:  e.rules.Messages[messageKey],
	}
}

func (e *Engine) warn(cat Category, messageKey string) Decision {
	return Decision{
		Action:        ActionWarn,
		Category:      cat,
		Message:       e.rules.Messages[messageKey],
		MaxResultsCap: WarnResultCap,
	}
}

// WarnResultCap is the top-k ceiling applied when a bulk-extraction
// request is downgraded to a warning.
const WarnResultCap = 100

// stripControlChars removes control characters while keeping whitespace.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// containsWord reports whether lower contains lex bounded by non-letters.
// A plain substring check would turn "cartoon" into a vehicle query.
func containsWord(lower, lex string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], lex)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(lex)
		beforeOK := start == 0 || !isWordByte(lower[start-1])
		afterOK := end == len(lower) || !isWordByte(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

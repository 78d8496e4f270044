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
	"regexp"
	"strings"
	"sync"

	"github.com/mollie-ward/vehiclesearch/services/llm"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

const (
	lexemeSearchConfidence   = 0.6
	lexemeOffTopicConfidence = 0.8
	patternConfidence        = 0.75
	intentCacheSize          = 512
)

// intentPatterns are the fallback matchers, checked in order. The first
// matching intent wins, so the more specific intents come first.
var intentPatterns = []struct {
	intent   datatypes.Intent
	patterns []*regexp.Regexp
}{
	{
		intent: datatypes.IntentCompare,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bcompare\b`),
			regexp.MustCompile(`(?i)\b(versus|vs\.?)\b`),
			regexp.MustCompile(`(?i)\bdifference between\b`),
			regexp.MustCompile(`(?i)\bwhich (is|one's|ones) (better|best)\b`),
		},
	},
	{
		intent: datatypes.IntentRefine,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(cheaper|cheapest|newer|older)\b`),
			regexp.MustCompile(`(?i)\b(lower|less|fewer) (mileage|miles)\b`),
			regexp.MustCompile(`(?i)\b(how|what) about\b`),
			regexp.MustCompile(`(?i)\b(instead|actually)\b`),
			regexp.MustCompile(`(?i)\b(remove|drop|undo|without) (the )?\w+`),
			regexp.MustCompile(`(?i)\b(make|keep) (it|them)\b`),
			regexp.MustCompile(`(?i)^(only|just) `),
			regexp.MustCompile(`(?i)\bmore like\b`),
		},
	},
	{
		intent: datatypes.IntentInformation,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btell me (more )?about\b`),
			regexp.MustCompile(`(?i)\bwhat (is|are) the\b`),
			regexp.MustCompile(`(?i)\bhow (much|many|big|fast)\b`),
			regexp.MustCompile(`(?i)\b(does|is) (it|this one|that one)\b`),
			regexp.MustCompile(`(?i)\b(mpg|insurance group|road tax|spec|specification)\b`),
		},
	},
	{
		intent: datatypes.IntentSearch,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(show|find|get|search)( me)?\b`),
			regexp.MustCompile(`(?i)\b(looking|look) for\b`),
			regexp.MustCompile(`(?i)\bi('m| am)? ?(want|need|after)\b`),
			regexp.MustCompile(`(?i)\b(any|got any|do you have)\b`),
			regexp.MustCompile(`(?i)\bi'?d like\b`),
		},
	},
}

// IntentClassifier decides what the user is trying to do.
//
// # Description
//
// The primary path asks the injected LLM capability; the fallback path
// (used when the capability is absent or errors) runs per-intent regex
// sets, then defaults on vehicle lexemes. Results are cached on the
// (utterance, previous-utterance) pair so a retried turn never pays for
// a second LLM call.
//
// # Thread Safety
//
// Safe for concurrent use.
type IntentClassifier struct {
	classifier llm.IntentClassifier

	mu    sync.Mutex
	cache map[string]intentOutcome
}

type intentOutcome struct {
	intent     datatypes.Intent
	confidence float64
}

// NewIntentClassifier wires the classifier over the optional LLM
// capability. Pass llm.NewNoopClassifier() to force the pattern path.
func NewIntentClassifier(classifier llm.IntentClassifier) *IntentClassifier {
	return &IntentClassifier{
		classifier: classifier,
		cache:      make(map[string]intentOutcome),
	}
}

// Classify returns the intent and confidence for an utterance given the
// previous utterance in the conversation (empty on the first turn).
func (c *IntentClassifier) Classify(ctx context.Context, utterance, previous string) (datatypes.Intent, float64) {
	key := cacheKey(utterance, previous)
	if out, ok := c.cached(key); ok {
		return out.intent, out.confidence
	}

	out := c.classify(ctx, utterance, previous)
	c.store(key, out)
	return out.intent, out.confidence
}

func (c *IntentClassifier) classify(ctx context.Context, utterance, previous string) intentOutcome {
	if c.classifier != nil && c.classifier.Available() {
		result, err := c.classifier.Classify(ctx, utterance, previous)
		if err == nil && datatypes.ValidIntent(result.Intent) {
			return intentOutcome{datatypes.Intent(result.Intent), result.Confidence}
		}
		if err != nil {
			slog.Warn("LLM intent classification failed, using pattern fallback", "error", err)
		}
	}
	return patternClassify(utterance)
}

// patternClassify is the regex fallback path.
func patternClassify(utterance string) intentOutcome {
	for _, set := range intentPatterns {
		for _, p := range set.patterns {
			if p.MatchString(utterance) {
				return intentOutcome{set.intent, patternConfidence}
			}
		}
	}
	if containsVehicleLexeme(utterance) {
		return intentOutcome{datatypes.IntentSearch, lexemeSearchConfidence}
	}
	return intentOutcome{datatypes.IntentOffTopic, lexemeOffTopicConfidence}
}

func containsVehicleLexeme(utterance string) bool {
	lower := " " + strings.ToLower(utterance) + " "
	for _, lex := range vehicleLexemes {
		if strings.Contains(lower, " "+lex+" ") || strings.Contains(lower, " "+lex+".") ||
			strings.Contains(lower, " "+lex+",") || strings.Contains(lower, " "+lex+"?") {
			return true
		}
	}
	// A recognized make or model also counts as on-topic.
	for _, mk := range canonicalMakes {
		if foldWord(utterance, mk) {
			return true
		}
	}
	for _, model := range knownModels {
		if foldWord(utterance, model) {
			return true
		}
	}
	return false
}

func cacheKey(utterance, previous string) string {
	return utterance + "\x00" + previous
}

func (c *IntentClassifier) cached(key string) (intentOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.cache[key]
	return out, ok
}

func (c *IntentClassifier) store(key string, out intentOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Crude bound: reset when full. Turn cache keys rarely repeat beyond
	// a conversation, so precision eviction buys nothing here.
	if len(c.cache) >= intentCacheSize {
		c.cache = make(map[string]intentOutcome)
	}
	c.cache[key] = out
}

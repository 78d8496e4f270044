// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package understanding

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mollie-ward/vehiclesearch/services/searchd/concepts"
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

const (
	dictionaryConfidence = 0.9
	makeConfidence       = 0.95
	synonymConfidence    = 0.8
	priceConfidence      = 0.9
	mileageConfidence    = 0.9
	contextConfidence    = 0.85
	yearConfidence       = 0.85
	qualitativeConf      = 0.85
	lowMileageMarker     = 30000
	lowMileageConfidence = 0.7
)

var (
	priceRangeRe = regexp.MustCompile(`(?i)\bbetween\s+£?([\d,]+(?:\.\d+)?)\s*(k|grand)?\s+and\s+£?([\d,]+(?:\.\d+)?)\s*(k|grand)?\b`)
	mileageRe    = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*(k)?\s*(?:miles|mi)\b`)
	lowMileageRe = regexp.MustCompile(`(?i)\blow mileage\b`)
	priceSymRe   = regexp.MustCompile(`(?i)£\s*([\d,]+(?:\.\d+)?)\s*(k|grand)?`)
	priceWordRe  = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*(k|grand)\b`)
	contextNumRe = regexp.MustCompile(`(?i)\b(?:under|below|up to|over|above|less than|more than|at least|at most|around|about|approximately|roughly|max(?:imum)?|budget(?: of)?)\s+£?([\d,]+(?:\.\d+)?)\s*(k|grand)?\b`)
	yearRe       = regexp.MustCompile(`\b(19\d{2}|20[0-2]\d)\b`)
	orRe         = regexp.MustCompile(`(?i)\bor\b`)
	wordRe       = regexp.MustCompile(`[A-Za-z][A-Za-z-]{3,}`)
)

// lexiconMatcher is one compiled dictionary: a word-boundary regex per
// lexeme mapped back to its canonical value.
type lexiconMatcher struct {
	entity     datatypes.EntityType
	confidence float64
	patterns   []lexemePattern
}

type lexemePattern struct {
	re        *regexp.Regexp
	canonical string
}

// Extractor pulls typed entities out of free text.
//
// # Thread Safety
//
// Safe for concurrent use after construction; all state is read-only
// except the concept mapper, which synchronizes internally.
type Extractor struct {
	concepts *concepts.Mapper
	lexicons []lexiconMatcher
	synonyms []lexemePattern
	synTypes map[string]datatypes.EntityType
}

// NewExtractor compiles the dictionaries. The concept mapper supplies
// the qualitative-term lexicon so hot-reloaded concepts stay matchable.
func NewExtractor(conceptMapper *concepts.Mapper) *Extractor {
	e := &Extractor{
		concepts: conceptMapper,
		synTypes: make(map[string]datatypes.EntityType),
	}

	e.lexicons = []lexiconMatcher{
		compileLexicon(datatypes.EntityMake, makeConfidence, canonicalMakes, map[string]string{"Mercedes": "Mercedes-Benz"}),
		compileLexicon(datatypes.EntityModel, dictionaryConfidence, knownModels, nil),
		compileLexicon(datatypes.EntityFuelType, dictionaryConfidence, fuelTypes, nil),
		compileLexicon(datatypes.EntityTransmission, dictionaryConfidence, transmissions, nil),
		compileLexicon(datatypes.EntityBodyType, dictionaryConfidence, bodyTypes, nil),
		compileLexicon(datatypes.EntityColour, dictionaryConfidence, colours, nil),
		compileLexicon(datatypes.EntityLocation, dictionaryConfidence, locations, nil),
		compileLexicon(datatypes.EntityFeature, dictionaryConfidence, knownFeatures, nil),
	}

	for raw, syn := range synonyms {
		e.synonyms = append(e.synonyms, lexemePattern{
			re:        wordBoundaryRe(raw),
			canonical: syn.canonical,
		})
		e.synTypes[syn.canonical] = syn.entity
	}
	sort.Slice(e.synonyms, func(i, j int) bool {
		return e.synonyms[i].re.String() < e.synonyms[j].re.String()
	})

	return e
}

// Extract runs every extraction layer and resolves overlaps.
//
// # Description
//
// Layers run in order: price range, mileage, contextual numbers, priced
// numbers, years, dictionaries, synonyms, qualitative terms, then fuzzy
// make matching over leftover words. Overlapping spans keep the
// highest-confidence entity; duplicate (type, value) pairs keep the
// highest confidence.
func (e *Extractor) Extract(utterance string) []datatypes.ExtractedEntity {
	var found []datatypes.ExtractedEntity

	found = append(found, extractPriceRanges(utterance)...)
	found = append(found, extractMileage(utterance)...)
	found = append(found, extractContextNumbers(utterance)...)
	found = append(found, extractPrices(utterance)...)
	found = append(found, extractYears(utterance)...)
	found = append(found, e.extractLexicons(utterance)...)
	found = append(found, e.extractSynonyms(utterance)...)
	found = append(found, e.extractQualitative(utterance)...)

	resolved := resolveOverlaps(found)
	resolved = append(resolved, e.fuzzyMakes(utterance, resolved)...)
	return dedupe(resolved)
}

// HasOrOperator reports whether the utterance joins values with "or".
func HasOrOperator(utterance string) bool {
	return orRe.MatchString(utterance)
}

// =============================================================================
// Numeric layers
// =============================================================================

func extractPriceRanges(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, m := range priceRangeRe.FindAllStringSubmatchIndex(s, -1) {
		raw := s[m[0]:m[1]]
		if strings.Contains(strings.ToLower(after(s, m[1], 8)), "mile") {
			lo, okLo := parseAmount(group(s, m, 1), group(s, m, 2))
			hi, okHi := parseAmount(group(s, m, 3), group(s, m, 4))
			if okLo && okHi && lo < hi {
				out = append(out, datatypes.ExtractedEntity{
					Type: datatypes.EntityMileage, Raw: raw,
					Value:        strconv.FormatFloat(lo, 'f', -1, 64),
					NumericValue: lo, NumericValueHigh: hi,
					Confidence: mileageConfidence, Start: m[0], End: m[1],
				})
			}
			continue
		}
		lo, okLo := parseAmount(group(s, m, 1), group(s, m, 2))
		hi, okHi := parseAmount(group(s, m, 3), group(s, m, 4))
		if okLo && okHi && lo < hi {
			out = append(out, datatypes.ExtractedEntity{
				Type: datatypes.EntityPriceRange, Raw: raw,
				Value:        strconv.FormatFloat(lo, 'f', -1, 64),
				NumericValue: lo, NumericValueHigh: hi,
				Confidence: priceConfidence, Start: m[0], End: m[1],
			})
		}
	}
	return out
}

func extractMileage(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, m := range mileageRe.FindAllStringSubmatchIndex(s, -1) {
		v, ok := parseAmount(group(s, m, 1), group(s, m, 2))
		if !ok {
			continue
		}
		out = append(out, datatypes.ExtractedEntity{
			Type: datatypes.EntityMileage, Raw: s[m[0]:m[1]],
			Value:        strconv.FormatFloat(v, 'f', -1, 64),
			NumericValue: v,
			Confidence:   mileageConfidence, Start: m[0], End: m[1],
		})
	}
	for _, m := range lowMileageRe.FindAllStringIndex(s, -1) {
		out = append(out, datatypes.ExtractedEntity{
			Type: datatypes.EntityMileage, Raw: s[m[0]:m[1]],
			Value:        strconv.Itoa(lowMileageMarker),
			NumericValue: lowMileageMarker,
			Confidence:   lowMileageConfidence, Start: m[0], End: m[1],
		})
	}
	return out
}

func extractContextNumbers(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, m := range contextNumRe.FindAllStringSubmatchIndex(s, -1) {
		numStr, suffix := group(s, m, 1), group(s, m, 2)
		v, ok := parseAmount(numStr, suffix)
		if !ok {
			continue
		}
		// Bare 4-digit values in the model-year range belong to the year
		// layer, not the price layer.
		if suffix == "" && !strings.Contains(s[m[0]:m[1]], "£") && isYearLike(v, numStr) {
			continue
		}
		out = append(out, datatypes.ExtractedEntity{
			Type: datatypes.EntityPrice, Raw: s[m[0]:m[1]],
			Value:        strconv.FormatFloat(v, 'f', -1, 64),
			NumericValue: v,
			Confidence:   contextConfidence, Start: m[0], End: m[1],
		})
	}
	return out
}

func extractPrices(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	add := func(m []int, conf float64) {
		v, ok := parseAmount(group(s, m, 1), group(s, m, 2))
		if !ok {
			return
		}
		out = append(out, datatypes.ExtractedEntity{
			Type: datatypes.EntityPrice, Raw: s[m[0]:m[1]],
			Value:        strconv.FormatFloat(v, 'f', -1, 64),
			NumericValue: v,
			Confidence:   conf, Start: m[0], End: m[1],
		})
	}
	for _, m := range priceSymRe.FindAllStringSubmatchIndex(s, -1) {
		add(m, priceConfidence)
	}
	for _, m := range priceWordRe.FindAllStringSubmatchIndex(s, -1) {
		add(m, contextConfidence)
	}
	return out
}

func extractYears(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, m := range yearRe.FindAllStringSubmatchIndex(s, -1) {
		year, err := strconv.Atoi(group(s, m, 1))
		if err != nil {
			continue
		}
		out = append(out, datatypes.ExtractedEntity{
			Type: datatypes.EntityYear, Raw: s[m[0]:m[1]],
			Value:        strconv.Itoa(year),
			NumericValue: float64(year),
			Confidence:   yearConfidence, Start: m[0], End: m[1],
		})
	}
	return out
}

// =============================================================================
// Dictionary layers
// =============================================================================

func compileLexicon(entity datatypes.EntityType, confidence float64, lexemes []string, aliases map[string]string) lexiconMatcher {
	lm := lexiconMatcher{entity: entity, confidence: confidence}
	for _, lex := range lexemes {
		lm.patterns = append(lm.patterns, lexemePattern{re: wordBoundaryRe(lex), canonical: lex})
	}
	for alias, canonical := range aliases {
		lm.patterns = append(lm.patterns, lexemePattern{re: wordBoundaryRe(alias), canonical: canonical})
	}
	return lm
}

func wordBoundaryRe(lexeme string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(lexeme) + `\b`)
}

func (e *Extractor) extractLexicons(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, lex := range e.lexicons {
		for _, p := range lex.patterns {
			for _, m := range p.re.FindAllStringIndex(s, -1) {
				out = append(out, datatypes.ExtractedEntity{
					Type: lex.entity, Raw: s[m[0]:m[1]],
					Value:      p.canonical,
					Confidence: lex.confidence, Start: m[0], End: m[1],
				})
			}
		}
	}
	return out
}

func (e *Extractor) extractSynonyms(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, p := range e.synonyms {
		for _, m := range p.re.FindAllStringIndex(s, -1) {
			out = append(out, datatypes.ExtractedEntity{
				Type: e.synTypes[p.canonical], Raw: s[m[0]:m[1]],
				Value:      p.canonical,
				Confidence: synonymConfidence, Start: m[0], End: m[1],
			})
		}
	}
	return out
}

func (e *Extractor) extractQualitative(s string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, term := range e.concepts.Terms() {
		re := wordBoundaryRe(term)
		for _, m := range re.FindAllStringIndex(s, -1) {
			concept, ok := e.concepts.Lookup(term)
			if !ok {
				continue
			}
			out = append(out, datatypes.ExtractedEntity{
				Type: datatypes.EntityQualitativeTerm, Raw: s[m[0]:m[1]],
				Value:      concept.Name,
				Confidence: qualitativeConf, Start: m[0], End: m[1],
			})
		}
	}
	return out
}

// fuzzyMakes resolves misspelled makes ("tyota") among words no other
// layer claimed. Distance must be at most 2 and under half the canonical
// length; confidence is 0.8 minus 0.1 per edit.
func (e *Extractor) fuzzyMakes(s string, taken []datatypes.ExtractedEntity) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	for _, m := range wordRe.FindAllStringIndex(s, -1) {
		span := datatypes.ExtractedEntity{Start: m[0], End: m[1]}
		if overlapsAny(span, taken) || overlapsAny(span, out) {
			continue
		}
		word := s[m[0]:m[1]]
		best, bestDist := "", 3
		for _, mk := range canonicalMakes {
			d := levenshtein(strings.ToLower(word), strings.ToLower(mk))
			if d > 0 && d < bestDist && d <= 2 && d*2 < len(mk) {
				best, bestDist = mk, d
			}
		}
		if best == "" {
			continue
		}
		out = append(out, datatypes.ExtractedEntity{
			Type: datatypes.EntityMake, Raw: word,
			Value:      best,
			Confidence: 0.8 - 0.1*float64(bestDist),
			Start:      m[0], End: m[1],
		})
	}
	return out
}

// =============================================================================
// Resolution
// =============================================================================

// resolveOverlaps keeps the highest-confidence entity per overlapping
// span, preferring the longer span on ties.
func resolveOverlaps(entities []datatypes.ExtractedEntity) []datatypes.ExtractedEntity {
	sorted := append([]datatypes.ExtractedEntity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		li, lj := sorted[i].End-sorted[i].Start, sorted[j].End-sorted[j].Start
		if li != lj {
			return li > lj
		}
		return sorted[i].Start < sorted[j].Start
	})

	var kept []datatypes.ExtractedEntity
	for _, e := range sorted {
		if !overlapsAny(e, kept) {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// dedupe keeps the highest-confidence entity per (type, value) pair.
func dedupe(entities []datatypes.ExtractedEntity) []datatypes.ExtractedEntity {
	type key struct {
		t datatypes.EntityType
		v string
	}
	best := make(map[key]int)
	var out []datatypes.ExtractedEntity
	for _, e := range entities {
		k := key{e.Type, strings.ToLower(e.Value)}
		if idx, seen := best[k]; seen {
			if e.Confidence > out[idx].Confidence {
				out[idx] = e
			}
			continue
		}
		best[k] = len(out)
		out = append(out, e)
	}
	return out
}

func overlapsAny(e datatypes.ExtractedEntity, list []datatypes.ExtractedEntity) bool {
	for _, other := range list {
		if e.Overlaps(other) {
			return true
		}
	}
	return false
}

// =============================================================================
// Helpers
// =============================================================================

func parseAmount(numStr, suffix string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(numStr, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSpace(suffix)) {
	case "k", "grand":
		v *= 1000
	}
	return v, true
}

func isYearLike(v float64, numStr string) bool {
	return len(numStr) == 4 && v >= 1900 && v <= 2029
}

func group(s string, m []int, n int) string {
	if 2*n+1 >= len(m) || m[2*n] < 0 {
		return ""
	}
	return s[m[2*n]:m[2*n+1]]
}

func after(s string, from, n int) string {
	end := from + n
	if end > len(s) {
		end = len(s)
	}
	if from > len(s) {
		from = len(s)
	}
	return s[from:end]
}

// foldWord reports a case-insensitive word-boundary match of lexeme in s.
func foldWord(s, lexeme string) bool {
	return wordBoundaryRe(lexeme).MatchString(s)
}

// levenshtein computes edit distance with the classic two-row method.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

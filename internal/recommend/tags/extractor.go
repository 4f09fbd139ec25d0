// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package tags turns a work's delimiter-separated tag fields into
// normalized per-facet token sets.
//
// Extraction is pure and deterministic: the same input strings always
// yield the same sets, token order never matters, and empty or missing
// fields yield empty sets rather than errors. Both the similarity index
// and the scorer depend on that determinism.
package tags

import (
	"strings"

	"github.com/shelfwise/shelfwise/internal/recommend"
)

// Facet identifies one of the tag dimensions extracted from a work.
type Facet string

const (
	// FacetSubject covers topical subjects ("fantasy", "economics").
	FacetSubject Facet = "subject"
	// FacetPlace covers subject places ("london", "middle-earth").
	FacetPlace Facet = "place"
	// FacetTime covers subject times ("19th century", "bronze age").
	FacetTime Facet = "time"
	// FacetPeople covers subject people ("napoleon", "sherlock holmes").
	FacetPeople Facet = "people"
	// FacetLanguage covers original languages ("english", "japanese").
	FacetLanguage Facet = "language"
)

// Facets lists all facets in a stable order.
var Facets = []Facet{FacetSubject, FacetPlace, FacetTime, FacetPeople, FacetLanguage}

// TagSet maps each facet to its de-duplicated, normalized tokens.
type TagSet map[Facet][]string

// Empty reports whether no facet carries any token.
func (s TagSet) Empty() bool {
	for _, toks := range s {
		if len(toks) > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of tokens across all facets.
func (s TagSet) Count() int {
	n := 0
	for _, toks := range s {
		n += len(toks)
	}
	return n
}

// Extractor splits delimited tag fields into normalized token sets.
type Extractor struct {
	delimiter string
}

// Config contains tag extraction configuration.
type Config struct {
	// Delimiter separates tokens within a tag field. This is a system
	// convention, not inferred from data. Default: ";".
	Delimiter string
}

// NewExtractor creates an extractor with the given configuration.
func NewExtractor(cfg Config) *Extractor {
	if cfg.Delimiter == "" {
		cfg.Delimiter = ";"
	}
	return &Extractor{delimiter: cfg.Delimiter}
}

// Extract produces the per-facet tag sets for a work.
//
//nolint:gocritic // hugeParam: work passed by value for immutability
func (e *Extractor) Extract(work recommend.Work) TagSet {
	return TagSet{
		FacetSubject:  e.Tokens(work.Subjects),
		FacetPlace:    e.Tokens(work.SubjectPlaces),
		FacetTime:     e.Tokens(work.SubjectTimes),
		FacetPeople:   e.Tokens(work.SubjectPeople),
		FacetLanguage: e.Tokens(work.OriginalLanguages),
	}
}

// Tokens splits one delimited field into lower-cased, trimmed,
// de-duplicated tokens. Order follows first appearance in the input.
func (e *Extractor) Tokens(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}

	parts := strings.Split(field, e.delimiter)
	seen := make(map[string]struct{}, len(parts))
	tokens := make([]string, 0, len(parts))

	for _, p := range parts {
		tok := Normalize(p)
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}

	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// Normalize lower-cases and trims a single token, collapsing inner runs
// of whitespace to a single space.
func Normalize(raw string) string {
	tok := strings.ToLower(strings.TrimSpace(raw))
	if tok == "" {
		return ""
	}
	return strings.Join(strings.Fields(tok), " ")
}

// Era derives a decade label ("1990s") from a work's firstPublishDate.
// The date is opaque text, so this scans for the first plausible 4-digit
// year. Returns "" when no year is found; never an error.
func Era(firstPublishDate string) string {
	s := firstPublishDate
	for i := 0; i+4 <= len(s); i++ {
		if !isDigit(s[i]) {
			continue
		}
		// Reject runs longer than 4 digits (e.g. timestamps).
		if i > 0 && isDigit(s[i-1]) {
			continue
		}
		if i+4 < len(s) && isDigit(s[i+4]) {
			continue
		}
		year := int(s[i]-'0')*1000 + int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0')
		if year < 1000 || year > 2100 {
			continue
		}
		decade := (year / 10) * 10
		return itoa(decade) + "s"
	}
	return ""
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// itoa avoids strconv for the small fixed range Era produces.
func itoa(n int) string {
	buf := [4]byte{}
	for i := 3; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[:])
}

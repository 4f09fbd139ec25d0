// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package similarity

import (
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

// FacetWeights defines the relative contribution of each tag facet plus
// shared authorship to content similarity. Weights are normalized at use,
// so they don't need to sum to 1.0.
type FacetWeights struct {
	// Subject is the weight for topical subjects. Default: 0.35.
	Subject float64 `json:"subject" koanf:"subject"`

	// Place is the weight for subject places. Default: 0.15.
	Place float64 `json:"place" koanf:"place"`

	// Time is the weight for subject times. Default: 0.10.
	Time float64 `json:"time" koanf:"time"`

	// People is the weight for subject people. Default: 0.15.
	People float64 `json:"people" koanf:"people"`

	// Language is the weight for original languages. Default: 0.05.
	Language float64 `json:"language" koanf:"language"`

	// Author is the weight for shared-author overlap. Default: 0.20.
	Author float64 `json:"author" koanf:"author"`
}

// DefaultFacetWeights returns the default facet weighting: subjects
// highest, language lowest.
func DefaultFacetWeights() FacetWeights {
	return FacetWeights{
		Subject:  0.35,
		Place:    0.15,
		Time:     0.10,
		People:   0.15,
		Language: 0.05,
		Author:   0.20,
	}
}

// Normalize returns a copy with weights scaled to sum to 1.0. All-zero
// weights fall back to the defaults.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w FacetWeights) Normalize() FacetWeights {
	sum := w.Subject + w.Place + w.Time + w.People + w.Language + w.Author
	if sum == 0 {
		return DefaultFacetWeights()
	}
	return FacetWeights{
		Subject:  w.Subject / sum,
		Place:    w.Place / sum,
		Time:     w.Time / sum,
		People:   w.People / sum,
		Language: w.Language / sum,
		Author:   w.Author / sum,
	}
}

// contentFeatures is a work's pre-extracted similarity input.
type contentFeatures struct {
	workID  int64
	tagSet  tags.TagSet
	authors map[int64]struct{}
}

// empty reports whether the work carries no similarity signal at all.
// Such works cannot be similarity-linked (cold start).
func (f *contentFeatures) empty() bool {
	return f.tagSet.Empty() && len(f.authors) == 0
}

// contentSimilarity computes the facet-weighted Jaccard similarity between
// two works' features. Result is bounded to [0, 1]. Weights must already
// be normalized.
//
//nolint:gocritic // hugeParam: weights passed by value for immutability
func contentSimilarity(a, b *contentFeatures, w FacetWeights) float64 {
	score := w.Subject*jaccard(a.tagSet[tags.FacetSubject], b.tagSet[tags.FacetSubject]) +
		w.Place*jaccard(a.tagSet[tags.FacetPlace], b.tagSet[tags.FacetPlace]) +
		w.Time*jaccard(a.tagSet[tags.FacetTime], b.tagSet[tags.FacetTime]) +
		w.People*jaccard(a.tagSet[tags.FacetPeople], b.tagSet[tags.FacetPeople]) +
		w.Language*jaccard(a.tagSet[tags.FacetLanguage], b.tagSet[tags.FacetLanguage]) +
		w.Author*jaccardIDs(a.authors, b.authors)

	if score > 1 {
		score = 1
	}
	return score
}

// jaccard computes Jaccard similarity between two token slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}

	intersection := 0
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, dup := setB[s]; dup {
			continue
		}
		setB[s] = struct{}{}
		if _, ok := setA[s]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// jaccardIDs computes Jaccard similarity between two ID sets.
func jaccardIDs(a, b map[int64]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for id := range small {
		if _, ok := large[id]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package similarity

import (
	"math"
	"testing"

	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", []string{"fantasy"}, nil, 0},
		{"identical", []string{"fantasy", "adventure"}, []string{"fantasy", "adventure"}, 1},
		{"disjoint", []string{"fantasy"}, []string{"mystery"}, 0},
		{"partial overlap", []string{"fantasy", "adventure", "magic"}, []string{"fantasy", "mystery"}, 1.0 / 4.0},
		{"duplicates collapse", []string{"fantasy", "fantasy"}, []string{"fantasy"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tt.a, tt.b)
			if !almostEqual(got, tt.want) {
				t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			// Symmetry.
			if rev := jaccard(tt.b, tt.a); !almostEqual(got, rev) {
				t.Errorf("jaccard not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestJaccardIDs(t *testing.T) {
	set := func(ids ...int64) map[int64]struct{} {
		m := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			m[id] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name string
		a    map[int64]struct{}
		b    map[int64]struct{}
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"shared author", set(1), set(1), 1},
		{"no overlap", set(1), set(2), 0},
		{"partial", set(1, 2), set(2, 3, 4), 1.0 / 4.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccardIDs(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("jaccardIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFacetWeightsNormalize(t *testing.T) {
	t.Run("defaults sum to one", func(t *testing.T) {
		w := DefaultFacetWeights()
		sum := w.Subject + w.Place + w.Time + w.People + w.Language + w.Author
		if !almostEqual(sum, 1.0) {
			t.Errorf("default weights sum = %v, want 1.0", sum)
		}
	})

	t.Run("zero weights fall back to defaults", func(t *testing.T) {
		w := FacetWeights{}.Normalize()
		if w != DefaultFacetWeights() {
			t.Errorf("Normalize() of zero weights = %+v, want defaults", w)
		}
	})

	t.Run("unnormalized weights rescaled", func(t *testing.T) {
		w := FacetWeights{Subject: 2, Author: 2}.Normalize()
		if !almostEqual(w.Subject, 0.5) || !almostEqual(w.Author, 0.5) {
			t.Errorf("Normalize() = %+v, want subject and author at 0.5", w)
		}
	})
}

func TestContentSimilarity(t *testing.T) {
	feat := func(workID int64, subjects []string, authors ...int64) *contentFeatures {
		f := &contentFeatures{
			workID:  workID,
			tagSet:  tags.TagSet{tags.FacetSubject: subjects},
			authors: make(map[int64]struct{}),
		}
		for _, id := range authors {
			f.authors[id] = struct{}{}
		}
		return f
	}
	weights := DefaultFacetWeights()

	t.Run("identical works score below one without all facets", func(t *testing.T) {
		a := feat(1, []string{"fantasy", "adventure"}, 10)
		b := feat(2, []string{"fantasy", "adventure"}, 10)
		got := contentSimilarity(a, b, weights)
		// Subject and author facets saturate; the rest contribute zero.
		want := weights.Subject + weights.Author
		if !almostEqual(got, want) {
			t.Errorf("contentSimilarity() = %v, want %v", got, want)
		}
	})

	t.Run("no shared signal scores zero", func(t *testing.T) {
		a := feat(1, []string{"fantasy"}, 10)
		b := feat(2, []string{"cooking"}, 20)
		if got := contentSimilarity(a, b, weights); got != 0 {
			t.Errorf("contentSimilarity() = %v, want 0", got)
		}
	})

	t.Run("shared author alone contributes", func(t *testing.T) {
		a := feat(1, nil, 10)
		b := feat(2, nil, 10)
		got := contentSimilarity(a, b, weights)
		if !almostEqual(got, weights.Author) {
			t.Errorf("contentSimilarity() = %v, want %v", got, weights.Author)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		a := feat(1, []string{"fantasy", "magic"}, 10)
		b := feat(2, []string{"fantasy"}, 20)
		if ab, ba := contentSimilarity(a, b, weights), contentSimilarity(b, a, weights); !almostEqual(ab, ba) {
			t.Errorf("contentSimilarity not symmetric: %v vs %v", ab, ba)
		}
	})

	t.Run("bounded to one", func(t *testing.T) {
		a := feat(1, []string{"fantasy"}, 10)
		got := contentSimilarity(a, a, weights)
		if got > 1 {
			t.Errorf("contentSimilarity() = %v, want <= 1", got)
		}
	})
}

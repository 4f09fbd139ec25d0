// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package similarity

import (
	"math"

	"github.com/shelfwise/shelfwise/internal/recommend"
)

// likeMatrix is the co-like snapshot a collaborative rebuild works from:
// per-work liker sets plus the inverted user -> works index used for
// candidate generation.
type likeMatrix struct {
	workLikers map[int64]map[int64]struct{}
	userLikes  map[int64][]int64
}

// buildLikeMatrix folds liked interactions into the matrix. Dislikes are
// excluded: collaborative similarity is defined over shared positive
// signal only.
//
//nolint:gocritic // rangeValCopy: Interaction passed by value in range, acceptable for clarity
func buildLikeMatrix(interactions []recommend.Interaction) *likeMatrix {
	m := &likeMatrix{
		workLikers: make(map[int64]map[int64]struct{}),
		userLikes:  make(map[int64][]int64),
	}

	for _, inter := range interactions {
		if !inter.Liked {
			continue
		}
		likers, ok := m.workLikers[inter.WorkID]
		if !ok {
			likers = make(map[int64]struct{})
			m.workLikers[inter.WorkID] = likers
		}
		if _, dup := likers[inter.UserID]; dup {
			continue
		}
		likers[inter.UserID] = struct{}{}
		m.userLikes[inter.UserID] = append(m.userLikes[inter.UserID], inter.WorkID)
	}

	return m
}

// candidates returns the works sharing at least one liker with the given
// work. A work with no co-likers has no collaborative neighbors at all.
func (m *likeMatrix) candidates(workID int64) map[int64]struct{} {
	likers, ok := m.workLikers[workID]
	if !ok {
		return nil
	}

	out := make(map[int64]struct{})
	for userID := range likers {
		for _, other := range m.userLikes[userID] {
			if other != workID {
				out[other] = struct{}{}
			}
		}
	}
	return out
}

// similarity computes cosine similarity over like-vectors:
//
//	sim(a, b) = |likers(a) ∩ likers(b)| / sqrt(|likers(a)| * |likers(b)|)
//
// The sqrt normalization controls for popularity bias: a work liked by
// everyone does not dominate just by volume.
func (m *likeMatrix) similarity(a, b int64) float64 {
	likersA := m.workLikers[a]
	likersB := m.workLikers[b]
	if len(likersA) == 0 || len(likersB) == 0 {
		return 0
	}

	small, large := likersA, likersB
	if len(small) > len(large) {
		small, large = large, small
	}

	coLikes := 0
	for userID := range small {
		if _, ok := large[userID]; ok {
			coLikes++
		}
	}
	if coLikes == 0 {
		return 0
	}

	return float64(coLikes) / math.Sqrt(float64(len(likersA))*float64(len(likersB)))
}

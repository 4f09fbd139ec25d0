// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package scoring

// reasonKind orders reason categories for the output list: relevance
// signals first, penalties and cold-start notes last.
type reasonKind int

const (
	reasonContent reasonKind = iota
	reasonCollaborative
	reasonEra
	reasonNovelty
	reasonPenalty
	reasonColdStart
)

// reasonBuilder collects explanations as score components are computed,
// so the reasons list is derived from the exact signals that produced
// the numbers. Insertion order within a kind is preserved; duplicate
// texts are dropped.
type reasonBuilder struct {
	max     int
	byKind  map[reasonKind][]string
	present map[string]struct{}
}

func newReasonBuilder(max int) *reasonBuilder {
	return &reasonBuilder{
		max:     max,
		byKind:  make(map[reasonKind][]string),
		present: make(map[string]struct{}),
	}
}

func (b *reasonBuilder) add(kind reasonKind, text string) {
	if _, dup := b.present[text]; dup {
		return
	}
	b.present[text] = struct{}{}
	b.byKind[kind] = append(b.byKind[kind], text)
}

// list flattens the collected reasons in kind order, capped at max.
func (b *reasonBuilder) list() []string {
	out := make([]string, 0, len(b.present))
	for kind := reasonContent; kind <= reasonColdStart; kind++ {
		for _, text := range b.byKind[kind] {
			if len(out) == b.max {
				return out
			}
			out = append(out, text)
		}
	}
	return out
}

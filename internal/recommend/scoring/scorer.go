// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package scoring produces RecommendationScore rows for (user, work)
// pairs. A score combines a content component (profile affinity vs the
// work's tags), a collaborative component (similarity-weighted liked
// neighbors), a bounded novelty bonus, and a multiplicative negative
// multiplier derived from the user's explicit dislikes.
//
// The multiplicative penalty placement is deliberate: a work similar to
// something the user hated cannot rank highly no matter how strong its
// positive signals are. Additive penalties cannot give that guarantee.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/recommend/similarity"
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

// Store is the persistence surface scoring needs. Lookups return
// (nil, nil) for absent rows.
type Store interface {
	// GetWork returns a work by ID, or (nil, nil) when unknown.
	GetWork(ctx context.Context, workID int64) (*recommend.Work, error)

	// GetWorkAuthors returns the authors of a work.
	GetWorkAuthors(ctx context.Context, workID int64) ([]recommend.Author, error)

	// GetProfile returns a user's profile, or (nil, nil) when the user has
	// no profile yet.
	GetProfile(ctx context.Context, userID int64) (*recommend.Profile, error)

	// GetInteractedWorkIDs returns the distinct work IDs the user has
	// interacted with, split by liked flag.
	GetInteractedWorkIDs(ctx context.Context, userID int64, liked bool) ([]int64, error)

	// GetNeighbors returns a work's persisted neighbor list for one
	// similarity type, strongest first.
	GetNeighbors(ctx context.Context, workID int64, typ recommend.SimilarityType) ([]recommend.SimilarityEdge, error)

	// UpsertScore overwrites the row keyed by (UserID, WorkID).
	UpsertScore(ctx context.Context, score *recommend.Score) error
}

// Config contains scoring tuning.
type Config struct {
	// Weights is the facet weighting shared with content similarity.
	Weights similarity.FacetWeights `json:"weights"`

	// NoveltyCap bounds the novelty bonus so diversity never dominates
	// relevance. Default: 0.15.
	NoveltyCap float64 `json:"novelty_cap"`

	// NegativeWeight scales the dislike penalty before clamping.
	// Default: 0.9.
	NegativeWeight float64 `json:"negative_weight"`

	// MinMultiplier floors the negative multiplier above zero so the
	// product invariant (multiplier in (0, 1]) holds. Default: 0.05.
	MinMultiplier float64 `json:"min_multiplier"`

	// EraBonus is added to the content component when the work's publish
	// era matches the profile's preferred era. Default: 0.05.
	EraBonus float64 `json:"era_bonus"`

	// MaxReasons caps the reasons list. Default: 5.
	MaxReasons int `json:"max_reasons"`
}

func (c *Config) applyDefaults() {
	if c.NoveltyCap <= 0 {
		c.NoveltyCap = 0.15
	}
	if c.NegativeWeight <= 0 {
		c.NegativeWeight = 0.9
	}
	if c.MinMultiplier <= 0 {
		c.MinMultiplier = 0.05
	}
	if c.EraBonus <= 0 {
		c.EraBonus = 0.05
	}
	if c.MaxReasons < 1 {
		c.MaxReasons = 5
	}
	c.Weights = c.Weights.Normalize()
}

// Scorer computes and persists recommendation scores.
type Scorer struct {
	store     Store
	extractor *tags.Extractor
	cfg       Config
	logger    zerolog.Logger
}

// NewScorer creates a scorer.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScorer(store Store, extractor *tags.Extractor, cfg Config, logger zerolog.Logger) *Scorer {
	cfg.applyDefaults()
	return &Scorer{
		store:     store,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "scoring").Logger(),
	}
}

// Score computes, persists, and returns the score for one (user, work)
// pair. An absent profile is the defined cold-start state, not an error;
// an unknown work is ErrUnknownWork. The caller is responsible for user
// existence (the engine validates users before scoring).
func (s *Scorer) Score(ctx context.Context, userID, workID int64) (*recommend.Score, error) {
	start := time.Now()

	work, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("load work %d: %w", workID, err)
	}
	if work == nil {
		return nil, fmt.Errorf("work %d: %w", workID, recommend.ErrUnknownWork)
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile for user %d: %w", userID, err)
	}
	coldStart := profile == nil
	if coldStart {
		profile = recommend.NewProfile(userID)
	}

	authors, err := s.store.GetWorkAuthors(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("load authors of work %d: %w", workID, err)
	}

	set := s.extractor.Extract(*work)
	rb := newReasonBuilder(s.cfg.MaxReasons)

	content := s.contentScore(profile, work, set, rb)

	collab, err := s.collaborativeScore(ctx, userID, workID, rb)
	if err != nil {
		return nil, err
	}

	novelty := s.noveltyBonus(profile, set, rb)

	multiplier, err := s.negativeMultiplier(ctx, userID, workID, profile, set, authors, rb)
	if err != nil {
		return nil, err
	}

	if coldStart {
		rb.add(reasonColdStart, "not enough history to personalize yet")
	}

	score := &recommend.Score{
		UserID:             userID,
		WorkID:             workID,
		ContentScore:       content,
		CollaborativeScore: collab,
		NoveltyBonus:       novelty,
		NegativeMultiplier: multiplier,
		FinalScore:         (content + collab + novelty) * multiplier,
		Reasons:            rb.list(),
		UpdatedAt:          time.Now().UTC(),
	}

	if err := s.store.UpsertScore(ctx, score); err != nil {
		return nil, fmt.Errorf("persist score (%d, %d): %w", userID, workID, err)
	}

	metrics.ScoresComputed.Inc()
	s.logger.Debug().
		Int64("user_id", userID).
		Int64("work_id", workID).
		Float64("final", score.FinalScore).
		Dur("elapsed", time.Since(start)).
		Msg("score computed")

	return score, nil
}

// ScoreMany scores a batch of candidate works for one user. Per-pair
// failures are isolated: a failing candidate is logged and skipped, not
// fatal to the batch.
func (s *Scorer) ScoreMany(ctx context.Context, userID int64, workIDs []int64) ([]recommend.Score, error) {
	out := make([]recommend.Score, 0, len(workIDs))
	for _, workID := range workIDs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		score, err := s.Score(ctx, userID, workID)
		if err != nil {
			s.logger.Warn().
				Int64("user_id", userID).
				Int64("work_id", workID).
				Err(err).
				Msg("scoring candidate failed")
			continue
		}
		out = append(out, *score)
	}
	return out, nil
}

// contentScore measures the user's preference maps against the work's
// extracted tags: per-facet cosine between the profile's affinity vector
// and the work's binary tag vector, blended with facet weights
// re-normalized over the facets the work actually carries. A matching
// preferred era adds a small fixed bonus. Result is bounded to [0, 1].
func (s *Scorer) contentScore(profile *recommend.Profile, work *recommend.Work, set tags.TagSet, rb *reasonBuilder) float64 {
	type facetInput struct {
		weight float64
		prefs  map[string]float64
		toks   []string
		label  string
	}
	inputs := []facetInput{
		{s.cfg.Weights.Subject, profile.Subjects, set[tags.FacetSubject], "subject"},
		{s.cfg.Weights.Place, profile.Places, set[tags.FacetPlace], "place"},
		{s.cfg.Weights.Time, profile.Times, set[tags.FacetTime], "time"},
		{s.cfg.Weights.People, profile.People, set[tags.FacetPeople], "people"},
		{s.cfg.Weights.Language, profile.Languages, set[tags.FacetLanguage], "language"},
	}

	var score, weightSum float64
	for _, in := range inputs {
		if len(in.toks) == 0 {
			continue
		}
		weightSum += in.weight
		score += in.weight * affinityCosine(in.prefs, in.toks)
	}
	if weightSum > 0 {
		score /= weightSum
	}

	// Explain the strongest matched subjects from the same overlap that
	// fed the cosine.
	for _, tag := range topMatches(profile.Subjects, set[tags.FacetSubject], 2) {
		rb.add(reasonContent, "matches your interest in "+tag)
	}

	if profile.PreferredEra != "" && tags.Era(work.FirstPublishDate) == profile.PreferredEra {
		score += s.cfg.EraBonus
		rb.add(reasonEra, "from your preferred era ("+profile.PreferredEra+")")
	}

	if score > 1 {
		score = 1
	}
	return score
}

// affinityCosine computes cosine similarity between a tag-affinity map
// and a binary token vector.
func affinityCosine(prefs map[string]float64, toks []string) float64 {
	if len(prefs) == 0 || len(toks) == 0 {
		return 0
	}

	var dot, normSq float64
	for _, tok := range toks {
		dot += prefs[tok]
	}
	if dot == 0 {
		return 0
	}
	for _, w := range prefs {
		normSq += w * w
	}
	return dot / (math.Sqrt(normSq) * math.Sqrt(float64(len(toks))))
}

// topMatches returns up to n work tokens present in the preference map,
// strongest affinity first, ties broken alphabetically for determinism.
func topMatches(prefs map[string]float64, toks []string, n int) []string {
	matched := make([]string, 0, len(toks))
	seen := make(map[string]struct{}, len(toks))
	for _, tok := range toks {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if prefs[tok] > 0 {
			matched = append(matched, tok)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if prefs[matched[i]] != prefs[matched[j]] {
			return prefs[matched[i]] > prefs[matched[j]]
		}
		return matched[i] < matched[j]
	})
	if len(matched) > n {
		matched = matched[:n]
	}
	return matched
}

// collaborativeScore averages the candidate's collaborative similarity
// to the user's liked works. No liked history or no neighbors is the
// cold-start zero, not an error. Fan-out is bounded by the index's
// per-work top-K neighbor lists.
func (s *Scorer) collaborativeScore(ctx context.Context, userID, workID int64, rb *reasonBuilder) (float64, error) {
	likedIDs, err := s.store.GetInteractedWorkIDs(ctx, userID, true)
	if err != nil {
		return 0, fmt.Errorf("load liked works for user %d: %w", userID, err)
	}
	if len(likedIDs) == 0 {
		return 0, nil
	}

	neighbors, err := s.store.GetNeighbors(ctx, workID, recommend.SimilarityCollaborative)
	if err != nil {
		return 0, fmt.Errorf("load collaborative neighbors of work %d: %w", workID, err)
	}
	if len(neighbors) == 0 {
		return 0, nil
	}

	simByWork := make(map[int64]float64, len(neighbors))
	for _, edge := range neighbors {
		simByWork[edge.TargetWorkID] = edge.Similarity
	}

	var sum float64
	matched := 0
	for _, likedID := range likedIDs {
		if sim, ok := simByWork[likedID]; ok {
			sum += sim
			matched++
		}
	}
	if matched == 0 {
		return 0, nil
	}

	score := sum / float64(len(likedIDs))
	rb.add(reasonCollaborative, "liked by readers with similar taste")
	return score, nil
}

// noveltyBonus rewards tags the user has never encountered, positively or
// negatively: NoveltyCap scaled by the unseen fraction of the work's
// tags. A work with no tags earns no bonus.
func (s *Scorer) noveltyBonus(profile *recommend.Profile, set tags.TagSet, rb *reasonBuilder) float64 {
	seen := func(facet tags.Facet, tok string) bool {
		switch facet {
		case tags.FacetSubject:
			return profile.Subjects[tok] > 0 || profile.DislikedSubjects[tok] > 0
		case tags.FacetPlace:
			return profile.Places[tok] > 0 || profile.DislikedPlaces[tok] > 0
		case tags.FacetTime:
			return profile.Times[tok] > 0
		case tags.FacetPeople:
			return profile.People[tok] > 0
		case tags.FacetLanguage:
			return profile.Languages[tok] > 0
		}
		return false
	}

	total, unseen := 0, 0
	for _, facet := range tags.Facets {
		for _, tok := range set[facet] {
			total++
			if !seen(facet, tok) {
				unseen++
			}
		}
	}
	if total == 0 {
		return 0
	}

	bonus := s.cfg.NoveltyCap * float64(unseen) / float64(total)
	if bonus > s.cfg.NoveltyCap/2 {
		rb.add(reasonNovelty, "explores subject areas new to you")
	}
	return bonus
}

// negativeMultiplier derives the dampening factor in (0, 1] from two
// dislike signals: overlap between the work's tags/authors and the
// profile's dislike maps, and similarity of the candidate to works the
// user explicitly disliked. The stronger signal wins; the result is
// clamped to [MinMultiplier, 1].
func (s *Scorer) negativeMultiplier(ctx context.Context, userID, workID int64, profile *recommend.Profile, set tags.TagSet, authors []recommend.Author, rb *reasonBuilder) (float64, error) {
	tagPenalty := dislikeOverlap(profile.DislikedSubjects, set[tags.FacetSubject])
	if p := dislikeOverlap(profile.DislikedPlaces, set[tags.FacetPlace]); p > tagPenalty {
		tagPenalty = p
	}
	for i := range authors {
		if profile.DislikedAuthors[tags.Normalize(authors[i].Name)] > 0 {
			if tagPenalty < 1 {
				tagPenalty = 1
			}
			rb.add(reasonPenalty, "by an author you disliked")
			break
		}
	}

	simPenalty, err := s.dislikedNeighborPenalty(ctx, userID, workID)
	if err != nil {
		return 0, err
	}

	penalty := tagPenalty
	if simPenalty > penalty {
		penalty = simPenalty
	}
	if penalty == 0 {
		return 1.0, nil
	}

	if simPenalty > 0 {
		rb.add(reasonPenalty, "similar to works you disliked")
	} else if tagPenalty > 0 && tagPenalty < 1 {
		rb.add(reasonPenalty, "overlaps subjects you disliked")
	}

	multiplier := 1.0 - s.cfg.NegativeWeight*penalty
	if multiplier < s.cfg.MinMultiplier {
		multiplier = s.cfg.MinMultiplier
	}
	return multiplier, nil
}

// dislikedNeighborPenalty returns the candidate's strongest similarity,
// under either type, to a work the user explicitly disliked.
func (s *Scorer) dislikedNeighborPenalty(ctx context.Context, userID, workID int64) (float64, error) {
	dislikedIDs, err := s.store.GetInteractedWorkIDs(ctx, userID, false)
	if err != nil {
		return 0, fmt.Errorf("load disliked works for user %d: %w", userID, err)
	}
	if len(dislikedIDs) == 0 {
		return 0, nil
	}

	disliked := make(map[int64]struct{}, len(dislikedIDs))
	for _, id := range dislikedIDs {
		disliked[id] = struct{}{}
	}

	var worst float64
	for _, typ := range []recommend.SimilarityType{recommend.SimilarityContent, recommend.SimilarityCollaborative} {
		neighbors, err := s.store.GetNeighbors(ctx, workID, typ)
		if err != nil {
			return 0, fmt.Errorf("load %s neighbors of work %d: %w", typ, workID, err)
		}
		for _, edge := range neighbors {
			if _, ok := disliked[edge.TargetWorkID]; ok && edge.Similarity > worst {
				worst = edge.Similarity
			}
		}
	}
	return worst, nil
}

// dislikeOverlap returns the strongest normalized dislike weight among
// the work's tokens: 1.0 when a token carries the map's maximum weight.
func dislikeOverlap(disliked map[string]float64, toks []string) float64 {
	if len(disliked) == 0 || len(toks) == 0 {
		return 0
	}

	var maxWeight float64
	for _, w := range disliked {
		if w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight == 0 {
		return 0
	}

	var worst float64
	for _, tok := range toks {
		if w := disliked[tok] / maxWeight; w > worst {
			worst = w
		}
	}
	return worst
}

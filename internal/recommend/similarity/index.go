// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package similarity maintains the work-similarity index: per-work top-K
// neighbor lists persisted as WorkSimilarity rows under an explicit
// similarity type.
//
// The full N² matrix is never materialized. Candidates are generated from
// inverted indexes (tag -> works, liker -> works), results are pruned to a
// minimum-similarity threshold and a per-work top-K, and recomputation is
// an idempotent upsert on (source, target, type).
//
// Rebuilds are batched over work-ID ranges with a persisted checkpoint,
// so a cancelled or crashed rebuild resumes without redoing completed
// batches.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

// Store is the persistence surface a rebuild needs.
type Store interface {
	// GetAllWorks returns the catalog snapshot.
	GetAllWorks(ctx context.Context) ([]recommend.Work, error)

	// GetAuthorWorks returns all author-work links.
	GetAuthorWorks(ctx context.Context) ([]recommend.AuthorWork, error)

	// GetLikedInteractions returns all liked=true interactions.
	GetLikedInteractions(ctx context.Context) ([]recommend.Interaction, error)

	// ReplaceNeighbors atomically replaces the neighbor list of a source
	// work for one similarity type.
	ReplaceNeighbors(ctx context.Context, sourceWorkID int64, typ recommend.SimilarityType, edges []recommend.SimilarityEdge) error

	// GetRebuildCheckpoint returns the last fully processed work ID for a
	// type, or 0 when no rebuild is in progress.
	GetRebuildCheckpoint(ctx context.Context, typ recommend.SimilarityType) (int64, error)

	// SetRebuildCheckpoint records the last fully processed work ID.
	SetRebuildCheckpoint(ctx context.Context, typ recommend.SimilarityType, lastWorkID int64) error

	// ClearRebuildCheckpoint removes the checkpoint after a completed
	// rebuild.
	ClearRebuildCheckpoint(ctx context.Context, typ recommend.SimilarityType) error
}

// Config contains similarity index tuning.
type Config struct {
	// Weights is the content facet weighting.
	Weights FacetWeights `json:"weights"`

	// MinSimilarity is the persistence threshold; pairs below it are not
	// stored. Default: 0.05.
	MinSimilarity float64 `json:"min_similarity"`

	// TopK is the maximum number of neighbors kept per work per type.
	// Default: 50.
	TopK int `json:"top_k"`

	// BatchSize is the number of source works processed between
	// checkpoints. Default: 200.
	BatchSize int `json:"batch_size"`

	// BatchesPerSecond paces rebuild batches so a full-catalog rebuild
	// does not starve the store. Zero disables pacing.
	BatchesPerSecond float64 `json:"batches_per_second"`
}

// applyDefaults fills zero values with production defaults.
func (c *Config) applyDefaults() {
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.05
	}
	if c.TopK < 1 {
		c.TopK = 50
	}
	if c.BatchSize < 1 {
		c.BatchSize = 200
	}
	c.Weights = c.Weights.Normalize()
}

// Index computes and persists work-similarity neighbor lists.
type Index struct {
	store     Store
	extractor *tags.Extractor
	cfg       Config
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewIndex creates a similarity index.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewIndex(store Store, extractor *tags.Extractor, cfg Config, logger zerolog.Logger) *Index {
	cfg.applyDefaults()

	var limiter *rate.Limiter
	if cfg.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}

	return &Index{
		store:     store,
		extractor: extractor,
		cfg:       cfg,
		limiter:   limiter,
		logger:    logger.With().Str("component", "similarity").Logger(),
	}
}

// nopProgress discards progress updates.
type nopProgress struct{}

func (nopProgress) WorkDone(int) {}

// Rebuild recomputes the neighbor lists of one similarity type for all
// works in scope. It resumes from a persisted checkpoint and honors
// context cancellation between batches. A single work's failure is
// isolated: it is logged and counted, not fatal to the batch.
func (ix *Index) Rebuild(ctx context.Context, typ recommend.SimilarityType, scope recommend.RebuildScope, progress recommend.RebuildProgress) error {
	if !typ.Valid() {
		return recommend.NewValidationError("similarity_type", fmt.Sprintf("unknown type %q", typ))
	}
	if progress == nil {
		progress = nopProgress{}
	}

	start := time.Now()
	snap, err := ix.loadSnapshot(ctx, typ)
	if err != nil {
		return fmt.Errorf("load rebuild snapshot: %w", err)
	}

	checkpoint, err := ix.store.GetRebuildCheckpoint(ctx, typ)
	if err != nil {
		return fmt.Errorf("read rebuild checkpoint: %w", err)
	}

	sourceIDs := snap.sourceIDs(scope, checkpoint)
	ix.logger.Info().
		Str("type", string(typ)).
		Int("works", len(sourceIDs)).
		Int64("resume_after", checkpoint).
		Msg("similarity rebuild starting")

	var failed int
	for batchStart := 0; batchStart < len(sourceIDs); batchStart += ix.cfg.BatchSize {
		if err := ix.waitBatch(ctx); err != nil {
			return err
		}

		batchEnd := batchStart + ix.cfg.BatchSize
		if batchEnd > len(sourceIDs) {
			batchEnd = len(sourceIDs)
		}
		batch := sourceIDs[batchStart:batchEnd]

		for _, workID := range batch {
			persisted, err := ix.rebuildWork(ctx, snap, typ, workID)
			if err != nil {
				// Per-unit isolation: one pair set failing must not
				// abort the whole rebuild.
				failed++
				ix.logger.Warn().
					Int64("work_id", workID).
					Str("type", string(typ)).
					Err(err).
					Msg("similarity rebuild failed for work")
				continue
			}
			progress.WorkDone(persisted)
			metrics.SimilarityPairsPersisted.WithLabelValues(string(typ)).Add(float64(persisted))
		}

		// Checkpoint after the batch completes so a restart resumes here.
		if err := ix.store.SetRebuildCheckpoint(ctx, typ, batch[len(batch)-1]); err != nil {
			return fmt.Errorf("persist rebuild checkpoint: %w", err)
		}
	}

	if err := ix.store.ClearRebuildCheckpoint(ctx, typ); err != nil {
		return fmt.Errorf("clear rebuild checkpoint: %w", err)
	}

	metrics.SimilarityRebuildDuration.WithLabelValues(string(typ)).Observe(time.Since(start).Seconds())
	ix.logger.Info().
		Str("type", string(typ)).
		Int("works", len(sourceIDs)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("similarity rebuild complete")

	return nil
}

// waitBatch applies rate pacing and cancellation between batches.
func (ix *Index) waitBatch(ctx context.Context) error {
	if ix.limiter == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	return ix.limiter.Wait(ctx)
}

// rebuildWork computes and persists one source work's neighbor list.
// Returns the number of edges persisted.
func (ix *Index) rebuildWork(ctx context.Context, snap *snapshot, typ recommend.SimilarityType, workID int64) (int, error) {
	edges := ix.neighbors(snap, typ, workID)
	if err := ix.store.ReplaceNeighbors(ctx, workID, typ, edges); err != nil {
		return 0, err
	}
	return len(edges), nil
}

// neighbors computes the pruned neighbor list for one source work.
// Cold-start works (no tags, no likes) get an empty list, never an error.
func (ix *Index) neighbors(snap *snapshot, typ recommend.SimilarityType, workID int64) []recommend.SimilarityEdge {
	var scored []recommend.SimilarityEdge

	switch typ {
	case recommend.SimilarityContent:
		feat, ok := snap.features[workID]
		if !ok || feat.empty() {
			return nil
		}
		for candidateID := range snap.contentCandidates(workID) {
			sim := contentSimilarity(feat, snap.features[candidateID], ix.cfg.Weights)
			if sim >= ix.cfg.MinSimilarity {
				scored = append(scored, recommend.SimilarityEdge{
					SourceWorkID: workID,
					TargetWorkID: candidateID,
					Type:         typ,
					Similarity:   sim,
				})
			}
		}

	case recommend.SimilarityCollaborative:
		for candidateID := range snap.likes.candidates(workID) {
			sim := snap.likes.similarity(workID, candidateID)
			if sim >= ix.cfg.MinSimilarity {
				scored = append(scored, recommend.SimilarityEdge{
					SourceWorkID: workID,
					TargetWorkID: candidateID,
					Type:         typ,
					Similarity:   sim,
				})
			}
		}
	}

	// Prune to the strongest K. Ties break on target ID for determinism.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].TargetWorkID < scored[j].TargetWorkID
	})
	if len(scored) > ix.cfg.TopK {
		scored = scored[:ix.cfg.TopK]
	}
	return scored
}

// snapshot is the in-memory rebuild input: per-work content features,
// inverted tag/author indexes and the like matrix.
type snapshot struct {
	workIDs  []int64
	features map[int64]*contentFeatures

	// tagWorks maps facet-qualified tokens to the works carrying them.
	tagWorks map[string][]int64

	// authorWorks maps author IDs to their works.
	authorWorks map[int64][]int64

	likes *likeMatrix
}

// loadSnapshot reads everything a rebuild of the given type needs.
func (ix *Index) loadSnapshot(ctx context.Context, typ recommend.SimilarityType) (*snapshot, error) {
	works, err := ix.store.GetAllWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load works: %w", err)
	}

	snap := &snapshot{
		features:    make(map[int64]*contentFeatures, len(works)),
		tagWorks:    make(map[string][]int64),
		authorWorks: make(map[int64][]int64),
	}

	for i := range works {
		w := &works[i]
		feat := &contentFeatures{
			workID:  w.ID,
			tagSet:  ix.extractor.Extract(*w),
			authors: make(map[int64]struct{}),
		}
		snap.features[w.ID] = feat
		snap.workIDs = append(snap.workIDs, w.ID)

		for facet, toks := range feat.tagSet {
			for _, tok := range toks {
				key := string(facet) + ":" + tok
				snap.tagWorks[key] = append(snap.tagWorks[key], w.ID)
			}
		}
	}
	sort.Slice(snap.workIDs, func(i, j int) bool { return snap.workIDs[i] < snap.workIDs[j] })

	if typ == recommend.SimilarityContent {
		links, err := ix.store.GetAuthorWorks(ctx)
		if err != nil {
			return nil, fmt.Errorf("load author links: %w", err)
		}
		for _, link := range links {
			// The schema has no FK on author_works and catalog ingestion
			// is external, so links can dangle. A dangling work must not
			// enter the candidate index; it has no features to score.
			feat, ok := snap.features[link.WorkID]
			if !ok {
				ix.logger.Warn().
					Int64("author_id", link.AuthorID).
					Int64("work_id", link.WorkID).
					Msg("skipping author link to unknown work")
				continue
			}
			feat.authors[link.AuthorID] = struct{}{}
			snap.authorWorks[link.AuthorID] = append(snap.authorWorks[link.AuthorID], link.WorkID)
		}
	}

	if typ == recommend.SimilarityCollaborative {
		interactions, err := ix.store.GetLikedInteractions(ctx)
		if err != nil {
			return nil, fmt.Errorf("load liked interactions: %w", err)
		}
		snap.likes = buildLikeMatrix(interactions)
	} else {
		snap.likes = buildLikeMatrix(nil)
	}

	return snap, nil
}

// sourceIDs returns the in-scope work IDs after the checkpoint, in
// ascending order.
//
//nolint:gocritic // hugeParam: scope passed by value for immutability
func (s *snapshot) sourceIDs(scope recommend.RebuildScope, afterID int64) []int64 {
	out := make([]int64, 0, len(s.workIDs))
	for _, id := range s.workIDs {
		if scope.FromWorkID > 0 && id < scope.FromWorkID {
			continue
		}
		if scope.ToWorkID > 0 && id > scope.ToWorkID {
			continue
		}
		if id <= afterID {
			continue
		}
		out = append(out, id)
	}
	return out
}

// contentCandidates returns works sharing at least one tag or author with
// the source work.
func (s *snapshot) contentCandidates(workID int64) map[int64]struct{} {
	feat := s.features[workID]
	if feat == nil {
		return nil
	}

	out := make(map[int64]struct{})
	for facet, toks := range feat.tagSet {
		for _, tok := range toks {
			for _, other := range s.tagWorks[string(facet)+":"+tok] {
				if other != workID {
					out[other] = struct{}{}
				}
			}
		}
	}
	for authorID := range feat.authors {
		for _, other := range s.authorWorks[authorID] {
			if other != workID {
				out[other] = struct{}{}
			}
		}
	}
	return out
}

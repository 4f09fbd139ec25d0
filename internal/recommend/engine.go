// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package recommend is the scoring engine's public boundary. The Engine
// orchestrates the subpackages: ingest validates and records
// interactions, profile folds them into per-user preference state,
// similarity maintains the work-neighbor index, scoring turns profile
// plus neighbors into persisted RecommendationScore rows.
package recommend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/metrics"
)

// EngineStore is the persistence surface the orchestrator itself needs.
// Lookups return (nil, nil) for absent rows.
type EngineStore interface {
	// GetUser returns a user by ID, or (nil, nil) when unknown.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// GetScore returns the persisted score for a pair, or (nil, nil) when
	// not yet computed.
	GetScore(ctx context.Context, userID, workID int64) (*Score, error)

	// GetTopScores returns a user's persisted scores, highest final score
	// first.
	GetTopScores(ctx context.Context, userID int64, limit int) ([]Score, error)

	// GetScoredWorkIDs returns the work IDs a user has persisted scores
	// for.
	GetScoredWorkIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Ingestor records interactions. Implemented by ingest.Ingestor.
type Ingestor interface {
	Record(ctx context.Context, inter Interaction) error
}

// Scorer computes and persists scores. Implemented by scoring.Scorer.
type Scorer interface {
	Score(ctx context.Context, userID, workID int64) (*Score, error)
	ScoreMany(ctx context.Context, userID int64, workIDs []int64) ([]Score, error)
}

// SimilarityRebuilder runs index rebuilds. Implemented by
// similarity.Index via engine-side progress adapters.
type SimilarityRebuilder interface {
	Rebuild(ctx context.Context, typ SimilarityType, scope RebuildScope, progress RebuildProgress) error
}

// RebuildProgress receives rebuild progress callbacks.
type RebuildProgress interface {
	WorkDone(pairsPersisted int)
}

// Engine is the top-level orchestrator.
type Engine struct {
	store    EngineStore
	ingestor Ingestor
	scorer   Scorer
	index    SimilarityRebuilder
	logger   zerolog.Logger

	mu       sync.Mutex
	running  map[SimilarityType]struct{}
	rebuilds map[string]*rebuildHandle
}

// NewEngine creates the orchestrator.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(store EngineStore, ingestor Ingestor, scorer Scorer, index SimilarityRebuilder, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		ingestor: ingestor,
		scorer:   scorer,
		index:    index,
		logger:   logger.With().Str("component", "engine").Logger(),
		running:  make(map[SimilarityType]struct{}),
		rebuilds: make(map[string]*rebuildHandle),
	}
}

// RecordInteraction ingests one like/dislike event. An empty
// clientInteractionID gets a generated UUID, losing client-side
// idempotency but keeping the row keyed.
func (e *Engine) RecordInteraction(ctx context.Context, userID, workID int64, liked bool, clientInteractionID string) error {
	if clientInteractionID == "" {
		clientInteractionID = uuid.NewString()
	}
	return e.ingestor.Record(ctx, Interaction{
		ID:     clientInteractionID,
		UserID: userID,
		WorkID: workID,
		Liked:  liked,
	})
}

// RequestScores returns scores for the candidate works, read-through: a
// persisted row is served as-is, a missing one is computed and persisted
// on the spot. Callers cannot distinguish "stale" from "fresh"; the
// UpdatedAt stamp is the only staleness signal.
func (e *Engine) RequestScores(ctx context.Context, userID int64, candidateWorkIDs []int64) ([]Score, error) {
	start := time.Now()
	if err := e.checkUser(ctx, userID); err != nil {
		return nil, err
	}

	out := make([]Score, 0, len(candidateWorkIDs))
	var missing []int64
	for _, workID := range candidateWorkIDs {
		score, err := e.store.GetScore(ctx, userID, workID)
		if err != nil {
			return nil, fmt.Errorf("load score (%d, %d): %w", userID, workID, err)
		}
		if score != nil {
			out = append(out, *score)
			continue
		}
		missing = append(missing, workID)
	}

	if len(missing) > 0 {
		computed, err := e.scorer.ScoreMany(ctx, userID, missing)
		if err != nil {
			return nil, err
		}
		out = append(out, computed...)
	}

	metrics.ScoringDuration.WithLabelValues("request").Observe(time.Since(start).Seconds())
	return out, nil
}

// TopRecommendations returns a user's highest-scoring persisted works.
// An empty result means "not yet computed", never an error.
func (e *Engine) TopRecommendations(ctx context.Context, userID int64, limit int) ([]Score, error) {
	if err := e.checkUser(ctx, userID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 20
	}
	scores, err := e.store.GetTopScores(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load top scores for user %d: %w", userID, err)
	}
	return scores, nil
}

// RescoreUser refreshes every persisted score row of one user. Invoked
// by the rescore consumer after interactions change the profile.
func (e *Engine) RescoreUser(ctx context.Context, userID int64) error {
	start := time.Now()
	workIDs, err := e.store.GetScoredWorkIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("load scored works for user %d: %w", userID, err)
	}
	if len(workIDs) == 0 {
		return nil
	}

	if _, err := e.scorer.ScoreMany(ctx, userID, workIDs); err != nil {
		return err
	}

	metrics.ScoringDuration.WithLabelValues("rescore").Observe(time.Since(start).Seconds())
	e.logger.Debug().
		Int64("user_id", userID).
		Int("works", len(workIDs)).
		Msg("user rescored")
	return nil
}

// checkUser surfaces an unknown user as a lookup failure.
func (e *Engine) checkUser(ctx context.Context, userID int64) error {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}
	return nil
}

// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/recommend"
)

// Rebuilder starts similarity rebuilds. Implemented by
// recommend.Engine.
type Rebuilder interface {
	RebuildSimilarity(ctx context.Context, typ recommend.SimilarityType, scope recommend.RebuildScope) (recommend.RebuildStatus, error)
}

// SimilarityRefreshService periodically kicks off full-catalog
// rebuilds of both similarity types. A rebuild already in flight is
// skipped, not queued.
type SimilarityRefreshService struct {
	rebuilder Rebuilder
	interval  time.Duration
	logger    zerolog.Logger
}

// NewSimilarityRefreshService creates the scheduler. A non-positive
// interval defaults to six hours.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSimilarityRefreshService(rebuilder Rebuilder, interval time.Duration, logger zerolog.Logger) *SimilarityRefreshService {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &SimilarityRefreshService{
		rebuilder: rebuilder,
		interval:  interval,
		logger:    logger.With().Str("component", "similarity_refresh").Logger(),
	}
}

// Serve implements suture.Service. The first refresh waits a full
// interval so startup is not dominated by an index rebuild.
func (s *SimilarityRefreshService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *SimilarityRefreshService) refresh(ctx context.Context) {
	for _, typ := range []recommend.SimilarityType{recommend.SimilarityContent, recommend.SimilarityCollaborative} {
		status, err := s.rebuilder.RebuildSimilarity(ctx, typ, recommend.RebuildScope{})
		switch {
		case errors.Is(err, recommend.ErrRebuildInProgress):
			s.logger.Info().Str("type", string(typ)).Msg("rebuild already running, skipping refresh")
		case err != nil:
			s.logger.Error().Err(err).Str("type", string(typ)).Msg("scheduled rebuild failed to start")
		default:
			s.logger.Info().Str("type", string(typ)).Str("rebuild_id", status.ID).Msg("scheduled rebuild started")
		}
	}
}

// String implements fmt.Stringer for suture log messages.
func (s *SimilarityRefreshService) String() string {
	return "similarity-refresh"
}

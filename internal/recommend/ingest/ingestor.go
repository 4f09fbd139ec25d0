// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package ingest accepts like/dislike events at the engine boundary.
//
// State machine per event:
//
//	received -> deduplicated (no-op) | validated -> persisted ->
//	profile-updated -> rescore-scheduled
//
// Validation failures reject the event with nothing persisted. The
// profile update is synchronous; rescoring is published to the event bus
// and must never affect the interaction's durability.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
)

// Store is the persistence surface ingestion needs. Lookups return
// (nil, nil) for absent rows.
type Store interface {
	// GetUser returns a user by ID, or (nil, nil) when unknown.
	GetUser(ctx context.Context, userID int64) (*recommend.User, error)

	// GetWork returns a work by ID, or (nil, nil) when unknown.
	GetWork(ctx context.Context, workID int64) (*recommend.Work, error)

	// GetWorkAuthors returns the authors of a work.
	GetWorkAuthors(ctx context.Context, workID int64) ([]recommend.Author, error)

	// InsertInteraction appends an interaction. Returns
	// ErrDuplicateInteraction when the ID is already persisted; the row
	// is append-only and immutable once written.
	InsertInteraction(ctx context.Context, inter *recommend.Interaction) error
}

// ProfileApplier folds a persisted interaction into the user's profile.
// Implemented by profile.Aggregator.
type ProfileApplier interface {
	Apply(ctx context.Context, inter recommend.Interaction, work recommend.Work, authors []recommend.Author) (*recommend.Profile, error)
}

// RescorePublisher schedules asynchronous rescoring for a user.
// Implemented by events.Bus.
type RescorePublisher interface {
	PublishRescore(userID int64) error
}

// Config contains ingestion tuning.
type Config struct {
	// DedupTTL is how long interaction IDs stay in the idempotency cache.
	// Default: 24h.
	DedupTTL time.Duration `json:"dedup_ttl"`

	// MaxIDLength bounds client-supplied interaction IDs. Default: 128.
	MaxIDLength int `json:"max_id_length"`
}

func (c *Config) applyDefaults() {
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
	if c.MaxIDLength < 1 {
		c.MaxIDLength = 128
	}
}

// Ingestor validates, deduplicates, and records interactions.
type Ingestor struct {
	store     Store
	deduper   Deduper
	profiles  ProfileApplier
	publisher RescorePublisher
	cfg       Config
	logger    zerolog.Logger
}

// NewIngestor creates an ingestor. publisher may be nil, disabling
// rescore scheduling.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewIngestor(store Store, deduper Deduper, profiles ProfileApplier, publisher RescorePublisher, cfg Config, logger zerolog.Logger) *Ingestor {
	cfg.applyDefaults()
	return &Ingestor{
		store:     store,
		deduper:   deduper,
		profiles:  profiles,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

// Record processes one like/dislike event. Duplicate IDs are a success
// no-op. Validation failures reject the event before anything is
// persisted. A zero CreatedAt is stamped with the current time.
func (ing *Ingestor) Record(ctx context.Context, inter recommend.Interaction) error {
	start := time.Now()
	err := ing.record(ctx, inter)

	switch {
	case err == nil:
		metrics.RecordIngest("accepted", time.Since(start))
	case errors.Is(err, recommend.ErrDuplicateInteraction):
		metrics.RecordIngest("duplicate", time.Since(start))
		// Recoverable: the event is already durable.
		return nil
	default:
		metrics.RecordIngest("rejected", time.Since(start))
	}
	return err
}

func (ing *Ingestor) record(ctx context.Context, inter recommend.Interaction) error {
	if err := ing.validate(inter); err != nil {
		return err
	}
	if inter.CreatedAt.IsZero() {
		inter.CreatedAt = time.Now().UTC()
	}

	// Cheap replay check first; the store's unique key is authoritative.
	marked := false
	if err := ing.deduper.CheckAndMark(ctx, inter.ID, ing.cfg.DedupTTL); err != nil {
		if errors.Is(err, recommend.ErrDuplicateInteraction) {
			metrics.DedupCacheHits.Inc()
			ing.logger.Debug().Str("interaction_id", inter.ID).Msg("duplicate caught by cache")
			return err
		}
		// Cache trouble must not block ingestion; fall through to the
		// store's unique constraint.
		ing.logger.Warn().Err(err).Msg("dedup cache check failed")
	} else {
		marked = true
	}

	if err := ing.persist(ctx, inter); err != nil {
		// The mark only means "durable". A rejected or failed event must
		// not leave it behind, or a client retry would be answered as a
		// duplicate while nothing was persisted. A duplicate from the
		// store's unique key is durable and keeps its mark.
		if marked && !errors.Is(err, recommend.ErrDuplicateInteraction) {
			if ferr := ing.deduper.Forget(ctx, inter.ID); ferr != nil {
				ing.logger.Warn().Str("interaction_id", inter.ID).Err(ferr).Msg("dedup cache unmark failed")
			}
		}
		return err
	}

	// Rescoring is best effort; the interaction is already durable.
	if ing.publisher != nil {
		if err := ing.publisher.PublishRescore(inter.UserID); err != nil {
			metrics.RescoreEventsDropped.Inc()
			ing.logger.Warn().
				Int64("user_id", inter.UserID).
				Err(err).
				Msg("rescore event dropped")
		}
	}

	ing.logger.Info().
		Str("interaction_id", inter.ID).
		Int64("user_id", inter.UserID).
		Int64("work_id", inter.WorkID).
		Bool("liked", inter.Liked).
		Msg("interaction recorded")

	return nil
}

// persist runs the fallible middle of ingestion: reference checks, the
// append, and the synchronous profile fold.
func (ing *Ingestor) persist(ctx context.Context, inter recommend.Interaction) error {
	user, err := ing.store.GetUser(ctx, inter.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", inter.UserID, err)
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", inter.UserID, recommend.ErrUnknownUser)
	}
	if user.Status != recommend.UserActive {
		return fmt.Errorf("user %d: %w", inter.UserID, recommend.ErrInactiveUser)
	}

	work, err := ing.store.GetWork(ctx, inter.WorkID)
	if err != nil {
		return fmt.Errorf("load work %d: %w", inter.WorkID, err)
	}
	if work == nil {
		return fmt.Errorf("work %d: %w", inter.WorkID, recommend.ErrUnknownWork)
	}

	authors, err := ing.store.GetWorkAuthors(ctx, inter.WorkID)
	if err != nil {
		return fmt.Errorf("load authors of work %d: %w", inter.WorkID, err)
	}

	if err := ing.store.InsertInteraction(ctx, &inter); err != nil {
		if errors.Is(err, recommend.ErrDuplicateInteraction) {
			return err
		}
		return fmt.Errorf("persist interaction %s: %w", inter.ID, err)
	}

	// Synchronous by contract: the caller observes a consistent profile
	// once Record returns.
	if _, err := ing.profiles.Apply(ctx, inter, *work, authors); err != nil {
		return fmt.Errorf("apply interaction %s to profile: %w", inter.ID, err)
	}

	return nil
}

// validate checks the event's shape before any I/O.
func (ing *Ingestor) validate(inter recommend.Interaction) error {
	if inter.ID == "" {
		return recommend.NewValidationError("id", "interaction id is required")
	}
	if len(inter.ID) > ing.cfg.MaxIDLength {
		return recommend.NewValidationError("id", fmt.Sprintf("interaction id exceeds %d characters", ing.cfg.MaxIDLength))
	}
	if inter.UserID <= 0 {
		return recommend.NewValidationError("user_id", "must be positive")
	}
	if inter.WorkID <= 0 {
		return recommend.NewValidationError("work_id", "must be positive")
	}
	return nil
}

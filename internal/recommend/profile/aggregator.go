// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package profile maintains per-user preference state from interaction
// events: tag-affinity maps, dislike maps, monotonic like/dislike counters
// and the preferred publish era.
//
// # Concurrency
//
// Updates for the same user are serialized on a striped lock keyed by user
// ID; updates for different users proceed in parallel. The aggregator
// assumes the caller (the ingestor) has already de-duplicated events.
package profile

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

// Store is the persistence surface the aggregator needs.
type Store interface {
	// GetProfile returns the user's profile, or (nil, nil) when none
	// exists yet.
	GetProfile(ctx context.Context, userID int64) (*recommend.Profile, error)

	// UpsertProfile creates or overwrites the profile row.
	UpsertProfile(ctx context.Context, p *recommend.Profile) error
}

// Config contains aggregator tuning.
type Config struct {
	// DecayHalfLife is the preference-weight half-life. Existing weights
	// are decayed by elapsed time since the last interaction before each
	// increment. Default: 720h (30 days).
	DecayHalfLife time.Duration

	// EraMajorityFraction is the share of decayed era mass a decade must
	// hold before it becomes the preferred era. Default: 0.4.
	EraMajorityFraction float64

	// LockStripes is the number of per-user lock stripes. Default: 64.
	LockStripes int
}

// Aggregator folds interactions into user profiles.
type Aggregator struct {
	store     Store
	extractor *tags.Extractor
	cfg       Config
	stripes   []sync.Mutex
	logger    zerolog.Logger
}

// NewAggregator creates a profile aggregator.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAggregator(store Store, extractor *tags.Extractor, cfg Config, logger zerolog.Logger) *Aggregator {
	if cfg.DecayHalfLife <= 0 {
		cfg.DecayHalfLife = 720 * time.Hour
	}
	if cfg.EraMajorityFraction <= 0 || cfg.EraMajorityFraction > 1 {
		cfg.EraMajorityFraction = 0.4
	}
	if cfg.LockStripes < 1 {
		cfg.LockStripes = 64
	}

	return &Aggregator{
		store:     store,
		extractor: extractor,
		cfg:       cfg,
		stripes:   make([]sync.Mutex, cfg.LockStripes),
		logger:    logger.With().Str("component", "profile").Logger(),
	}
}

// Apply folds one interaction into the user's profile and persists it.
// The work and its authors are supplied by the caller, which has already
// resolved them. Returns the updated profile.
//
//nolint:gocritic // hugeParam: interaction and work passed by value for immutability
func (a *Aggregator) Apply(ctx context.Context, inter recommend.Interaction, work recommend.Work, authors []recommend.Author) (*recommend.Profile, error) {
	lock := a.lockFor(inter.UserID)
	lock.Lock()
	defer lock.Unlock()

	prof, err := a.store.GetProfile(ctx, inter.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if prof == nil {
		// Lazy creation on first interaction.
		prof = recommend.NewProfile(inter.UserID)
	}

	a.decay(prof, inter.CreatedAt)

	set := a.extractor.Extract(work)
	if inter.Liked {
		a.applyLike(prof, set, work.FirstPublishDate)
	} else {
		a.applyDislike(prof, set, authors)
	}

	// lastInteractionAt is monotonic: out-of-order replays take max.
	if prof.LastInteractionAt == nil || inter.CreatedAt.After(*prof.LastInteractionAt) {
		ts := inter.CreatedAt
		prof.LastInteractionAt = &ts
	}

	if err := a.store.UpsertProfile(ctx, prof); err != nil {
		return nil, fmt.Errorf("persist profile: %w", err)
	}

	a.logger.Debug().
		Int64("user_id", inter.UserID).
		Int64("work_id", inter.WorkID).
		Bool("liked", inter.Liked).
		Int64("total_likes", prof.TotalLikes).
		Int64("total_dislikes", prof.TotalDislikes).
		Msg("profile updated")

	return prof, nil
}

// decay applies exponential recency decay to all weighted maps, based on
// the time elapsed since the previous interaction. Out-of-order events
// (dt <= 0) skip decay rather than amplifying weights.
func (a *Aggregator) decay(prof *recommend.Profile, now time.Time) {
	if prof.LastInteractionAt == nil {
		return
	}
	dt := now.Sub(*prof.LastInteractionAt)
	if dt <= 0 {
		return
	}

	factor := math.Pow(0.5, dt.Hours()/a.cfg.DecayHalfLife.Hours())
	for _, m := range []map[string]float64{
		prof.Subjects, prof.Places, prof.Times, prof.People, prof.Languages,
		prof.DislikedSubjects, prof.DislikedPlaces, prof.DislikedAuthors,
		prof.EraCounts,
	} {
		decayMap(m, factor)
	}
}

// decayMap scales all weights and drops entries that have decayed to
// noise, bounding map growth for long-lived users.
func decayMap(m map[string]float64, factor float64) {
	const minWeight = 1e-4
	for k, v := range m {
		v *= factor
		if v < minWeight {
			delete(m, k)
			continue
		}
		m[k] = v
	}
}

// applyLike increments preference maps and era counts for a liked work.
func (a *Aggregator) applyLike(prof *recommend.Profile, set tags.TagSet, firstPublishDate string) {
	prof.TotalLikes++

	increment(prof.Subjects, set[tags.FacetSubject])
	increment(prof.Places, set[tags.FacetPlace])
	increment(prof.Times, set[tags.FacetTime])
	increment(prof.People, set[tags.FacetPeople])
	increment(prof.Languages, set[tags.FacetLanguage])

	if era := tags.Era(firstPublishDate); era != "" {
		prof.EraCounts[era]++
	}
	prof.PreferredEra = a.preferredEra(prof.EraCounts)
}

// applyDislike increments the dislike maps for a disliked work.
func (a *Aggregator) applyDislike(prof *recommend.Profile, set tags.TagSet, authors []recommend.Author) {
	prof.TotalDislikes++

	increment(prof.DislikedSubjects, set[tags.FacetSubject])
	increment(prof.DislikedPlaces, set[tags.FacetPlace])
	for _, author := range authors {
		if name := tags.Normalize(author.Name); name != "" {
			prof.DislikedAuthors[name]++
		}
	}
}

func increment(m map[string]float64, tokens []string) {
	for _, tok := range tokens {
		m[tok]++
	}
}

// preferredEra returns the decade holding at least the configured majority
// fraction of decayed era mass, or "" when no clear majority exists.
func (a *Aggregator) preferredEra(eraCounts map[string]float64) string {
	var total, best float64
	var bestEra string
	for era, count := range eraCounts {
		total += count
		if count > best {
			best = count
			bestEra = era
		}
	}
	if total == 0 || best/total < a.cfg.EraMajorityFraction {
		return ""
	}
	return bestEra
}

// lockFor returns the lock stripe for a user ID.
func (a *Aggregator) lockFor(userID int64) *sync.Mutex {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return &a.stripes[h.Sum32()%uint32(len(a.stripes))]
}

// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package recommend

import (
	"time"
)

// SimilarityType names a variant of the work-to-work similarity relation.
// Multiple types can coexist for the same work pair without collision.
type SimilarityType string

const (
	// SimilarityContent is metadata-driven similarity (tags, shared authors).
	SimilarityContent SimilarityType = "content"
	// SimilarityCollaborative is co-like-driven similarity across users.
	SimilarityCollaborative SimilarityType = "collaborative"
)

// Valid reports whether t is a known similarity type.
func (t SimilarityType) Valid() bool {
	return t == SimilarityContent || t == SimilarityCollaborative
}

// UserStatus is the account status enum.
type UserStatus string

const (
	// UserActive is a user in good standing.
	UserActive UserStatus = "active"
	// UserInactive is a deactivated account. Inactive users cannot ingest
	// interactions but their history still feeds collaborative similarity.
	UserInactive UserStatus = "inactive"
)

// Work is a catalog item. Tag-bearing fields hold delimiter-separated
// strings as produced by catalog ingestion; the Tag Extractor owns turning
// them into normalized token sets.
type Work struct {
	// ID is the internal numeric identifier.
	ID int64 `json:"id"`

	// ExternalID is the stable catalog identifier, empty when unknown.
	ExternalID string `json:"external_id,omitempty"`

	// Title is required; everything else is best-effort catalog metadata.
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`

	// Delimited tag fields.
	Subjects          string `json:"subjects,omitempty"`
	SubjectPlaces     string `json:"subject_places,omitempty"`
	SubjectTimes      string `json:"subject_times,omitempty"`
	SubjectPeople     string `json:"subject_people,omitempty"`
	OriginalLanguages string `json:"original_languages,omitempty"`
	OtherTitles       string `json:"other_titles,omitempty"`

	// FirstPublishDate is an opaque string, not a parsed date.
	// Era extraction is best-effort only.
	FirstPublishDate string `json:"first_publish_date,omitempty"`
}

// Author is read-only bibliographic metadata.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AuthorWork links an author to a work, unique on (AuthorID, WorkID).
// Read-only input to the engine.
type AuthorWork struct {
	AuthorID int64  `json:"author_id"`
	WorkID   int64  `json:"work_id"`
	Role     string `json:"role,omitempty"`
}

// User is an account identity.
type User struct {
	ID     int64      `json:"id"`
	Email  string     `json:"email"`
	Status UserStatus `json:"status"`
}

// Interaction is an append-only like/dislike event. It is the system of
// record for profile recomputation; the ID doubles as an idempotency key.
type Interaction struct {
	// ID is client-generatable; duplicate IDs are ingested as no-ops.
	ID string `json:"id"`

	UserID int64 `json:"user_id"`
	WorkID int64 `json:"work_id"`

	// Liked is a strict binary; there is no neutral or skip state.
	Liked bool `json:"liked"`

	CreatedAt time.Time `json:"created_at"`
}

// Profile is a user's rolling preference state, maintained by the
// Profile Aggregator and consumed by the Scorer.
type Profile struct {
	UserID int64 `json:"user_id"`

	// Preference maps: tag -> decayed affinity weight, one per facet.
	Subjects  map[string]float64 `json:"subjects"`
	Places    map[string]float64 `json:"places"`
	Times     map[string]float64 `json:"times"`
	People    map[string]float64 `json:"people"`
	Languages map[string]float64 `json:"languages"`

	// Dislike maps, fed by liked=false interactions.
	DislikedSubjects map[string]float64 `json:"disliked_subjects"`
	DislikedPlaces   map[string]float64 `json:"disliked_places"`
	DislikedAuthors  map[string]float64 `json:"disliked_authors"`

	// EraCounts tracks decayed like counts per publish-era decade and
	// backs the PreferredEra majority rule.
	EraCounts map[string]float64 `json:"era_counts"`

	// PreferredEra is a decade label such as "1990s", empty until a
	// majority emerges.
	PreferredEra string `json:"preferred_era,omitempty"`

	// Monotonic counters. Never decremented, never negative.
	TotalLikes    int64 `json:"total_likes"`
	TotalDislikes int64 `json:"total_dislikes"`

	// LastInteractionAt only moves forward; out-of-order replays take max.
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}

// NewProfile returns an empty profile for a user. A fresh profile is the
// defined cold-start state, not an error.
func NewProfile(userID int64) *Profile {
	return &Profile{
		UserID:           userID,
		Subjects:         make(map[string]float64),
		Places:           make(map[string]float64),
		Times:            make(map[string]float64),
		People:           make(map[string]float64),
		Languages:        make(map[string]float64),
		DislikedSubjects: make(map[string]float64),
		DislikedPlaces:   make(map[string]float64),
		DislikedAuthors:  make(map[string]float64),
		EraCounts:        make(map[string]float64),
	}
}

// Score is the persisted scoring result for one (user, work) pair,
// unique on that compound key.
type Score struct {
	UserID int64 `json:"user_id"`
	WorkID int64 `json:"work_id"`

	ContentScore       float64 `json:"content_score"`
	CollaborativeScore float64 `json:"collaborative_score"`
	NoveltyBonus       float64 `json:"novelty_bonus"`

	// NegativeMultiplier is in (0, 1]; 1.0 means no penalty.
	NegativeMultiplier float64 `json:"negative_multiplier"`

	// FinalScore is exactly
	// (ContentScore + CollaborativeScore + NoveltyBonus) * NegativeMultiplier.
	FinalScore float64 `json:"final_score"`

	// Reasons is the explainability contract: human-readable justifications
	// derived from the same signals that produced the numeric components.
	Reasons []string `json:"reasons"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SimilarityEdge is a directed similarity row between two works,
// unique on (SourceWorkID, TargetWorkID, Type).
type SimilarityEdge struct {
	SourceWorkID int64          `json:"source_work_id"`
	TargetWorkID int64          `json:"target_work_id"`
	Type         SimilarityType `json:"type"`

	// Similarity is bounded to [0, 1].
	Similarity float64 `json:"similarity"`
}

// RebuildScope bounds a similarity rebuild to a work-ID range.
// Zero values mean the full catalog.
type RebuildScope struct {
	FromWorkID int64 `json:"from_work_id,omitempty"`
	ToWorkID   int64 `json:"to_work_id,omitempty"`
}

// RebuildStatus is a snapshot of a similarity rebuild's progress.
type RebuildStatus struct {
	ID             string         `json:"id"`
	Type           SimilarityType `json:"type"`
	Scope          RebuildScope   `json:"scope"`
	WorksProcessed int64          `json:"works_processed"`
	PairsPersisted int64          `json:"pairs_persisted"`
	Running        bool           `json:"running"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

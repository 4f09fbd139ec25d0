// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
)

// marshalTagMap serializes a tag-weight map at the storage edge. The
// engine only ever sees typed maps.
func marshalTagMap(m map[string]float64) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalTagMap(raw string) (map[string]float64, error) {
	m := make(map[string]float64)
	if raw == "" || raw == "{}" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpsertProfile writes a user's full profile state.
func (db *DB) UpsertProfile(ctx context.Context, prof *recommend.Profile) error {
	maps := []map[string]float64{
		prof.Subjects, prof.Places, prof.Times, prof.People, prof.Languages,
		prof.DislikedSubjects, prof.DislikedPlaces, prof.DislikedAuthors,
		prof.EraCounts,
	}
	serialized := make([]string, len(maps))
	for i, m := range maps {
		s, err := marshalTagMap(m)
		if err != nil {
			return fmt.Errorf("serialize profile map: %w", err)
		}
		serialized[i] = s
	}

	var lastAt any
	if prof.LastInteractionAt != nil {
		lastAt = *prof.LastInteractionAt
	}

	return db.execRetried(ctx, "upsert", "user_profiles", `
		INSERT INTO user_profiles (user_id, subjects, places, times, people,
			languages, disliked_subjects, disliked_places, disliked_authors,
			era_counts, preferred_era, total_likes, total_dislikes, last_interaction_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			subjects = excluded.subjects,
			places = excluded.places,
			times = excluded.times,
			people = excluded.people,
			languages = excluded.languages,
			disliked_subjects = excluded.disliked_subjects,
			disliked_places = excluded.disliked_places,
			disliked_authors = excluded.disliked_authors,
			era_counts = excluded.era_counts,
			preferred_era = excluded.preferred_era,
			total_likes = excluded.total_likes,
			total_dislikes = excluded.total_dislikes,
			last_interaction_at = excluded.last_interaction_at`,
		prof.UserID, serialized[0], serialized[1], serialized[2], serialized[3],
		serialized[4], serialized[5], serialized[6], serialized[7], serialized[8],
		prof.PreferredEra, prof.TotalLikes, prof.TotalDislikes, lastAt,
	)
}

// GetProfile returns a user's profile, or (nil, nil) when the user has
// never interacted.
func (db *DB) GetProfile(ctx context.Context, userID int64) (*recommend.Profile, error) {
	start := time.Now()
	var (
		raw    [9]string
		lastAt sql.NullTime
		prof   = recommend.Profile{UserID: userID}
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT subjects, places, times, people, languages,
			disliked_subjects, disliked_places, disliked_authors,
			era_counts, preferred_era, total_likes, total_dislikes, last_interaction_at
		FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6], &raw[7],
			&raw[8], &prof.PreferredEra, &prof.TotalLikes, &prof.TotalDislikes, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("get", "user_profiles", time.Since(start), nil)
		return nil, nil
	}
	metrics.RecordDBQuery("get", "user_profiles", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query profile for user %d: %w", userID, err)
	}

	targets := []*map[string]float64{
		&prof.Subjects, &prof.Places, &prof.Times, &prof.People, &prof.Languages,
		&prof.DislikedSubjects, &prof.DislikedPlaces, &prof.DislikedAuthors,
		&prof.EraCounts,
	}
	for i, target := range targets {
		m, unmarshalErr := unmarshalTagMap(raw[i])
		if unmarshalErr != nil {
			return nil, fmt.Errorf("deserialize profile map for user %d: %w", userID, unmarshalErr)
		}
		*target = m
	}
	if lastAt.Valid {
		t := lastAt.Time
		prof.LastInteractionAt = &t
	}
	return &prof, nil
}

// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"fmt"
)

// initSchema applies the schema. All columns are declared up front; the
// three compound uniques the engine relies on for idempotent upserts are
// enforced here: recommendation_scores(user_id, work_id),
// work_similarities(source_work_id, target_work_id, similarity_type),
// author_works(author_id, work_id).
func (db *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS works (
			id BIGINT PRIMARY KEY,
			external_id VARCHAR,
			title VARCHAR NOT NULL,
			subtitle VARCHAR,
			description VARCHAR,
			subjects VARCHAR,
			subject_places VARCHAR,
			subject_times VARCHAR,
			subject_people VARCHAR,
			original_languages VARCHAR,
			other_titles VARCHAR,
			first_publish_date VARCHAR
		)`,

		`CREATE TABLE IF NOT EXISTS authors (
			id BIGINT PRIMARY KEY,
			name VARCHAR NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS author_works (
			author_id BIGINT NOT NULL,
			work_id BIGINT NOT NULL,
			role VARCHAR,
			UNIQUE (author_id, work_id)
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			email VARCHAR NOT NULL UNIQUE,
			status VARCHAR NOT NULL DEFAULT 'active'
		)`,

		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id BIGINT PRIMARY KEY,
			subjects VARCHAR NOT NULL DEFAULT '{}',
			places VARCHAR NOT NULL DEFAULT '{}',
			times VARCHAR NOT NULL DEFAULT '{}',
			people VARCHAR NOT NULL DEFAULT '{}',
			languages VARCHAR NOT NULL DEFAULT '{}',
			disliked_subjects VARCHAR NOT NULL DEFAULT '{}',
			disliked_places VARCHAR NOT NULL DEFAULT '{}',
			disliked_authors VARCHAR NOT NULL DEFAULT '{}',
			era_counts VARCHAR NOT NULL DEFAULT '{}',
			preferred_era VARCHAR NOT NULL DEFAULT '',
			total_likes BIGINT NOT NULL DEFAULT 0,
			total_dislikes BIGINT NOT NULL DEFAULT 0,
			last_interaction_at TIMESTAMP
		)`,

		// Append-only; id is the client idempotency key.
		`CREATE TABLE IF NOT EXISTS user_interactions (
			id VARCHAR PRIMARY KEY,
			user_id BIGINT NOT NULL,
			work_id BIGINT NOT NULL,
			liked BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS recommendation_scores (
			user_id BIGINT NOT NULL,
			work_id BIGINT NOT NULL,
			content_score DOUBLE NOT NULL,
			collaborative_score DOUBLE NOT NULL,
			novelty_bonus DOUBLE NOT NULL,
			negative_multiplier DOUBLE NOT NULL,
			final_score DOUBLE NOT NULL,
			reasons VARCHAR NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, work_id)
		)`,

		`CREATE TABLE IF NOT EXISTS work_similarities (
			source_work_id BIGINT NOT NULL,
			target_work_id BIGINT NOT NULL,
			similarity_type VARCHAR NOT NULL,
			similarity DOUBLE NOT NULL,
			UNIQUE (source_work_id, target_work_id, similarity_type)
		)`,

		`CREATE TABLE IF NOT EXISTS similarity_checkpoints (
			similarity_type VARCHAR PRIMARY KEY,
			last_work_id BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_interactions_user ON user_interactions (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_work ON user_interactions (work_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_user ON recommendation_scores (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_similarities_source ON work_similarities (source_work_id, similarity_type)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

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

// UpsertScore overwrites the row keyed by (user_id, work_id). Repeated
// scoring never accumulates duplicate rows.
func (db *DB) UpsertScore(ctx context.Context, score *recommend.Score) error {
	reasons, err := json.Marshal(score.Reasons)
	if err != nil {
		return fmt.Errorf("serialize reasons: %w", err)
	}

	return db.execRetried(ctx, "upsert", "recommendation_scores", `
		INSERT INTO recommendation_scores (user_id, work_id, content_score,
			collaborative_score, novelty_bonus, negative_multiplier,
			final_score, reasons, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, work_id) DO UPDATE SET
			content_score = excluded.content_score,
			collaborative_score = excluded.collaborative_score,
			novelty_bonus = excluded.novelty_bonus,
			negative_multiplier = excluded.negative_multiplier,
			final_score = excluded.final_score,
			reasons = excluded.reasons,
			updated_at = excluded.updated_at`,
		score.UserID, score.WorkID, score.ContentScore, score.CollaborativeScore,
		score.NoveltyBonus, score.NegativeMultiplier, score.FinalScore,
		string(reasons), score.UpdatedAt,
	)
}

const scoreColumns = `user_id, work_id, content_score, collaborative_score,
	novelty_bonus, negative_multiplier, final_score, reasons, updated_at`

func scanScore(row interface{ Scan(...any) error }) (*recommend.Score, error) {
	var (
		s       recommend.Score
		reasons string
	)
	err := row.Scan(&s.UserID, &s.WorkID, &s.ContentScore, &s.CollaborativeScore,
		&s.NoveltyBonus, &s.NegativeMultiplier, &s.FinalScore, &reasons, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reasons != "" && reasons != "[]" {
		if err := json.Unmarshal([]byte(reasons), &s.Reasons); err != nil {
			return nil, fmt.Errorf("deserialize reasons: %w", err)
		}
	}
	return &s, nil
}

// GetScore returns the persisted score for a pair, or (nil, nil) when
// not yet computed. Absence means "recompute or default", never an
// error.
func (db *DB) GetScore(ctx context.Context, userID, workID int64) (*recommend.Score, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+scoreColumns+` FROM recommendation_scores WHERE user_id = ? AND work_id = ?`,
		userID, workID)
	score, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		score = nil
	}
	metrics.RecordDBQuery("get", "recommendation_scores", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query score (%d, %d): %w", userID, workID, err)
	}
	return score, nil
}

// GetTopScores returns a user's persisted scores, highest final score
// first, ties broken by work ID for stable output.
func (db *DB) GetTopScores(ctx context.Context, userID int64, limit int) ([]recommend.Score, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+scoreColumns+` FROM recommendation_scores
		WHERE user_id = ? ORDER BY final_score DESC, work_id LIMIT ?`,
		userID, limit)
	metrics.RecordDBQuery("list", "recommendation_scores", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query top scores for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []recommend.Score
	for rows.Next() {
		score, scanErr := scanScore(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan score: %w", scanErr)
		}
		out = append(out, *score)
	}
	return out, rows.Err()
}

// GetScoredWorkIDs returns the work IDs a user has persisted scores for.
func (db *DB) GetScoredWorkIDs(ctx context.Context, userID int64) ([]int64, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT work_id FROM recommendation_scores WHERE user_id = ? ORDER BY work_id`,
		userID)
	metrics.RecordDBQuery("list", "recommendation_scores", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query scored works for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var workID int64
		if scanErr := rows.Scan(&workID); scanErr != nil {
			return nil, fmt.Errorf("scan work id: %w", scanErr)
		}
		out = append(out, workID)
	}
	return out, rows.Err()
}

// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
)

// InsertInteraction appends one interaction. The primary key on the
// client-supplied ID is the authoritative idempotency guard: a replay
// surfaces as ErrDuplicateInteraction, never a second row.
func (db *DB) InsertInteraction(ctx context.Context, inter *recommend.Interaction) error {
	start := time.Now()
	err := db.withRetry(ctx, func() error {
		_, execErr := db.conn.ExecContext(ctx, `
			INSERT INTO user_interactions (id, user_id, work_id, liked, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			inter.ID, inter.UserID, inter.WorkID, inter.Liked, inter.CreatedAt)
		return execErr
	})
	metrics.RecordDBQuery("insert", "user_interactions", time.Since(start), err)
	if err != nil {
		if isDuplicateKey(err) {
			return recommend.ErrDuplicateInteraction
		}
		return fmt.Errorf("insert interaction %s: %w", inter.ID, err)
	}
	return nil
}

// GetLikedInteractions returns every liked=true interaction; input to
// collaborative similarity rebuilds.
func (db *DB) GetLikedInteractions(ctx context.Context) ([]recommend.Interaction, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, work_id, liked, created_at
		FROM user_interactions WHERE liked ORDER BY created_at`)
	metrics.RecordDBQuery("list", "user_interactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query liked interactions: %w", err)
	}
	defer rows.Close()

	var out []recommend.Interaction
	for rows.Next() {
		var inter recommend.Interaction
		if scanErr := rows.Scan(&inter.ID, &inter.UserID, &inter.WorkID, &inter.Liked, &inter.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan interaction: %w", scanErr)
		}
		out = append(out, inter)
	}
	return out, rows.Err()
}

// GetInteractedWorkIDs returns the distinct work IDs one user has
// interacted with, split by liked flag, ordered by work ID.
func (db *DB) GetInteractedWorkIDs(ctx context.Context, userID int64, liked bool) ([]int64, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT work_id FROM user_interactions
		WHERE user_id = ? AND liked = ? ORDER BY work_id`, userID, liked)
	metrics.RecordDBQuery("list", "user_interactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query interacted works for user %d: %w", userID, err)
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

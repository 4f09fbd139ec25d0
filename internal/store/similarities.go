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

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
)

// ReplaceNeighbors atomically replaces one source work's neighbor list
// for a similarity type. Delete-then-insert in a transaction keeps the
// unique (source, target, type) key an idempotent rebuild target.
func (db *DB) ReplaceNeighbors(ctx context.Context, sourceWorkID int64, typ recommend.SimilarityType, edges []recommend.SimilarityEdge) error {
	start := time.Now()
	err := db.withRetry(ctx, func() error {
		tx, txErr := db.conn.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		if _, txErr = tx.ExecContext(ctx,
			`DELETE FROM work_similarities WHERE source_work_id = ? AND similarity_type = ?`,
			sourceWorkID, string(typ)); txErr != nil {
			return txErr
		}
		for i := range edges {
			edge := &edges[i]
			if _, txErr = tx.ExecContext(ctx, `
				INSERT INTO work_similarities (source_work_id, target_work_id, similarity_type, similarity)
				VALUES (?, ?, ?, ?)`,
				edge.SourceWorkID, edge.TargetWorkID, string(typ), edge.Similarity); txErr != nil {
				return txErr
			}
		}
		return tx.Commit()
	})
	metrics.RecordDBQuery("replace", "work_similarities", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("replace neighbors of work %d: %w", sourceWorkID, err)
	}
	return nil
}

// GetNeighbors returns a work's neighbor list for one similarity type,
// strongest first.
func (db *DB) GetNeighbors(ctx context.Context, workID int64, typ recommend.SimilarityType) ([]recommend.SimilarityEdge, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT source_work_id, target_work_id, similarity_type, similarity
		FROM work_similarities
		WHERE source_work_id = ? AND similarity_type = ?
		ORDER BY similarity DESC, target_work_id`,
		workID, string(typ))
	metrics.RecordDBQuery("list", "work_similarities", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query neighbors of work %d: %w", workID, err)
	}
	defer rows.Close()

	var out []recommend.SimilarityEdge
	for rows.Next() {
		var (
			edge recommend.SimilarityEdge
			typ  string
		)
		if scanErr := rows.Scan(&edge.SourceWorkID, &edge.TargetWorkID, &typ, &edge.Similarity); scanErr != nil {
			return nil, fmt.Errorf("scan similarity edge: %w", scanErr)
		}
		edge.Type = recommend.SimilarityType(typ)
		out = append(out, edge)
	}
	return out, rows.Err()
}

// GetRebuildCheckpoint returns the last fully processed work ID for a
// similarity type, or 0 when no rebuild is pending.
func (db *DB) GetRebuildCheckpoint(ctx context.Context, typ recommend.SimilarityType) (int64, error) {
	start := time.Now()
	var lastWorkID int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT last_work_id FROM similarity_checkpoints WHERE similarity_type = ?`,
		string(typ)).Scan(&lastWorkID)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("get", "similarity_checkpoints", time.Since(start), nil)
		return 0, nil
	}
	metrics.RecordDBQuery("get", "similarity_checkpoints", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("query checkpoint for %s: %w", typ, err)
	}
	return lastWorkID, nil
}

// SetRebuildCheckpoint records the last fully processed work ID.
func (db *DB) SetRebuildCheckpoint(ctx context.Context, typ recommend.SimilarityType, lastWorkID int64) error {
	return db.execRetried(ctx, "upsert", "similarity_checkpoints", `
		INSERT INTO similarity_checkpoints (similarity_type, last_work_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (similarity_type) DO UPDATE SET
			last_work_id = excluded.last_work_id,
			updated_at = excluded.updated_at`,
		string(typ), lastWorkID, time.Now().UTC(),
	)
}

// ClearRebuildCheckpoint removes the checkpoint after a completed
// rebuild.
func (db *DB) ClearRebuildCheckpoint(ctx context.Context, typ recommend.SimilarityType) error {
	return db.execRetried(ctx, "delete", "similarity_checkpoints",
		`DELETE FROM similarity_checkpoints WHERE similarity_type = ?`, string(typ))
}

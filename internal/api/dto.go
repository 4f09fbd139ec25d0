// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"github.com/shelfwise/shelfwise/internal/recommend"
)

// interactionRequest is the POST /api/v1/interactions body. ID is the
// client's idempotency key; omitting it forfeits replay protection.
type interactionRequest struct {
	ID     string `json:"id" validate:"omitempty,max=128"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	WorkID int64  `json:"work_id" validate:"required,gt=0"`
	Liked  *bool  `json:"liked" validate:"required"`
}

// scoresRequest is the POST /api/v1/users/{userID}/scores body.
type scoresRequest struct {
	WorkIDs []int64 `json:"work_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

// scoresResponse wraps the scored pairs.
type scoresResponse struct {
	Scores []recommend.Score `json:"scores"`
}

// rebuildRequest is the POST /api/v1/similarity/rebuilds body.
type rebuildRequest struct {
	Type       string `json:"type" validate:"required,oneof=content collaborative"`
	FromWorkID int64  `json:"from_work_id" validate:"omitempty,gt=0"`
	ToWorkID   int64  `json:"to_work_id" validate:"omitempty,gt=0"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse acknowledges writes without a payload.
type statusResponse struct {
	Status string `json:"status"`
}

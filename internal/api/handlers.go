// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package api is the HTTP surface: interaction ingestion, score
// requests, recommendation listings, similarity rebuild control, and
// health probes. All payloads are JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/recommend"
)

// Pinger is the storage liveness probe for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler carries the API's dependencies.
type Handler struct {
	engine   *recommend.Engine
	pinger   Pinger
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler creates the handler set.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(engine *recommend.Engine, pinger Pinger, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		pinger:   pinger,
		validate: validator.New(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// RecordInteraction handles POST /api/v1/interactions.
func (h *Handler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.engine.RecordInteraction(r.Context(), req.UserID, req.WorkID, *req.Liked, req.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, statusResponse{Status: "recorded"})
}

// RequestScores handles POST /api/v1/users/{userID}/scores.
func (h *Handler) RequestScores(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	var req scoresRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	scores, err := h.engine.RequestScores(r.Context(), userID, req.WorkIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, scoresResponse{Scores: scores})
}

// TopRecommendations handles GET /api/v1/users/{userID}/recommendations.
func (h *Handler) TopRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be in [1, 200]"})
			return
		}
		limit = parsed
	}

	scores, err := h.engine.TopRecommendations(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, scoresResponse{Scores: scores})
}

// StartRebuild handles POST /api/v1/similarity/rebuilds.
func (h *Handler) StartRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	status, err := h.engine.RebuildSimilarity(r.Context(),
		recommend.SimilarityType(req.Type),
		recommend.RebuildScope{FromWorkID: req.FromWorkID, ToWorkID: req.ToWorkID})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, status)
}

// RebuildStatus handles GET /api/v1/similarity/rebuilds/{id}.
func (h *Handler) RebuildStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.engine.RebuildStatusByID(id)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown rebuild"})
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// CancelRebuild handles DELETE /api/v1/similarity/rebuilds/{id}.
func (h *Handler) CancelRebuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.engine.CancelRebuild(id) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown rebuild"})
		return
	}
	h.writeJSON(w, http.StatusAccepted, statusResponse{Status: "cancelling"})
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// HealthReady handles GET /api/v1/health/ready; ready means storage
// answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userID must be a positive integer"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

// writeError maps engine errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recommend.ErrUnknownUser), errors.Is(err, recommend.ErrUnknownWork):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, recommend.ErrInactiveUser):
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, recommend.ErrRebuildInProgress):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case recommend.IsValidation(err):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("encode response failed")
	}
}

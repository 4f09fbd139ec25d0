// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package recommend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfwise/shelfwise/internal/metrics"
)

// rebuildHandle tracks one running (or finished) similarity rebuild.
// It implements RebuildProgress for the index's callbacks.
type rebuildHandle struct {
	mu     sync.Mutex
	status RebuildStatus
	cancel context.CancelFunc
}

// WorkDone implements RebuildProgress.
func (h *rebuildHandle) WorkDone(pairsPersisted int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.WorksProcessed++
	h.status.PairsPersisted += int64(pairsPersisted)
}

func (h *rebuildHandle) snapshot() RebuildStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *rebuildHandle) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Running = false
	h.status.FinishedAt = time.Now().UTC()
	if err != nil {
		h.status.LastError = err.Error()
	}
}

// RebuildSimilarity starts an asynchronous similarity rebuild and
// returns its progress handle. At most one rebuild per type runs at a
// time; a second request returns ErrRebuildInProgress. The rebuild
// detaches from the caller's context and runs until done or cancelled
// via CancelRebuild.
func (e *Engine) RebuildSimilarity(_ context.Context, typ SimilarityType, scope RebuildScope) (RebuildStatus, error) {
	if !typ.Valid() {
		return RebuildStatus{}, NewValidationError("similarity_type", "must be \"content\" or \"collaborative\"")
	}

	e.mu.Lock()
	if _, busy := e.running[typ]; busy {
		e.mu.Unlock()
		return RebuildStatus{}, ErrRebuildInProgress
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &rebuildHandle{
		status: RebuildStatus{
			ID:        uuid.NewString(),
			Type:      typ,
			Scope:     scope,
			Running:   true,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	e.running[typ] = struct{}{}
	e.rebuilds[handle.status.ID] = handle
	e.mu.Unlock()

	metrics.SimilarityRebuildsActive.Inc()
	go e.runRebuild(runCtx, typ, scope, handle)

	return handle.snapshot(), nil
}

func (e *Engine) runRebuild(ctx context.Context, typ SimilarityType, scope RebuildScope, handle *rebuildHandle) {
	defer metrics.SimilarityRebuildsActive.Dec()

	err := e.index.Rebuild(ctx, typ, scope, handle)
	handle.finish(err)

	e.mu.Lock()
	delete(e.running, typ)
	e.mu.Unlock()

	if err != nil {
		e.logger.Error().
			Str("type", string(typ)).
			Str("rebuild_id", handle.status.ID).
			Err(err).
			Msg("similarity rebuild failed")
		return
	}
	e.logger.Info().
		Str("type", string(typ)).
		Str("rebuild_id", handle.status.ID).
		Msg("similarity rebuild finished")
}

// RebuildStatusByID returns a rebuild's progress snapshot. Finished
// handles stay queryable for the process lifetime.
func (e *Engine) RebuildStatusByID(id string) (RebuildStatus, bool) {
	e.mu.Lock()
	handle, ok := e.rebuilds[id]
	e.mu.Unlock()
	if !ok {
		return RebuildStatus{}, false
	}
	return handle.snapshot(), true
}

// CancelRebuild stops a running rebuild. The persisted checkpoint
// remains, so a later rebuild of the same type resumes where this one
// stopped.
func (e *Engine) CancelRebuild(id string) bool {
	e.mu.Lock()
	handle, ok := e.rebuilds[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	handle.cancel()
	return true
}

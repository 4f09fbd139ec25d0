// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package similarity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

// mockStore implements Store in memory.
type mockStore struct {
	mu           sync.Mutex
	works        []recommend.Work
	authorLinks  []recommend.AuthorWork
	likes        []recommend.Interaction
	neighbors    map[int64][]recommend.SimilarityEdge
	checkpoints  map[recommend.SimilarityType]int64
	replaceCalls []int64
	failWorkID   int64 // ReplaceNeighbors fails for this source
}

func newMockStore() *mockStore {
	return &mockStore{
		neighbors:   make(map[int64][]recommend.SimilarityEdge),
		checkpoints: make(map[recommend.SimilarityType]int64),
	}
}

func (m *mockStore) GetAllWorks(context.Context) ([]recommend.Work, error) {
	return m.works, nil
}

func (m *mockStore) GetAuthorWorks(context.Context) ([]recommend.AuthorWork, error) {
	return m.authorLinks, nil
}

func (m *mockStore) GetLikedInteractions(context.Context) ([]recommend.Interaction, error) {
	return m.likes, nil
}

func (m *mockStore) ReplaceNeighbors(_ context.Context, sourceWorkID int64, _ recommend.SimilarityType, edges []recommend.SimilarityEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWorkID != 0 && sourceWorkID == m.failWorkID {
		return errors.New("replace failed")
	}
	m.replaceCalls = append(m.replaceCalls, sourceWorkID)
	m.neighbors[sourceWorkID] = edges
	return nil
}

func (m *mockStore) GetRebuildCheckpoint(_ context.Context, typ recommend.SimilarityType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[typ], nil
}

func (m *mockStore) SetRebuildCheckpoint(_ context.Context, typ recommend.SimilarityType, lastWorkID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[typ] = lastWorkID
	return nil
}

func (m *mockStore) ClearRebuildCheckpoint(_ context.Context, typ recommend.SimilarityType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, typ)
	return nil
}

// countingProgress records progress callbacks.
type countingProgress struct {
	mu    sync.Mutex
	works int
	pairs int
}

func (p *countingProgress) WorkDone(pairsPersisted int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.works++
	p.pairs += pairsPersisted
}

func testIndex(store Store, cfg Config) *Index {
	return NewIndex(store, tags.NewExtractor(tags.Config{}), cfg, zerolog.Nop())
}

func fantasyWork(id int64, subjects string) recommend.Work {
	return recommend.Work{ID: id, Title: "work", Subjects: subjects}
}

func TestRebuildContent(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy; adventure"),
		fantasyWork(2, "fantasy; adventure"),
		fantasyWork(3, "cooking"),
	}

	ix := testIndex(store, Config{})
	progress := &countingProgress{}
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, progress); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	if progress.works != 3 {
		t.Errorf("works processed = %d, want 3", progress.works)
	}

	// Works 1 and 2 are mutual neighbors, work 3 has none.
	edges := store.neighbors[1]
	if len(edges) != 1 || edges[0].TargetWorkID != 2 {
		t.Fatalf("neighbors of 1 = %v, want single edge to 2", edges)
	}
	if edges[0].Type != recommend.SimilarityContent {
		t.Errorf("edge type = %q, want content", edges[0].Type)
	}
	if edges[0].Similarity <= 0 || edges[0].Similarity > 1 {
		t.Errorf("similarity = %v, want in (0, 1]", edges[0].Similarity)
	}
	if got := store.neighbors[3]; len(got) != 0 {
		t.Errorf("neighbors of 3 = %v, want none", got)
	}

	// A completed rebuild clears its checkpoint.
	if cp := store.checkpoints[recommend.SimilarityContent]; cp != 0 {
		t.Errorf("checkpoint after completion = %d, want cleared", cp)
	}
}

func TestRebuildSharedAuthorOnly(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{
		{ID: 1, Title: "a"},
		{ID: 2, Title: "b"},
	}
	store.authorLinks = []recommend.AuthorWork{
		{AuthorID: 10, WorkID: 1},
		{AuthorID: 10, WorkID: 2},
	}

	ix := testIndex(store, Config{})
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	if edges := store.neighbors[1]; len(edges) != 1 || edges[0].TargetWorkID != 2 {
		t.Errorf("shared-author works not linked: %v", store.neighbors[1])
	}
}

func TestRebuildSkipsDanglingAuthorLink(t *testing.T) {
	// author_works has no FK and catalog ingestion is external, so a link
	// can reference a work the catalog never delivered. The rebuild must
	// drop it, not chase a work with no features.
	store := newMockStore()
	store.works = []recommend.Work{
		{ID: 1, Title: "a"},
		{ID: 2, Title: "b"},
	}
	store.authorLinks = []recommend.AuthorWork{
		{AuthorID: 7, WorkID: 1},
		{AuthorID: 7, WorkID: 2},
		{AuthorID: 7, WorkID: 99},
	}

	ix := testIndex(store, Config{})
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	edges := store.neighbors[1]
	if len(edges) != 1 || edges[0].TargetWorkID != 2 {
		t.Fatalf("neighbors of 1 = %v, want single edge to 2", edges)
	}
	for _, edge := range append(store.neighbors[1], store.neighbors[2]...) {
		if edge.TargetWorkID == 99 {
			t.Fatalf("dangling work 99 entered the neighbor list: %v", edge)
		}
	}
}

func TestRebuildColdStartWork(t *testing.T) {
	// A work with empty tag fields, no author links, and no interactions
	// produces no neighbor rows in either direction.
	store := newMockStore()
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy; adventure"),
		fantasyWork(2, "fantasy; adventure"),
		{ID: 3, Title: "bare"},
	}

	ix := testIndex(store, Config{})
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	if edges := store.neighbors[3]; len(edges) != 0 {
		t.Errorf("cold-start work has neighbors: %v", edges)
	}
	for _, source := range []int64{1, 2} {
		for _, edge := range store.neighbors[source] {
			if edge.TargetWorkID == 3 {
				t.Errorf("cold-start work appears as a target of %d", source)
			}
		}
	}
}

func TestRebuildThresholdAndTopK(t *testing.T) {
	store := newMockStore()
	// Source shares one of many subjects with each candidate; candidate 2
	// overlaps much more than candidate 3.
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy; adventure; magic; dragons"),
		fantasyWork(2, "fantasy; adventure; magic; dragons"),
		fantasyWork(3, "fantasy; cooking; travel; gardening; history; poetry; science"),
	}

	t.Run("threshold drops weak pairs", func(t *testing.T) {
		ix := testIndex(store, Config{MinSimilarity: 0.3})
		if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
		edges := store.neighbors[1]
		if len(edges) != 1 || edges[0].TargetWorkID != 2 {
			t.Errorf("neighbors of 1 = %v, want only strong edge to 2", edges)
		}
	})

	t.Run("topK prunes to strongest", func(t *testing.T) {
		ix := testIndex(store, Config{MinSimilarity: 0.01, TopK: 1})
		if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
		edges := store.neighbors[1]
		if len(edges) != 1 || edges[0].TargetWorkID != 2 {
			t.Errorf("topK=1 neighbors of 1 = %v, want strongest edge to 2", edges)
		}
	})
}

func TestRebuildCollaborative(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{{ID: 100}, {ID: 200}, {ID: 300}}
	store.likes = []recommend.Interaction{
		like(1, 100), like(1, 200),
		like(2, 100), like(2, 200),
		like(3, 300),
	}

	ix := testIndex(store, Config{})
	if err := ix.Rebuild(context.Background(), recommend.SimilarityCollaborative, recommend.RebuildScope{}, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	edges := store.neighbors[100]
	if len(edges) != 1 || edges[0].TargetWorkID != 200 {
		t.Fatalf("collaborative neighbors of 100 = %v, want edge to 200", edges)
	}
	if edges[0].Type != recommend.SimilarityCollaborative {
		t.Errorf("edge type = %q, want collaborative", edges[0].Type)
	}
	if got := store.neighbors[300]; len(got) != 0 {
		t.Errorf("isolated work got neighbors: %v", got)
	}
}

func TestRebuildScope(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy"),
		fantasyWork(2, "fantasy"),
		fantasyWork(3, "fantasy"),
	}

	ix := testIndex(store, Config{})
	scope := recommend.RebuildScope{FromWorkID: 2, ToWorkID: 2}
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, scope, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	if len(store.replaceCalls) != 1 || store.replaceCalls[0] != 2 {
		t.Errorf("replace calls = %v, want only work 2", store.replaceCalls)
	}
	// Out-of-scope works can still be targets of the in-scope source.
	if edges := store.neighbors[2]; len(edges) != 2 {
		t.Errorf("neighbors of 2 = %v, want edges to 1 and 3", edges)
	}
}

func TestRebuildResumesFromCheckpoint(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy"),
		fantasyWork(2, "fantasy"),
		fantasyWork(3, "fantasy"),
		fantasyWork(4, "fantasy"),
	}
	store.checkpoints[recommend.SimilarityContent] = 2

	ix := testIndex(store, Config{BatchSize: 1})
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	// Works at or below the checkpoint are skipped.
	if len(store.replaceCalls) != 2 || store.replaceCalls[0] != 3 || store.replaceCalls[1] != 4 {
		t.Errorf("replace calls = %v, want [3 4]", store.replaceCalls)
	}
}

func TestRebuildCancellation(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy"),
		fantasyWork(2, "fantasy"),
		fantasyWork(3, "fantasy"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := testIndex(store, Config{BatchSize: 1})
	err := ix.Rebuild(ctx, recommend.SimilarityContent, recommend.RebuildScope{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Rebuild() error = %v, want context.Canceled", err)
	}
	if len(store.replaceCalls) != 0 {
		t.Errorf("cancelled rebuild still processed works: %v", store.replaceCalls)
	}
}

func TestRebuildIsolatesWorkFailure(t *testing.T) {
	store := newMockStore()
	store.works = []recommend.Work{
		fantasyWork(1, "fantasy"),
		fantasyWork(2, "fantasy"),
		fantasyWork(3, "fantasy"),
	}
	store.failWorkID = 2

	ix := testIndex(store, Config{})
	progress := &countingProgress{}
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, progress); err != nil {
		t.Fatalf("Rebuild() error = %v, want per-work failure isolated", err)
	}

	if progress.works != 2 {
		t.Errorf("works processed = %d, want 2 (failed work excluded)", progress.works)
	}
	if _, ok := store.neighbors[1]; !ok {
		t.Error("work 1 not processed despite work 2 failing")
	}
}

func TestRebuildInvalidType(t *testing.T) {
	ix := testIndex(newMockStore(), Config{})
	err := ix.Rebuild(context.Background(), recommend.SimilarityType("bogus"), recommend.RebuildScope{}, nil)
	if !recommend.IsValidation(err) {
		t.Fatalf("Rebuild() error = %v, want validation error", err)
	}
}

func TestRebuildEmptyCatalog(t *testing.T) {
	ix := testIndex(newMockStore(), Config{})
	if err := ix.Rebuild(context.Background(), recommend.SimilarityContent, recommend.RebuildScope{}, nil); err != nil {
		t.Fatalf("Rebuild() on empty catalog error = %v", err)
	}
}

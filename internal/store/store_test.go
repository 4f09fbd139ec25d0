// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/recommend"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: ":memory:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWorkRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	work := &recommend.Work{
		ID:               1,
		ExternalID:       "OL1W",
		Title:            "The Hobbit",
		Subjects:         "fantasy; adventure",
		FirstPublishDate: "1937",
	}
	if err := db.UpsertWork(ctx, work); err != nil {
		t.Fatalf("UpsertWork() error = %v", err)
	}

	got, err := db.GetWork(ctx, 1)
	if err != nil {
		t.Fatalf("GetWork() error = %v", err)
	}
	if got == nil || got.Title != "The Hobbit" || got.Subjects != "fantasy; adventure" {
		t.Errorf("GetWork() = %+v, want round-tripped work", got)
	}

	// Re-sync mutates tag fields in place, no second row.
	work.Subjects = "fantasy; adventure; dragons"
	if err := db.UpsertWork(ctx, work); err != nil {
		t.Fatalf("re-upsert error = %v", err)
	}
	all, err := db.GetAllWorks(ctx)
	if err != nil {
		t.Fatalf("GetAllWorks() error = %v", err)
	}
	if len(all) != 1 || all[0].Subjects != "fantasy; adventure; dragons" {
		t.Errorf("GetAllWorks() = %+v, want single updated row", all)
	}

	if missing, err := db.GetWork(ctx, 404); err != nil || missing != nil {
		t.Errorf("GetWork(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestAuthorsAndLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertWork(ctx, &recommend.Work{ID: 1, Title: "w"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertAuthor(ctx, &recommend.Author{ID: 10, Name: "J.R.R. Tolkien"}); err != nil {
		t.Fatalf("UpsertAuthor() error = %v", err)
	}
	if err := db.LinkAuthorWork(ctx, &recommend.AuthorWork{AuthorID: 10, WorkID: 1}); err != nil {
		t.Fatalf("LinkAuthorWork() error = %v", err)
	}
	// Relinking updates in place.
	if err := db.LinkAuthorWork(ctx, &recommend.AuthorWork{AuthorID: 10, WorkID: 1, Role: "author"}); err != nil {
		t.Fatalf("relink error = %v", err)
	}

	authors, err := db.GetWorkAuthors(ctx, 1)
	if err != nil {
		t.Fatalf("GetWorkAuthors() error = %v", err)
	}
	if len(authors) != 1 || authors[0].Name != "J.R.R. Tolkien" {
		t.Errorf("GetWorkAuthors() = %v, want single Tolkien", authors)
	}

	links, err := db.GetAuthorWorks(ctx)
	if err != nil {
		t.Fatalf("GetAuthorWorks() error = %v", err)
	}
	if len(links) != 1 || links[0].Role != "author" {
		t.Errorf("GetAuthorWorks() = %v, want single updated link", links)
	}
}

func TestInsertInteractionDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inter := &recommend.Interaction{ID: "evt-1", UserID: 1, WorkID: 2, Liked: true, CreatedAt: time.Now().UTC()}
	if err := db.InsertInteraction(ctx, inter); err != nil {
		t.Fatalf("InsertInteraction() error = %v", err)
	}
	if err := db.InsertInteraction(ctx, inter); !errors.Is(err, recommend.ErrDuplicateInteraction) {
		t.Fatalf("replay error = %v, want ErrDuplicateInteraction", err)
	}

	liked, err := db.GetLikedInteractions(ctx)
	if err != nil {
		t.Fatalf("GetLikedInteractions() error = %v", err)
	}
	if len(liked) != 1 {
		t.Errorf("liked rows = %d, want 1", len(liked))
	}
}

func TestGetInteractedWorkIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	events := []recommend.Interaction{
		{ID: "a", UserID: 1, WorkID: 10, Liked: true, CreatedAt: now},
		{ID: "b", UserID: 1, WorkID: 20, Liked: true, CreatedAt: now},
		{ID: "c", UserID: 1, WorkID: 30, Liked: false, CreatedAt: now},
		{ID: "d", UserID: 2, WorkID: 40, Liked: true, CreatedAt: now},
	}
	for i := range events {
		if err := db.InsertInteraction(ctx, &events[i]); err != nil {
			t.Fatal(err)
		}
	}

	liked, err := db.GetInteractedWorkIDs(ctx, 1, true)
	if err != nil {
		t.Fatalf("GetInteractedWorkIDs(liked) error = %v", err)
	}
	if len(liked) != 2 || liked[0] != 10 || liked[1] != 20 {
		t.Errorf("liked works = %v, want [10 20]", liked)
	}

	disliked, err := db.GetInteractedWorkIDs(ctx, 1, false)
	if err != nil {
		t.Fatalf("GetInteractedWorkIDs(disliked) error = %v", err)
	}
	if len(disliked) != 1 || disliked[0] != 30 {
		t.Errorf("disliked works = %v, want [30]", disliked)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if missing, err := db.GetProfile(ctx, 1); err != nil || missing != nil {
		t.Fatalf("GetProfile(missing) = %v, %v, want nil, nil", missing, err)
	}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	prof := recommend.NewProfile(1)
	prof.Subjects["fantasy"] = 2.5
	prof.DislikedAuthors["grim author"] = 1.0
	prof.EraCounts["1990s"] = 3
	prof.PreferredEra = "1990s"
	prof.TotalLikes = 3
	prof.TotalDislikes = 1
	prof.LastInteractionAt = &at

	if err := db.UpsertProfile(ctx, prof); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}

	got, err := db.GetProfile(ctx, 1)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Subjects["fantasy"] != 2.5 || got.DislikedAuthors["grim author"] != 1.0 {
		t.Errorf("maps = %+v, want round-tripped weights", got)
	}
	if got.PreferredEra != "1990s" || got.TotalLikes != 3 || got.TotalDislikes != 1 {
		t.Errorf("scalars = %+v, want round-tripped values", got)
	}
	if got.LastInteractionAt == nil || !got.LastInteractionAt.Equal(at) {
		t.Errorf("LastInteractionAt = %v, want %v", got.LastInteractionAt, at)
	}

	// Upsert overwrites the single row.
	prof.TotalLikes = 4
	if err := db.UpsertProfile(ctx, prof); err != nil {
		t.Fatalf("re-upsert error = %v", err)
	}
	got, _ = db.GetProfile(ctx, 1)
	if got.TotalLikes != 4 {
		t.Errorf("TotalLikes after upsert = %d, want 4", got.TotalLikes)
	}
}

func TestScoreUpsertUniqueness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	score := &recommend.Score{
		UserID: 1, WorkID: 2,
		ContentScore: 0.4, NegativeMultiplier: 1, FinalScore: 0.4,
		Reasons:   []string{"matches your interest in fantasy"},
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.UpsertScore(ctx, score); err != nil {
		t.Fatalf("UpsertScore() error = %v", err)
	}
	score.FinalScore = 0.7
	if err := db.UpsertScore(ctx, score); err != nil {
		t.Fatalf("re-upsert error = %v", err)
	}

	got, err := db.GetScore(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetScore() error = %v", err)
	}
	if got.FinalScore != 0.7 {
		t.Errorf("FinalScore = %v, want overwritten 0.7", got.FinalScore)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != "matches your interest in fantasy" {
		t.Errorf("Reasons = %v, want round trip", got.Reasons)
	}

	ids, err := db.GetScoredWorkIDs(ctx, 1)
	if err != nil {
		t.Fatalf("GetScoredWorkIDs() error = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("scored works = %v, want single row despite re-upsert", ids)
	}

	if missing, err := db.GetScore(ctx, 1, 404); err != nil || missing != nil {
		t.Errorf("GetScore(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestGetTopScoresOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, s := range []recommend.Score{
		{UserID: 1, WorkID: 10, NegativeMultiplier: 1, FinalScore: 0.2, UpdatedAt: now},
		{UserID: 1, WorkID: 20, NegativeMultiplier: 1, FinalScore: 0.9, UpdatedAt: now},
		{UserID: 1, WorkID: 30, NegativeMultiplier: 1, FinalScore: 0.5, UpdatedAt: now},
		{UserID: 2, WorkID: 10, NegativeMultiplier: 1, FinalScore: 0.99, UpdatedAt: now},
	} {
		score := s
		if err := db.UpsertScore(ctx, &score); err != nil {
			t.Fatal(err)
		}
	}

	top, err := db.GetTopScores(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetTopScores() error = %v", err)
	}
	if len(top) != 2 || top[0].WorkID != 20 || top[1].WorkID != 30 {
		t.Errorf("top = %v, want works 20 then 30", top)
	}
}

func TestReplaceNeighborsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	edges := []recommend.SimilarityEdge{
		{SourceWorkID: 1, TargetWorkID: 2, Type: recommend.SimilarityContent, Similarity: 0.8},
		{SourceWorkID: 1, TargetWorkID: 3, Type: recommend.SimilarityContent, Similarity: 0.3},
	}
	if err := db.ReplaceNeighbors(ctx, 1, recommend.SimilarityContent, edges); err != nil {
		t.Fatalf("ReplaceNeighbors() error = %v", err)
	}
	// Recompute shrinks the list; stale edges must vanish.
	if err := db.ReplaceNeighbors(ctx, 1, recommend.SimilarityContent, edges[:1]); err != nil {
		t.Fatalf("second ReplaceNeighbors() error = %v", err)
	}

	got, err := db.GetNeighbors(ctx, 1, recommend.SimilarityContent)
	if err != nil {
		t.Fatalf("GetNeighbors() error = %v", err)
	}
	if len(got) != 1 || got[0].TargetWorkID != 2 {
		t.Errorf("neighbors = %v, want single edge to 2", got)
	}

	// Types coexist on the same pair without collision.
	collab := []recommend.SimilarityEdge{
		{SourceWorkID: 1, TargetWorkID: 2, Type: recommend.SimilarityCollaborative, Similarity: 0.5},
	}
	if err := db.ReplaceNeighbors(ctx, 1, recommend.SimilarityCollaborative, collab); err != nil {
		t.Fatalf("collaborative ReplaceNeighbors() error = %v", err)
	}
	content, _ := db.GetNeighbors(ctx, 1, recommend.SimilarityContent)
	if len(content) != 1 {
		t.Errorf("content neighbors disturbed by collaborative write: %v", content)
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if cp, err := db.GetRebuildCheckpoint(ctx, recommend.SimilarityContent); err != nil || cp != 0 {
		t.Fatalf("initial checkpoint = %d, %v, want 0, nil", cp, err)
	}

	if err := db.SetRebuildCheckpoint(ctx, recommend.SimilarityContent, 250); err != nil {
		t.Fatalf("SetRebuildCheckpoint() error = %v", err)
	}
	if err := db.SetRebuildCheckpoint(ctx, recommend.SimilarityContent, 500); err != nil {
		t.Fatalf("advance error = %v", err)
	}
	if cp, _ := db.GetRebuildCheckpoint(ctx, recommend.SimilarityContent); cp != 500 {
		t.Errorf("checkpoint = %d, want 500", cp)
	}

	if err := db.ClearRebuildCheckpoint(ctx, recommend.SimilarityContent); err != nil {
		t.Fatalf("ClearRebuildCheckpoint() error = %v", err)
	}
	if cp, _ := db.GetRebuildCheckpoint(ctx, recommend.SimilarityContent); cp != 0 {
		t.Errorf("cleared checkpoint = %d, want 0", cp)
	}
}

func TestUserRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUser(ctx, &recommend.User{ID: 1, Email: "reader@example.com", Status: recommend.UserActive}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	got, err := db.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got == nil || got.Email != "reader@example.com" || got.Status != recommend.UserActive {
		t.Errorf("GetUser() = %+v, want round trip", got)
	}
	if missing, err := db.GetUser(ctx, 404); err != nil || missing != nil {
		t.Errorf("GetUser(missing) = %v, %v, want nil, nil", missing, err)
	}
}

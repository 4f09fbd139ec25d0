// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package profile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
)

// mockStore implements Store with an in-memory profile map.
type mockStore struct {
	mu       sync.Mutex
	profiles map[int64]*recommend.Profile
	getErr   error
	putErr   error
}

func newMockStore() *mockStore {
	return &mockStore{profiles: make(map[int64]*recommend.Profile)}
}

func (m *mockStore) GetProfile(ctx context.Context, userID int64) (*recommend.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.profiles[userID], nil
}

func (m *mockStore) UpsertProfile(ctx context.Context, p *recommend.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.profiles[p.UserID] = p
	return nil
}

func newTestAggregator(store Store, cfg Config) *Aggregator {
	return NewAggregator(store, tags.NewExtractor(tags.Config{}), cfg, zerolog.Nop())
}

func testInteraction(userID, workID int64, liked bool, at time.Time) recommend.Interaction {
	return recommend.Interaction{
		ID:        "int-1",
		UserID:    userID,
		WorkID:    workID,
		Liked:     liked,
		CreatedAt: at,
	}
}

func TestApplyLikeBuildsPreferences(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	work := recommend.Work{
		ID:               10,
		Title:            "The Hobbit",
		Subjects:         "fantasy;adventure",
		SubjectPlaces:    "middle-earth",
		FirstPublishDate: "1937",
	}

	prof, err := agg.Apply(context.Background(), testInteraction(1, 10, true, now), work, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if prof.TotalLikes != 1 || prof.TotalDislikes != 0 {
		t.Errorf("counters = %d/%d, want 1/0", prof.TotalLikes, prof.TotalDislikes)
	}
	if prof.Subjects["fantasy"] != 1 || prof.Subjects["adventure"] != 1 {
		t.Errorf("subject weights = %v", prof.Subjects)
	}
	if prof.Places["middle-earth"] != 1 {
		t.Errorf("place weights = %v", prof.Places)
	}
	if prof.EraCounts["1930s"] != 1 {
		t.Errorf("era counts = %v", prof.EraCounts)
	}
	if prof.PreferredEra != "1930s" {
		t.Errorf("preferred era = %q, want 1930s", prof.PreferredEra)
	}
	if prof.LastInteractionAt == nil || !prof.LastInteractionAt.Equal(now) {
		t.Errorf("lastInteractionAt = %v, want %v", prof.LastInteractionAt, now)
	}
}

func TestApplyDislikeFeedsDislikeMaps(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{})
	now := time.Now()

	work := recommend.Work{ID: 11, Title: "Bad Book", Subjects: "horror", SubjectPlaces: "transylvania"}
	authors := []recommend.Author{{ID: 5, Name: "Ann Author"}}

	prof, err := agg.Apply(context.Background(), testInteraction(2, 11, false, now), work, authors)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if prof.TotalDislikes != 1 || prof.TotalLikes != 0 {
		t.Errorf("counters = %d/%d, want 0/1", prof.TotalLikes, prof.TotalDislikes)
	}
	if prof.DislikedSubjects["horror"] != 1 {
		t.Errorf("disliked subjects = %v", prof.DislikedSubjects)
	}
	if prof.DislikedPlaces["transylvania"] != 1 {
		t.Errorf("disliked places = %v", prof.DislikedPlaces)
	}
	if prof.DislikedAuthors["ann author"] != 1 {
		t.Errorf("disliked authors = %v", prof.DislikedAuthors)
	}
	// Dislikes must not touch the preference maps.
	if len(prof.Subjects) != 0 {
		t.Errorf("preference subjects should stay empty, got %v", prof.Subjects)
	}
}

func TestCountersMonotonic(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	work := recommend.Work{ID: 20, Title: "W", Subjects: "fantasy"}

	var prevLikes, prevDislikes int64
	for i := 0; i < 20; i++ {
		inter := testInteraction(3, 20, i%3 != 0, base.Add(time.Duration(i)*time.Hour))
		prof, err := agg.Apply(context.Background(), inter, work, nil)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if prof.TotalLikes < prevLikes || prof.TotalDislikes < prevDislikes {
			t.Fatalf("counters decreased: %d/%d after %d/%d",
				prof.TotalLikes, prof.TotalDislikes, prevLikes, prevDislikes)
		}
		prevLikes, prevDislikes = prof.TotalLikes, prof.TotalDislikes
	}
}

func TestLastInteractionNeverMovesBackward(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{})

	later := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-48 * time.Hour)
	work := recommend.Work{ID: 30, Title: "W"}

	if _, err := agg.Apply(context.Background(), testInteraction(4, 30, true, later), work, nil); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// Out-of-order replay of an older event.
	prof, err := agg.Apply(context.Background(), testInteraction(4, 30, true, earlier), work, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if !prof.LastInteractionAt.Equal(later) {
		t.Errorf("lastInteractionAt = %v, want %v (must not move backward)", prof.LastInteractionAt, later)
	}
}

func TestDecayReducesOldWeights(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{DecayHalfLife: 24 * time.Hour})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := recommend.Work{ID: 40, Title: "A", Subjects: "fantasy"}
	second := recommend.Work{ID: 41, Title: "B", Subjects: "mystery"}

	if _, err := agg.Apply(context.Background(), testInteraction(5, 40, true, base), first, nil); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// Exactly one half-life later.
	prof, err := agg.Apply(context.Background(), testInteraction(5, 41, true, base.Add(24*time.Hour)), second, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got := prof.Subjects["fantasy"]
	if got < 0.49 || got > 0.51 {
		t.Errorf("fantasy weight after one half-life = %f, want ~0.5", got)
	}
	if prof.Subjects["mystery"] != 1 {
		t.Errorf("fresh weight = %f, want 1", prof.Subjects["mystery"])
	}
}

func TestPreferredEraRequiresMajority(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{EraMajorityFraction: 0.5})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	works := []recommend.Work{
		{ID: 50, Title: "A", FirstPublishDate: "1950"},
		{ID: 51, Title: "B", FirstPublishDate: "1990"},
		{ID: 52, Title: "C", FirstPublishDate: "1992"},
		{ID: 53, Title: "D", FirstPublishDate: "1995"},
	}

	var prof *recommend.Profile
	var err error
	for i, w := range works {
		prof, err = agg.Apply(context.Background(), testInteraction(6, w.ID, true, base.Add(time.Duration(i)*time.Minute)), w, nil)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	// 3 of 4 era points in the 1990s: clear majority.
	if prof.PreferredEra != "1990s" {
		t.Errorf("preferred era = %q, want 1990s", prof.PreferredEra)
	}
}

func TestConcurrentUpdatesSameUserDoNotLoseIncrements(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, Config{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	work := recommend.Work{ID: 60, Title: "W", Subjects: "fantasy"}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inter := testInteraction(7, 60, true, base.Add(time.Duration(i)*time.Second))
			if _, err := agg.Apply(context.Background(), inter, work, nil); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	prof, _ := store.GetProfile(context.Background(), 7)
	if prof.TotalLikes != n {
		t.Errorf("TotalLikes = %d, want %d (lost updates)", prof.TotalLikes, n)
	}
}

package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.PutContent(Content{UUID: "movie-1", Title: "Movie", Type: TypeMovie, VideoLink: "videos/movie-1.mp4"})
	s.PutContent(Content{UUID: "series-1", Title: "Series", Type: TypeSeries})
	if err := s.PutSeason(Season{UUID: "season-1", ContentUUID: "series-1", Number: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutEpisode(Episode{UUID: "ep-1", SeasonUUID: "season-1", Number: 3, Title: "Pilot"}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMemoryStore_Content(t *testing.T) {
	s := seededStore(t)
	c, err := s.Content(context.Background(), "movie-1")
	if err != nil || c.Title != "Movie" {
		t.Errorf("Content: %+v %v", c, err)
	}
	if _, err := s.Content(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_EpisodeChain(t *testing.T) {
	s := seededStore(t)
	ch, err := s.EpisodeChain(context.Background(), "ep-1")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Series.UUID != "series-1" || ch.Season.Number != 2 || ch.Episode.Number != 3 {
		t.Errorf("unexpected chain %+v", ch)
	}
	if _, err := s.EpisodeChain(context.Background(), "ep-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_orphans_rejected(t *testing.T) {
	s := NewMemoryStore()
	if err := s.PutSeason(Season{UUID: "s", ContentUUID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("PutSeason without parent: %v", err)
	}
	if err := s.PutEpisode(Episode{UUID: "e", SeasonUUID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("PutEpisode without parent: %v", err)
	}
}

func TestMemoryStore_returns_copies(t *testing.T) {
	s := seededStore(t)
	c, _ := s.Content(context.Background(), "movie-1")
	c.Title = "changed"
	again, _ := s.Content(context.Background(), "movie-1")
	if again.Title != "Movie" {
		t.Error("caller mutation leaked into store")
	}
}

func TestMemoryStore_Increment_concurrent(t *testing.T) {
	s := seededStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Increment(context.Background(), "series-1")
		}()
	}
	wg.Wait()

	c, _ := s.Content(context.Background(), "series-1")
	if c.TotalViews != 50 {
		t.Errorf("TotalViews = %d, want 50", c.TotalViews)
	}
	if err := s.Increment(context.Background(), "unknown"); err != nil {
		t.Errorf("unknown uuid should be a no-op, got %v", err)
	}
}

type countingStore struct {
	Store
	chainCalls int
}

func (c *countingStore) EpisodeChain(ctx context.Context, uuid string) (EpisodeChain, error) {
	c.chainCalls++
	return c.Store.EpisodeChain(ctx, uuid)
}

func TestCachedStore_EpisodeChain(t *testing.T) {
	inner := &countingStore{Store: seededStore(t)}
	c := NewCachedStore(inner, 10*time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.EpisodeChain(ctx, "ep-1"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.chainCalls != 1 {
		t.Errorf("expected 1 backend call within TTL, got %d", inner.chainCalls)
	}

	now = now.Add(10 * time.Minute)
	if _, err := c.EpisodeChain(ctx, "ep-1"); err != nil {
		t.Fatal(err)
	}
	if inner.chainCalls != 2 {
		t.Errorf("expected refresh after TTL, got %d calls", inner.chainCalls)
	}

	// misses are not cached
	for i := 0; i < 2; i++ {
		if _, err := c.EpisodeChain(ctx, "ep-x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if inner.chainCalls != 4 {
		t.Errorf("misses should hit the backend, got %d calls", inner.chainCalls)
	}
}

func TestCachedStore_Purge(t *testing.T) {
	c := NewCachedStore(seededStore(t), time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	_, _ = c.EpisodeChain(context.Background(), "ep-1")
	if n := c.Purge(); n != 1 {
		t.Errorf("Purge kept %d, want 1", n)
	}
	now = now.Add(time.Minute)
	if n := c.Len(); n != 1 {
		t.Errorf("expired entry should stay until purged, Len = %d", n)
	}
	if n := c.Purge(); n != 0 {
		t.Errorf("Purge kept %d, want 0", n)
	}
}

func TestCachedStore_disabled(t *testing.T) {
	inner := &countingStore{Store: seededStore(t)}
	c := NewCachedStore(inner, 0)
	_, _ = c.EpisodeChain(context.Background(), "ep-1")
	_, _ = c.EpisodeChain(context.Background(), "ep-1")
	if inner.chainCalls != 2 {
		t.Errorf("ttl 0 should bypass the cache, got %d calls", inner.chainCalls)
	}
}

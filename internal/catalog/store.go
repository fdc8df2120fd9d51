package catalog

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a uuid does not resolve.
var ErrNotFound = errors.New("catalog: record not found")

// Store is the read side of the metadata store used by streaming.
// Implementations can be in-memory, Postgres, or wrapped with a cache.
type Store interface {
	Content(ctx context.Context, uuid string) (Content, error)
	Episode(ctx context.Context, uuid string) (Episode, error)

	// EpisodeChain resolves episode -> season -> series in one call.
	EpisodeChain(ctx context.Context, uuid string) (EpisodeChain, error)
}

// MemoryStore is a concurrency-safe in-memory Store. It also counts views
// on its Content records, so it satisfies ViewCounter.
type MemoryStore struct {
	mu       sync.RWMutex
	contents map[string]*Content
	seasons  map[string]*Season
	episodes map[string]*Episode
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents: make(map[string]*Content),
		seasons:  make(map[string]*Season),
		episodes: make(map[string]*Episode),
	}
}

// PutContent inserts or replaces c.
func (s *MemoryStore) PutContent(c Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[c.UUID] = &c
}

// PutSeason inserts or replaces se. The parent content must exist.
func (s *MemoryStore) PutSeason(se Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[se.ContentUUID]; !ok {
		return ErrNotFound
	}
	s.seasons[se.UUID] = &se
	return nil
}

// PutEpisode inserts or replaces e. The parent season must exist.
func (s *MemoryStore) PutEpisode(e Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seasons[e.SeasonUUID]; !ok {
		return ErrNotFound
	}
	s.episodes[e.UUID] = &e
	return nil
}

// Content implements Store.Content.
func (s *MemoryStore) Content(ctx context.Context, uuid string) (Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[uuid]
	if !ok {
		return Content{}, ErrNotFound
	}
	return *c, nil
}

// Episode implements Store.Episode.
func (s *MemoryStore) Episode(ctx context.Context, uuid string) (Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.episodes[uuid]
	if !ok {
		return Episode{}, ErrNotFound
	}
	return *e, nil
}

// EpisodeChain implements Store.EpisodeChain.
func (s *MemoryStore) EpisodeChain(ctx context.Context, uuid string) (EpisodeChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.episodes[uuid]
	if !ok {
		return EpisodeChain{}, ErrNotFound
	}
	se, ok := s.seasons[e.SeasonUUID]
	if !ok {
		return EpisodeChain{}, ErrNotFound
	}
	c, ok := s.contents[se.ContentUUID]
	if !ok {
		return EpisodeChain{}, ErrNotFound
	}
	return EpisodeChain{Episode: *e, Season: *se, Series: *c}, nil
}

// Increment implements ViewCounter. Unknown uuids are ignored, matching an
// UPDATE that touches no rows.
func (s *MemoryStore) Increment(ctx context.Context, contentUUID string) error {
	return s.AddViews(ctx, contentUUID, 1)
}

// AddViews implements ViewSink.
func (s *MemoryStore) AddViews(ctx context.Context, contentUUID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contents[contentUUID]; ok {
		c.TotalViews += n
	}
	return nil
}

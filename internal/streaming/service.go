package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"hls-gateway/internal/assets"
	"hls-gateway/internal/catalog"
	"hls-gateway/internal/platform/metrics"
	"hls-gateway/internal/signedurl"
)

// Service produces signed manifests. It owns the read, count, rewrite
// sequence so the rewrite step itself stays pure.
type Service struct {
	assets  assets.Store
	catalog catalog.Store
	views   catalog.ViewCounter
	issuer  *signedurl.Issuer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService wires a Service. views and m may be nil.
func NewService(st assets.Store, cat catalog.Store, views catalog.ViewCounter, issuer *signedurl.Issuer, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{assets: st, catalog: cat, views: views, issuer: issuer, log: log, metrics: m}
}

// MoviePlaylist returns the signed manifest of a movie for userID.
func (s *Service) MoviePlaylist(ctx context.Context, movieUUID, userID string) ([]byte, error) {
	return s.Playlist(ctx, MovieRef(movieUUID), userID)
}

// EpisodePlaylist resolves the episode's season and series, then returns its
// signed manifest for userID.
func (s *Service) EpisodePlaylist(ctx context.Context, episodeUUID, userID string) ([]byte, error) {
	ch, err := s.catalog.EpisodeChain(ctx, episodeUUID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("episode %s: %w", episodeUUID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve episode %s: %w", episodeUUID, err)
	}
	return s.Playlist(ctx, EpisodeRefFromChain(ch), userID)
}

// Playlist reads ref's manifest, records one view, and rewrites every
// segment line into a URL signed for userID. A missing manifest fails with
// ErrNotFound before anything is counted.
func (s *Service) Playlist(ctx context.Context, ref AssetRef, userID string) ([]byte, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	key := ref.ManifestKey()

	ok, err := s.assets.Exists(ctx, key)
	if err != nil {
		return nil, s.storeErr(err, ref, key)
	}
	if !ok {
		return nil, fmt.Errorf("manifest %s: %w", key, ErrNotFound)
	}

	raw, err := s.assets.Get(ctx, key)
	if err != nil {
		return nil, s.storeErr(err, ref, key)
	}

	s.recordView(ctx, ref)

	out, err := Rewrite(raw, s.signer(ref, userID))
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", key, err)
	}
	return out, nil
}

// signer binds the issuer to ref's segment route and userID.
func (s *Service) signer(ref AssetRef, userID string) SignFunc {
	return func(filename string) (string, error) {
		return s.issuer.Issue(ref.SegmentPath(filename), url.Values{}, userID)
	}
}

// recordView is best-effort: a failing counter never fails the fetch.
func (s *Service) recordView(ctx context.Context, ref AssetRef) {
	if s.views == nil {
		return
	}
	if err := s.views.Increment(ctx, ref.CountedID()); err != nil {
		s.log.Warn("view increment failed",
			slog.String("asset", ref.LogID()),
			slog.String("counted_id", ref.CountedID()),
			slog.String("error", err.Error()))
		return
	}
	s.metrics.IncViewsRecorded()
}

func (s *Service) storeErr(err error, ref AssetRef, key string) error {
	if errors.Is(err, assets.ErrNotFound) {
		return fmt.Errorf("manifest %s: %w", key, ErrNotFound)
	}
	s.log.Error("asset store read failed",
		slog.String("asset", ref.LogID()),
		slog.String("path", s.assets.Path(key)),
		slog.String("error", err.Error()))
	return fmt.Errorf("read %s: %w", key, err)
}

package streaming

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hls-gateway/internal/assets"
	"hls-gateway/internal/auth"
	"hls-gateway/internal/catalog"
	"hls-gateway/internal/platform/metrics"
)

// Handler exposes the streaming endpoints using go-chi.
type Handler struct {
	svc     *Service
	authz   *Authorizer
	assets  assets.Store
	catalog catalog.Store
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(svc *Service, authz *Authorizer, st assets.Store, cat catalog.Store, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, authz: authz, assets: st, catalog: cat, log: log, metrics: m}
}

// Routes registers every streaming endpoint on r. Playlist and legacy
// routes require a caller; segment routes check the caller after the
// signature so a bad link answers the same way for everyone.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/signed-stream/hls/playlist/movies/{movieUuid}", h.MoviePlaylist)
		r.Get("/signed-stream/hls/playlist/episodes/{episodeUuid}", h.EpisodePlaylist)
		r.Get("/stream/episodes/{uuid}", h.StreamEpisode)
		r.Get("/stream/{uuid}", h.StreamMovie)
	})
	r.Get("/stream/hls/movies/{movieUuid}/{filename}", h.MovieSegment)
	r.Get("/stream/hls/series/{seriesUuid}/{season}/{episodeUuid}/{filename}", h.EpisodeSegment)
}

// MoviePlaylist handles GET /signed-stream/hls/playlist/movies/{movieUuid}.
func (h *Handler) MoviePlaylist(w http.ResponseWriter, r *http.Request) {
	movieUUID := pathParam(r, "movieUuid")
	if !isUUID(movieUUID) {
		h.fail(w, r, fmt.Errorf("movie %q: %w", movieUUID, ErrNotFound))
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	body, err := h.svc.MoviePlaylist(r.Context(), movieUUID, caller.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writePlaylist(w, body, KindMovie)
	h.log.Info("playlist served",
		slog.String("kind", string(KindMovie)),
		slog.String("uuid", movieUUID),
		slog.String("user_id", caller.UserID))
}

// EpisodePlaylist handles GET /signed-stream/hls/playlist/episodes/{episodeUuid}.
func (h *Handler) EpisodePlaylist(w http.ResponseWriter, r *http.Request) {
	episodeUUID := pathParam(r, "episodeUuid")
	if !isUUID(episodeUUID) {
		h.fail(w, r, fmt.Errorf("episode %q: %w", episodeUUID, ErrNotFound))
		return
	}
	caller, _ := auth.CallerFrom(r.Context())

	body, err := h.svc.EpisodePlaylist(r.Context(), episodeUUID, caller.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writePlaylist(w, body, KindEpisode)
	h.log.Info("playlist served",
		slog.String("kind", string(KindEpisode)),
		slog.String("uuid", episodeUUID),
		slog.String("user_id", caller.UserID))
}

func (h *Handler) writePlaylist(w http.ResponseWriter, body []byte, kind Kind) {
	w.Header().Set("Content-Type", contentTypeManifest)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	h.metrics.IncPlaylistsServed(string(kind))
}

// MovieSegment handles GET /stream/hls/movies/{movieUuid}/{filename}.
func (h *Handler) MovieSegment(w http.ResponseWriter, r *http.Request) {
	ref := MovieRef(pathParam(r, "movieUuid"))
	h.serveSegment(w, r, ref, pathParam(r, "filename"))
}

// EpisodeSegment handles GET /stream/hls/series/{seriesUuid}/{season}/{episodeUuid}/{filename}.
func (h *Handler) EpisodeSegment(w http.ResponseWriter, r *http.Request) {
	season, ok := ParseSeasonDir(pathParam(r, "season"))
	if !ok {
		season = -1
	}
	ref := EpisodeRef(pathParam(r, "seriesUuid"), season, pathParam(r, "episodeUuid"))
	h.serveSegment(w, r, ref, pathParam(r, "filename"))
}

func (h *Handler) serveSegment(w http.ResponseWriter, r *http.Request, ref AssetRef, filename string) {
	loc, err := h.authz.Authorize(r, ref, filename)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := serveLocated(w, r, h.assets, loc); err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.IncSegmentsServed()
	h.log.Debug("segment served",
		slog.String("asset", ref.LogID()),
		slog.String("filename", filename),
		slog.String("user_id", loc.userID))
}

// StreamMovie handles GET /stream/{uuid}.
func (h *Handler) StreamMovie(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "uuid")
	if !isUUID(id) {
		h.fail(w, r, fmt.Errorf("movie %q: %w", id, ErrNotFound))
		return
	}
	c, err := h.catalog.Content(r.Context(), id)
	if err != nil {
		h.fail(w, r, catalogErr(err, "movie", id))
		return
	}
	h.streamVideo(w, r, "movie:"+id, c.VideoLink)
}

// StreamEpisode handles GET /stream/episodes/{uuid}.
func (h *Handler) StreamEpisode(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "uuid")
	if !isUUID(id) {
		h.fail(w, r, fmt.Errorf("episode %q: %w", id, ErrNotFound))
		return
	}
	e, err := h.catalog.Episode(r.Context(), id)
	if err != nil {
		h.fail(w, r, catalogErr(err, "episode", id))
		return
	}
	h.streamVideo(w, r, "episode:"+id, e.VideoLink)
}

func (h *Handler) streamVideo(w http.ResponseWriter, r *http.Request, assetID, key string) {
	if key == "" {
		h.fail(w, r, fmt.Errorf("%s has no video: %w", assetID, ErrNotFound))
		return
	}
	obj, rng, err := openVideo(r.Context(), h.assets, key, r.Header.Get("Range"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	hd := w.Header()
	hd.Set("Content-Type", contentTypeVideo)
	hd.Set("Accept-Ranges", "bytes")
	hd.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	hd.Set("Content-Range", rng.ContentRange())
	w.WriteHeader(http.StatusPartialContent)

	h.metrics.RangeStreamStarted()
	defer h.metrics.RangeStreamFinished()

	n, err := StreamRange(r.Context(), w, obj, rng)
	h.metrics.AddRangeBytes(n)
	if err != nil {
		// headers are gone; the client sees a short body
		h.log.Debug("range stream aborted",
			slog.String("asset", assetID),
			slog.Int64("written", n),
			slog.Int64("length", rng.Length()),
			slog.String("error", err.Error()))
		return
	}
	h.log.Debug("range streamed",
		slog.String("asset", assetID),
		slog.Int64("start", rng.Start),
		slog.Int64("end", rng.End))
}

func catalogErr(err error, what, id string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("lookup %s %s: %w", what, id, err)
}

// fail writes the status for err with a short body. Internal details are
// logged, never echoed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var rerr *RangeError
	if errors.As(err, &rerr) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", rerr.Size))
	}

	switch {
	case status >= http.StatusInternalServerError:
		h.log.Error("stream request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	case status == http.StatusNotFound:
		h.log.Debug("stream asset not found",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}

	http.Error(w, http.StatusText(status), status)
}

// pathParam returns the decoded route parameter. chi matches on RawPath when
// the request has one, so escaped bytes such as %2C arrive still encoded.
// An undecodable value comes back empty and fails validation downstream.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	v, err := url.PathUnescape(v)
	if err != nil {
		return ""
	}
	return v
}

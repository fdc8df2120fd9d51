// Package streaming serves HLS manifests with per-user signed segment URLs,
// authorizes and serves those segments, and range-streams legacy video files.
package streaming

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hls-gateway/internal/catalog"
)

// ManifestName is the file name of every stored HLS manifest.
const ManifestName = "output.m3u8"

const (
	contentTypeManifest = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/MP2T"
	contentTypeVideo    = "video/mp4"
)

// Kind distinguishes the two asset layouts.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindEpisode Kind = "episode"
)

// AssetRef identifies an HLS asset: a movie by its uuid, or an episode by
// its series uuid, season number and episode uuid.
type AssetRef struct {
	Kind       Kind
	UUID       string
	SeriesUUID string
	Season     int
}

// MovieRef returns the reference of a movie asset.
func MovieRef(uuid string) AssetRef {
	return AssetRef{Kind: KindMovie, UUID: uuid}
}

// EpisodeRef returns the reference of an episode asset.
func EpisodeRef(seriesUUID string, season int, episodeUUID string) AssetRef {
	return AssetRef{Kind: KindEpisode, UUID: episodeUUID, SeriesUUID: seriesUUID, Season: season}
}

// EpisodeRefFromChain builds the reference from a resolved catalog chain.
func EpisodeRefFromChain(ch catalog.EpisodeChain) AssetRef {
	return EpisodeRef(ch.Series.UUID, ch.Season.Number, ch.Episode.UUID)
}

// SeasonDir is the directory name of season n ("season_2").
func SeasonDir(n int) string {
	return "season_" + strconv.Itoa(n)
}

// ParseSeasonDir is the inverse of SeasonDir.
func ParseSeasonDir(dir string) (int, bool) {
	s, ok := strings.CutPrefix(dir, "season_")
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return 0, false
	}
	return n, true
}

// Valid reports whether the identifiers are well-formed uuids and the
// season number is not negative.
func (a AssetRef) Valid() bool {
	if !isUUID(a.UUID) {
		return false
	}
	if a.Kind == KindEpisode {
		return isUUID(a.SeriesUUID) && a.Season >= 0
	}
	return a.Kind == KindMovie
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

// BaseKey is the store directory holding the manifest and segments.
func (a AssetRef) BaseKey() string {
	if a.Kind == KindEpisode {
		return "hls/series/" + a.SeriesUUID + "/" + SeasonDir(a.Season) + "/" + a.UUID
	}
	return "hls/movies/" + a.UUID
}

// ManifestKey is the store key of the asset's manifest.
func (a AssetRef) ManifestKey() string {
	return a.BaseKey() + "/" + ManifestName
}

// FileKey is the store key of filename inside the asset directory.
func (a AssetRef) FileKey(filename string) string {
	return a.BaseKey() + "/" + filename
}

// SegmentPath is the escaped request path of filename on the segment route.
func (a AssetRef) SegmentPath(filename string) string {
	if a.Kind == KindEpisode {
		return "/stream/hls/series/" + url.PathEscape(a.SeriesUUID) + "/" + SeasonDir(a.Season) +
			"/" + url.PathEscape(a.UUID) + "/" + url.PathEscape(filename)
	}
	return "/stream/hls/movies/" + url.PathEscape(a.UUID) + "/" + url.PathEscape(filename)
}

// CountedID is the content uuid whose view counter a manifest fetch bumps.
// Episodes count toward their parent series.
func (a AssetRef) CountedID() string {
	if a.Kind == KindEpisode {
		return a.SeriesUUID
	}
	return a.UUID
}

// LogID is the identifier used in log lines.
func (a AssetRef) LogID() string {
	return string(a.Kind) + ":" + a.UUID
}

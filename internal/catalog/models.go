package catalog

// ContentType mirrors the contents.type column.
type ContentType string

const (
	TypeMovie       ContentType = "movie"
	TypeSeries      ContentType = "series"
	TypeAnimeMovie  ContentType = "anime-movie"
	TypeAnimeSeries ContentType = "anime-series"
)

// Content is a movie or a series record.
type Content struct {
	UUID       string
	Title      string
	Type       ContentType
	VideoLink  string // storage key of the legacy single-file video, if any
	TotalViews int64
}

// Season belongs to a series Content.
type Season struct {
	UUID        string
	ContentUUID string
	Number      int
}

// Episode belongs to a Season.
type Episode struct {
	UUID       string
	SeasonUUID string
	Number     int
	Title      string
	VideoLink  string
}

// EpisodeChain is an episode together with its season and parent series.
type EpisodeChain struct {
	Episode Episode
	Season  Season
	Series  Content
}

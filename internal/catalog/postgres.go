package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresStore reads the contents/seasons/episodes tables keyed by uuid.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	contentQuery = `SELECT uuid, title, type, COALESCE(video_link, ''), total_views
		FROM contents WHERE uuid = $1`

	episodeQuery = `SELECT uuid, season_id, episode_number, title, COALESCE(video_link, '')
		FROM episodes WHERE uuid = $1`

	episodeChainQuery = `SELECT e.uuid, e.season_id, e.episode_number, e.title, COALESCE(e.video_link, ''),
			s.uuid, s.content_id, s.season_number,
			c.uuid, c.title, c.type, COALESCE(c.video_link, ''), c.total_views
		FROM episodes e
		JOIN seasons s ON s.uuid = e.season_id
		JOIN contents c ON c.uuid = s.content_id
		WHERE e.uuid = $1`
)

// Content implements Store.Content.
func (p *PostgresStore) Content(ctx context.Context, uuid string) (Content, error) {
	var c Content
	err := p.db.QueryRowContext(ctx, contentQuery, uuid).
		Scan(&c.UUID, &c.Title, &c.Type, &c.VideoLink, &c.TotalViews)
	if err != nil {
		return Content{}, notFoundOr(err, "content", uuid)
	}
	return c, nil
}

// Episode implements Store.Episode.
func (p *PostgresStore) Episode(ctx context.Context, uuid string) (Episode, error) {
	var e Episode
	err := p.db.QueryRowContext(ctx, episodeQuery, uuid).
		Scan(&e.UUID, &e.SeasonUUID, &e.Number, &e.Title, &e.VideoLink)
	if err != nil {
		return Episode{}, notFoundOr(err, "episode", uuid)
	}
	return e, nil
}

// EpisodeChain implements Store.EpisodeChain.
func (p *PostgresStore) EpisodeChain(ctx context.Context, uuid string) (EpisodeChain, error) {
	var ch EpisodeChain
	err := p.db.QueryRowContext(ctx, episodeChainQuery, uuid).Scan(
		&ch.Episode.UUID, &ch.Episode.SeasonUUID, &ch.Episode.Number, &ch.Episode.Title, &ch.Episode.VideoLink,
		&ch.Season.UUID, &ch.Season.ContentUUID, &ch.Season.Number,
		&ch.Series.UUID, &ch.Series.Title, &ch.Series.Type, &ch.Series.VideoLink, &ch.Series.TotalViews,
	)
	if err != nil {
		return EpisodeChain{}, notFoundOr(err, "episode chain", uuid)
	}
	return ch, nil
}

func notFoundOr(err error, what, uuid string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("query %s %s: %w", what, uuid, err)
}

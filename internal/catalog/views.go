package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ViewCounter increments the total view count of a content record.
// Callers treat failures as best-effort.
type ViewCounter interface {
	Increment(ctx context.Context, contentUUID string) error
}

// ViewSink absorbs view counts accumulated elsewhere, such as Redis.
type ViewSink interface {
	AddViews(ctx context.Context, contentUUID string, n int64) error
}

// PostgresViewCounter bumps contents.total_views in place.
type PostgresViewCounter struct {
	db *sql.DB
}

func NewPostgresViewCounter(db *sql.DB) *PostgresViewCounter {
	return &PostgresViewCounter{db: db}
}

func (p *PostgresViewCounter) Increment(ctx context.Context, contentUUID string) error {
	return p.AddViews(ctx, contentUUID, 1)
}

// AddViews implements ViewSink.
func (p *PostgresViewCounter) AddViews(ctx context.Context, contentUUID string, n int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE contents SET total_views = total_views + $2 WHERE uuid = $1`, contentUUID, n)
	if err != nil {
		return fmt.Errorf("increment views %s: %w", contentUUID, err)
	}
	return nil
}

// RedisViewCounter counts views with INCR on "views:{uuid}". The counters
// are pending deltas: Fold moves them into the catalog's total_views.
type RedisViewCounter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisViewCounter uses keys of the form prefix+uuid; an empty prefix means "views:".
func NewRedisViewCounter(client redis.Cmdable, prefix string) *RedisViewCounter {
	if prefix == "" {
		prefix = "views:"
	}
	return &RedisViewCounter{client: client, prefix: prefix}
}

func (r *RedisViewCounter) Increment(ctx context.Context, contentUUID string) error {
	if err := r.client.Incr(ctx, r.prefix+contentUUID).Err(); err != nil {
		return fmt.Errorf("redis incr views %s: %w", contentUUID, err)
	}
	return nil
}

// Fold drains every pending counter into sink and returns the number of
// views moved. Each key is taken with GETDEL so increments racing the fold
// land in a fresh key. A count the sink rejects is added back before the
// error is returned, leaving it for the next fold.
func (r *RedisViewCounter) Fold(ctx context.Context, sink ViewSink) (int64, error) {
	var (
		cursor uint64
		folded int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return folded, fmt.Errorf("redis scan views: %w", err)
		}
		for _, key := range keys {
			n, err := r.client.GetDel(ctx, key).Int64()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return folded, fmt.Errorf("redis getdel %s: %w", key, err)
			}
			id := strings.TrimPrefix(key, r.prefix)
			if err := sink.AddViews(ctx, id, n); err != nil {
				if rerr := r.client.IncrBy(ctx, key, n).Err(); rerr != nil {
					return folded, fmt.Errorf("fold views %s: %w (lost %d views: %v)", id, err, n, rerr)
				}
				return folded, fmt.Errorf("fold views %s: %w", id, err)
			}
			folded += n
		}
		cursor = next
		if cursor == 0 {
			return folded, nil
		}
	}
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

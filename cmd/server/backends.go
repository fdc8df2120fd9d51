package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"hls-gateway/internal/assets"
	"hls-gateway/internal/auth"
	"hls-gateway/internal/catalog"
	"hls-gateway/internal/platform/config"
)

// backends holds the storage collaborators selected by configuration.
type backends struct {
	assets      assets.Store
	catalog     *catalog.CachedStore
	views       catalog.ViewCounter
	users       auth.Users
	attempts    auth.Attempts
	revocations auth.Revocations

	// viewFold drains Redis view counters into viewSink; nil without Redis.
	viewFold *catalog.RedisViewCounter
	viewSink catalog.ViewSink

	catalogKind string
	viewsKind   string

	db    *sql.DB
	redis *redis.Client
}

// openBackends picks S3 or disk for assets, Postgres or memory for the
// catalog and users, and Redis, Postgres or memory for view counting. With
// Redis, views are folded back into the catalog by the maintenance loop.
func openBackends(ctx context.Context, cfg config.Settings, log *slog.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.AssetBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("ASSET_BACKEND=s3 needs S3_BUCKET")
		}
		st, err := assets.NewS3StoreFromEnv(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		b.assets = st
	case "disk", "":
		b.assets = assets.NewDiskStore(cfg.AssetRoot)
	default:
		return nil, fmt.Errorf("unknown ASSET_BACKEND %q", cfg.AssetBackend)
	}

	var (
		store catalog.Store
		sink  catalog.ViewSink
	)
	if cfg.DatabaseURL != "" {
		db, err := catalog.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.db = db
		store = catalog.NewPostgresStore(db)
		sink = catalog.NewPostgresViewCounter(db)
		b.users = auth.NewPostgresUsers(db)
		b.catalogKind = "postgres"
	} else {
		mem := catalog.NewMemoryStore()
		users := auth.NewMemoryUsers(0)
		if email := config.GetEnv("DEV_USER_EMAIL", ""); email != "" {
			if err := users.Add(config.GetEnv("DEV_USER_ID", "1"), email, config.GetEnv("DEV_USER_PASSWORD", "")); err != nil {
				return nil, err
			}
		}
		store = mem
		sink = mem
		b.views = mem
		b.users = users
		b.catalogKind = "memory"
		b.viewsKind = "memory"
		log.Warn("DATABASE_URL not set, using an empty in-memory catalog")
	}
	b.catalog = catalog.NewCachedStore(store, cfg.EpisodeCacheTTL)

	if cfg.RedisURL != "" {
		client, err := catalog.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = client
		counter := catalog.NewRedisViewCounter(client, "")
		b.views = counter
		b.viewFold = counter
		b.viewSink = sink
		b.attempts = auth.NewRedisAttempts(client, auth.DefaultDecay)
		b.revocations = auth.NewRedisRevocations(client)
		b.viewsKind = "redis"
	} else {
		b.attempts = auth.NewMemoryAttempts(auth.DefaultDecay)
		b.revocations = auth.NewMemoryRevocations()
		if b.db != nil {
			b.views = catalog.NewPostgresViewCounter(b.db)
			b.viewsKind = "postgres"
		}
	}
	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}

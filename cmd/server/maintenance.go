package main

import (
	"context"
	"log/slog"
	"time"

	"hls-gateway/internal/platform/metrics"
)

type pruner interface {
	Prune() int
}

// sweep evicts expired episode chains, prunes an in-process denylist and
// folds pending Redis view counts into the catalog.
func (b *backends) sweep(ctx context.Context, log *slog.Logger, met *metrics.Metrics) {
	met.SetEpisodeCacheEntries(b.catalog.Purge())
	if p, ok := b.revocations.(pruner); ok {
		p.Prune()
	}
	if b.viewFold == nil || b.viewSink == nil {
		return
	}
	n, err := b.viewFold.Fold(ctx, b.viewSink)
	if err != nil {
		log.Warn("fold view counters", slog.Int64("folded", n), slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		log.Debug("view counters folded", slog.Int64("views", n))
	}
}

// runMaintenance sweeps every interval until ctx is done.
func (b *backends) runMaintenance(ctx context.Context, every time.Duration, log *slog.Logger, met *metrics.Metrics) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(ctx, log, met)
		}
	}
}

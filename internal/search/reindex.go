package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/microblog/internal/store"
)

// ReindexStats summarizes a full rebuild of one collection.
type ReindexStats struct {
	Index    string        `json:"index"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// ReindexAll upserts every row of table, a batch at a time, with bounded
// concurrency and an optional rate cap. Per-row failures are counted and
// logged; only store errors and cancellation abort the run. With no engine
// configured it returns immediately.
func ReindexAll[T Searchable](ctx context.Context, s *Synchronizer, table *store.Table[T]) (ReindexStats, error) {
	stats := ReindexStats{Index: table.Name()}
	if !s.Enabled() {
		return stats, nil
	}

	start := time.Now()
	var indexed, failed atomic.Int64

	flush := func(batch []T) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.reindexWorkers)

		for _, rec := range batch {
			if s.opts.limiter != nil {
				if err := s.opts.limiter.Wait(gctx); err != nil {
					_ = g.Wait()
					return err
				}
			}
			g.Go(func() error {
				if err := s.Upsert(gctx, rec); err != nil {
					failed.Add(1)
					return nil
				}
				indexed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return ctx.Err()
	}

	size := s.opts.reindexBatch
	pending := make([]T, 0, size)
	err := table.Each(ctx, size, func(rec T) error {
		pending = append(pending, rec)
		if len(pending) < size {
			return nil
		}
		err := flush(pending)
		pending = pending[:0]
		return err
	})
	if err == nil && len(pending) > 0 {
		err = flush(pending)
	}

	stats.Indexed = int(indexed.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(start)

	if err != nil {
		return stats, fmt.Errorf("reindex %s: %w", table.Name(), err)
	}

	s.opts.logger.Info("search_reindex_complete",
		"index", stats.Index,
		"indexed", stats.Indexed,
		"failed", stats.Failed,
		"duration_ms", stats.Duration.Milliseconds())
	return stats, nil
}

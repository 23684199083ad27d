package search

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/microblog/internal/engine"
	"github.com/Aman-CERP/microblog/internal/store"
)

// Synchronizer applies committed changes to the search engine.
// A Synchronizer with a nil engine does nothing.
type Synchronizer struct {
	engine engine.Engine
	opts   options
}

// SyncStats counts the outcome of one snapshot.
type SyncStats struct {
	Upserted int
	Removed  int
	Skipped  int
	Failed   int
}

// NewSynchronizer returns a Synchronizer writing to e, which may be nil.
func NewSynchronizer(e engine.Engine, opts ...Option) *Synchronizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Synchronizer{engine: e, opts: o}
}

// Enabled reports whether an engine is configured.
func (s *Synchronizer) Enabled() bool {
	return s != nil && s.engine != nil
}

// SyncSnapshot upserts every added or updated Searchable object and removes
// every deleted one. Failures are logged per object and never returned; one
// bad object does not stop the rest.
func (s *Synchronizer) SyncSnapshot(ctx context.Context, snap *Snapshot) SyncStats {
	var stats SyncStats
	added, updated, removed, ok := snap.take()
	if !ok || !s.Enabled() {
		return stats
	}

	for _, set := range [][]store.Record{added, updated} {
		for _, rec := range set {
			obj, ok := rec.(Searchable)
			if !ok {
				stats.Skipped++
				continue
			}
			if err := s.Upsert(ctx, obj); err != nil {
				stats.Failed++
				continue
			}
			stats.Upserted++
		}
	}

	for _, rec := range removed {
		obj, ok := rec.(Searchable)
		if !ok {
			stats.Skipped++
			continue
		}
		if err := s.Remove(ctx, obj); err != nil {
			stats.Failed++
			continue
		}
		stats.Removed++
	}

	s.opts.logger.Debug("search_snapshot_synced",
		"upserted", stats.Upserted,
		"removed", stats.Removed,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats
}

// Upsert writes the current field values of obj to its index. The returned
// error has already been logged.
func (s *Synchronizer) Upsert(ctx context.Context, obj Searchable) error {
	if !s.Enabled() {
		return nil
	}

	index, id := obj.Table(), DocumentID(obj)
	doc, err := Project(obj)
	if err == nil {
		err = s.call(ctx, func(ctx context.Context) error {
			return s.engine.Index(ctx, index, id, doc)
		})
	}
	s.report(index, id, "upsert", err)
	return err
}

// Remove deletes obj's document from its index. Removing a document that
// was never indexed succeeds.
func (s *Synchronizer) Remove(ctx context.Context, obj Searchable) error {
	if !s.Enabled() {
		return nil
	}

	index, id := obj.Table(), DocumentID(obj)
	err := s.call(ctx, func(ctx context.Context) error {
		return s.engine.Delete(ctx, index, id)
	})
	s.report(index, id, "remove", err)
	return err
}

// EnsureIndexes provisions one index per registered collection.
func (s *Synchronizer) EnsureIndexes(ctx context.Context, r *Registry) error {
	if !s.Enabled() {
		return nil
	}
	for _, name := range r.Names() {
		fields, _ := r.Fields(name)
		err := s.call(ctx, func(ctx context.Context) error {
			return s.engine.EnsureIndex(ctx, name, fields)
		})
		s.opts.observer.IndexOp(name, "ensure", err)
		if err != nil {
			return fmt.Errorf("ensure index %s: %w", name, err)
		}
	}
	return nil
}

// ResetIndexes drops and recreates the index of every registered
// collection. The indexes are empty afterwards until a reindex.
func (s *Synchronizer) ResetIndexes(ctx context.Context, r *Registry) error {
	if !s.Enabled() {
		return nil
	}
	for _, name := range r.Names() {
		err := s.call(ctx, func(ctx context.Context) error {
			return s.engine.DropIndex(ctx, name)
		})
		s.opts.observer.IndexOp(name, "drop", err)
		if err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return s.EnsureIndexes(ctx, r)
}

// call runs fn under the configured per-call timeout.
func (s *Synchronizer) call(ctx context.Context, fn func(context.Context) error) error {
	if s.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = engine.WithCallTimeout(ctx, s.opts.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (s *Synchronizer) report(index, id, op string, err error) {
	s.opts.observer.IndexOp(index, op, err)
	if err != nil {
		s.opts.logger.Warn("search_index_failed",
			"index", index,
			"id", id,
			"op", op,
			"error", err)
	}
}

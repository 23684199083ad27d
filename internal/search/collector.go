package search

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/microblog/internal/store"
)

// Collector bridges store commits to a Synchronizer. Its BeforeCommit runs
// while changes are still pending; the returned function runs only once the
// commit succeeded. A failed commit therefore never reaches the index.
type Collector struct {
	sync *Synchronizer
}

// NewCollector returns a Collector feeding s.
func NewCollector(s *Synchronizer) *Collector {
	return &Collector{sync: s}
}

// Register installs the collector's hook on db.
func (c *Collector) Register(db *store.DB) {
	db.OnCommit(c.BeforeCommit)
}

// BeforeCommit captures the pending changes and returns the function that
// indexes them after the commit. Once the commit is durable the index is
// updated even if the committing caller has gone away; each engine call is
// still bounded by the synchronizer's timeout.
func (c *Collector) BeforeCommit(_ context.Context, changes store.Changes) store.AfterCommitFunc {
	snap := Capture(changes)
	return func(ctx context.Context) {
		c.AfterCommit(context.WithoutCancel(ctx), snap)
	}
}

// AfterCommit hands snap to the synchronizer and discards it, whatever the
// outcome. A nil snapshot is a no-op. Panics from the engine are logged so
// they never reach the code that committed.
func (c *Collector) AfterCommit(ctx context.Context, snap *Snapshot) {
	if snap == nil {
		return
	}
	defer snap.discard()
	defer func() {
		if r := recover(); r != nil {
			c.sync.opts.logger.Error("search_sync_panic", "panic", fmt.Sprint(r))
		}
	}()

	c.sync.SyncSnapshot(ctx, snap)
}

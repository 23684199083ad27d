package search

import (
	"sync"

	"github.com/Aman-CERP/microblog/internal/store"
)

// Snapshot is the set of objects one commit touched, captured before the
// transaction ran. It is consumed at most once.
type Snapshot struct {
	mu       sync.Mutex
	added    []store.Record
	updated  []store.Record
	removed  []store.Record
	consumed bool
}

// Capture copies the pending changes. It returns nil when there are none.
func Capture(c store.Changes) *Snapshot {
	if c.Empty() {
		return nil
	}
	return &Snapshot{
		added:   append([]store.Record(nil), c.New...),
		updated: append([]store.Record(nil), c.Dirty...),
		removed: append([]store.Record(nil), c.Deleted...),
	}
}

// Len returns the number of captured objects, 0 once consumed.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.added) + len(s.updated) + len(s.removed)
}

// take hands out the captured sets and empties the snapshot.
// ok is false when the snapshot is nil or was already consumed.
func (s *Snapshot) take() (added, updated, removed []store.Record, ok bool) {
	if s == nil {
		return nil, nil, nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed {
		return nil, nil, nil, false
	}
	added, updated, removed = s.added, s.updated, s.removed
	s.discardLocked()
	return added, updated, removed, true
}

// discard drops the captured sets without processing them.
func (s *Snapshot) discard() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
}

func (s *Snapshot) discardLocked() {
	s.added, s.updated, s.removed = nil, nil, nil
	s.consumed = true
}

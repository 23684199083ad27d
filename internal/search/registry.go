package search

import (
	"context"
	"slices"
	"strings"
	"sync"

	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/store"
)

type collection struct {
	fields  []string
	reindex func(context.Context, *Synchronizer) (ReindexStats, error)
}

// Registry names the searchable collections so they can be provisioned and
// rebuilt without knowing their record types.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]collection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{collections: make(map[string]collection)}
}

// Register adds table under its table name, replacing any earlier entry.
func Register[T Searchable](r *Registry, table *store.Table[T]) {
	fields := table.New().SearchableFields()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[table.Name()] = collection{
		fields: slices.Clone(fields),
		reindex: func(ctx context.Context, s *Synchronizer) (ReindexStats, error) {
			return ReindexAll(ctx, s, table)
		},
	}
}

// Names returns the registered collection names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Fields returns the searchable fields of a collection.
func (r *Registry) Fields(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(c.fields), true
}

// Reindex rebuilds one collection.
func (r *Registry) Reindex(ctx context.Context, name string, s *Synchronizer) (ReindexStats, error) {
	r.mu.RLock()
	c, ok := r.collections[name]
	r.mu.RUnlock()

	if !ok {
		return ReindexStats{Index: name}, merrors.New(merrors.ErrCodeUnknownIndex,
			"unknown collection: "+name, nil).
			WithSuggestion("Searchable collections: " + strings.Join(r.Names(), ", "))
	}
	return c.reindex(ctx, s)
}

// ReindexEach rebuilds every collection in name order, stopping at the
// first error.
func (r *Registry) ReindexEach(ctx context.Context, s *Synchronizer) ([]ReindexStats, error) {
	var all []ReindexStats
	for _, name := range r.Names() {
		stats, err := r.Reindex(ctx, name, s)
		all = append(all, stats)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

package search

import (
	"context"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/Aman-CERP/microblog/internal/engine"
	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/store"
)

// Bridge answers ranked full-text queries with rows from the store.
type Bridge struct {
	engine engine.Engine
	opts   options
}

// NewBridge returns a Bridge querying e, which may be nil.
func NewBridge(e engine.Engine, opts ...Option) *Bridge {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge{engine: e, opts: o}
}

// Enabled reports whether an engine is configured.
func (b *Bridge) Enabled() bool {
	return b != nil && b.engine != nil
}

// PerPage returns the page size used when a query asks for none.
func (b *Bridge) PerPage() int {
	return b.opts.perPage
}

// Window normalizes a requested page. page is clamped to [1, MaxPage];
// perPage below 1 means the default and above MaxPerPage means MaxPerPage.
func (b *Bridge) Window(page, perPage int) (int, int) {
	page = min(max(page, 1), MaxPage)
	if perPage < 1 {
		perPage = b.opts.perPage
	}
	return page, min(perPage, MaxPerPage)
}

// Search returns page (1-based) of the rows of table matching query, in the
// engine's rank order, and the engine's total match count. total counts all
// matches, so it can exceed the rows the cursor yields when indexed rows
// have since been deleted.
//
// page and perPage are normalized by Window. With no engine it returns an
// empty cursor and 0. An engine failure is
// returned as an *errors.Error with code ErrCodeSearchFailed.
func Search[T Searchable](ctx context.Context, b *Bridge, table *store.Table[T], query string, page, perPage int) (*store.Cursor[T], int, error) {
	if !b.Enabled() {
		return &store.Cursor[T]{}, 0, nil
	}
	page, perPage = b.Window(page, perPage)

	index := table.Name()
	hits, err := b.query(ctx, index, query, (page-1)*perPage, perPage)
	if err != nil {
		return nil, 0, merrors.New(merrors.ErrCodeSearchFailed, "search "+index+" failed", err).
			WithDetail("index", index).
			WithDetail("query", query)
	}
	if len(hits.IDs) == 0 {
		return &store.Cursor[T]{}, 0, nil
	}

	ids := lo.FilterMap(hits.IDs, func(raw string, _ int) (int64, bool) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			b.opts.logger.Warn("search_bad_document_id", "index", index, "id", raw)
			return 0, false
		}
		return id, true
	})

	cur, err := table.FetchRanked(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	return cur, hits.Total, nil
}

func (b *Bridge) query(ctx context.Context, index, query string, from, size int) (*engine.Hits, error) {
	if b.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = engine.WithCallTimeout(ctx, b.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	hits, err := b.engine.Search(ctx, index, query, from, size)
	b.opts.observer.Query(index, time.Since(start), err)
	if err != nil {
		b.opts.logger.Warn("search_query_failed", "index", index, "error", err)
		return nil, err
	}
	if hits == nil {
		hits = &engine.Hits{}
	}
	return hits, nil
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMaxOpenIndexes bounds the number of on-disk Bleve indexes held open.
	DefaultMaxOpenIndexes = 16
	// DefaultOpenTimeout bounds the wait for an index another process holds.
	DefaultOpenTimeout = 5 * time.Second
)

// BleveEngine keeps one Bleve index per collection.
//
// On disk, each index lives in <dir>/<name>.bleve and open handles are kept
// in an LRU cache that closes evicted handles. With an empty dir, indexes
// are memory-only and never evicted.
//
// An on-disk index can be open in one process at a time. Opening one that
// another process holds fails after the open timeout, or sooner if the
// caller's deadline is earlier.
type BleveEngine struct {
	mu          sync.Mutex
	dir         string
	mem         map[string]bleve.Index
	open        *lru.Cache[string, bleve.Index]
	fields      map[string][]string
	openTimeout time.Duration
	closed      bool
}

var (
	_ Engine = (*BleveEngine)(nil)
	_ Pinger = (*BleveEngine)(nil)
)

// BleveOption configures a BleveEngine.
type BleveOption func(*BleveEngine)

// WithOpenTimeout bounds the wait for an index held by another process.
// Non-positive values keep DefaultOpenTimeout.
func WithOpenTimeout(d time.Duration) BleveOption {
	return func(e *BleveEngine) {
		if d > 0 {
			e.openTimeout = d
		}
	}
}

// NewBleveEngine creates a Bleve engine rooted at dir.
// If dir is empty, all indexes are in memory.
func NewBleveEngine(dir string, maxOpen int, opts ...BleveOption) (*BleveEngine, error) {
	e := &BleveEngine{dir: dir, fields: make(map[string][]string), openTimeout: DefaultOpenTimeout}
	for _, opt := range opts {
		opt(e)
	}

	if dir == "" {
		e.mem = make(map[string]bleve.Index)
		return e, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenIndexes
	}
	cache, err := lru.NewWithEvict(maxOpen, func(name string, idx bleve.Index) {
		if err := idx.Close(); err != nil {
			slog.Warn("bleve_index_close_failed", slog.String("index", name), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	e.open = cache
	return e, nil
}

func (e *BleveEngine) path(index string) string {
	return filepath.Join(e.dir, index+".bleve")
}

// validateIndexIntegrity checks that an on-disk index has readable metadata.
// Returns nil if the index is valid or absent.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable (corrupted index): %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// buildMapping indexes the declared fields as analyzed text and folds them
// into the composite _all field that field-less match queries search.
func buildMapping(fields []string) mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	doc := bleve.NewDocumentMapping()
	for _, f := range fields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = false
		fm.IncludeInAll = true
		doc.AddFieldMappingsAt(f, fm)
	}
	im.DefaultMapping = doc
	return im
}

// openWait returns how long an open may wait on another process's lock.
func (e *BleveEngine) openWait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	wait := e.openTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}
	// bolt treats zero as no timeout
	if wait <= 0 {
		return 0, context.DeadlineExceeded
	}
	return wait, nil
}

// lookup returns the handle for index, opening or creating it as needed.
// It returns nil without error when the index does not exist and create is false.
// Must be called with e.mu held.
func (e *BleveEngine) lookup(ctx context.Context, index string, create bool) (bleve.Index, error) {
	if e.closed {
		return nil, ErrClosed
	}

	if e.mem != nil {
		idx, ok := e.mem[index]
		if ok || !create {
			return idx, nil
		}
		idx, err := bleve.NewMemOnly(buildMapping(e.fields[index]))
		if err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", index, err)
		}
		e.mem[index] = idx
		return idx, nil
	}

	if idx, ok := e.open.Get(index); ok {
		return idx, nil
	}

	path := e.path(index)
	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("index %s corrupted and cannot remove: %w (original error: %v)", index, err, validErr)
		}
		slog.Info("bleve_index_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, please reindex"))
	}

	wait, err := e.openWait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", index, err)
	}
	openCfg := map[string]any{"bolt_timeout": wait.String()}

	idx, err := bleve.OpenUsing(path, openCfg)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if !create {
			return nil, nil
		}
		idx, err = bleve.NewUsing(path, buildMapping(e.fields[index]),
			bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, openCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s (held by another process?): %w", index, err)
	}

	e.open.Add(index, idx)
	return idx, nil
}

// EnsureIndex creates the index with a mapping for fields.
// An existing index keeps its mapping.
func (e *BleveEngine) EnsureIndex(ctx context.Context, index string, fields []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.fields[index]; !ok {
		e.fields[index] = append([]string(nil), fields...)
	}
	_, err := e.lookup(ctx, index, true)
	return err
}

// DropIndex closes and deletes the index.
func (e *BleveEngine) DropIndex(_ context.Context, index string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if e.mem != nil {
		if idx, ok := e.mem[index]; ok {
			delete(e.mem, index)
			return idx.Close()
		}
		return nil
	}

	// Remove runs the eviction callback, which closes the handle.
	e.open.Remove(index)
	if err := os.RemoveAll(e.path(index)); err != nil {
		return fmt.Errorf("failed to remove index %s: %w", index, err)
	}
	return nil
}

// Index upserts a single document.
func (e *BleveEngine) Index(ctx context.Context, index, id string, doc Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.lookup(ctx, index, true)
	if err != nil {
		return err
	}
	if err := idx.Index(id, map[string]any(doc)); err != nil {
		return fmt.Errorf("failed to index document %s/%s: %w", index, id, err)
	}
	return nil
}

// Delete removes a document. Missing documents and indexes are ignored.
func (e *BleveEngine) Delete(ctx context.Context, index, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.lookup(ctx, index, false)
	if err != nil || idx == nil {
		return err
	}
	if err := idx.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", index, id, err)
	}
	return nil
}

// Search runs a match query over the _all field; terms are OR-combined.
func (e *BleveEngine) Search(ctx context.Context, index, query string, from, size int) (*Hits, error) {
	if strings.TrimSpace(query) == "" || size <= 0 {
		return &Hits{IDs: []string{}}, nil
	}
	if from < 0 {
		from = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.lookup(ctx, index, false)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return &Hits{IDs: []string{}}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), size, from, false)
	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("match query on %s: %w", index, err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return &Hits{IDs: ids, Total: int(result.Total)}, nil
}

// Ping reports whether the engine is usable.
func (e *BleveEngine) Ping(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Close closes every open index. Safe to call twice.
func (e *BleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for name, idx := range e.mem {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if e.open != nil {
		e.open.Purge()
	}
	return errors.Join(errs...)
}

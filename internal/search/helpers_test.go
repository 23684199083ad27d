package search_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/microblog/internal/engine"
	"github.com/Aman-CERP/microblog/internal/model"
	"github.com/Aman-CERP/microblog/internal/store"
)

var errEngineDown = errors.New("engine down")

type searchCall struct {
	index, query string
	from, size   int
}

// fakeEngine records every call. Documents whose id is in fail are rejected,
// and writes on a done context fail like a real backend's would.
type fakeEngine struct {
	mu        sync.Mutex
	docs      map[string]map[string]engine.Document
	deleted   []string
	ensured   map[string][]string
	fail      map[string]bool
	panicOn   string
	block     bool
	hits      *engine.Hits
	searchErr error
	searches  []searchCall
	calls     int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		docs:    make(map[string]map[string]engine.Document),
		ensured: make(map[string][]string),
		fail:    make(map[string]bool),
	}
}

func (f *fakeEngine) EnsureIndex(_ context.Context, index string, fields []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ensured[index] = fields
	return nil
}

func (f *fakeEngine) DropIndex(_ context.Context, index string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	delete(f.docs, index)
	return nil
}

func (f *fakeEngine) Index(ctx context.Context, index, id string, doc engine.Document) error {
	f.mu.Lock()
	f.calls++
	block, panicOn := f.block, f.panicOn
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if panicOn == id {
		panic("index exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return errEngineDown
	}
	if f.docs[index] == nil {
		f.docs[index] = make(map[string]engine.Document)
	}
	f.docs[index][id] = doc
	return nil
}

func (f *fakeEngine) Delete(ctx context.Context, index, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.fail[id] {
		return errEngineDown
	}
	delete(f.docs[index], id)
	f.deleted = append(f.deleted, index+"/"+id)
	return nil
}

func (f *fakeEngine) Search(_ context.Context, index, query string, from, size int) (*engine.Hits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.searches = append(f.searches, searchCall{index: index, query: query, from: from, size: size})
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.hits == nil {
		return &engine.Hits{}, nil
	}
	return f.hits, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) indexed(index string) map[string]engine.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]engine.Document, len(f.docs[index]))
	for id, doc := range f.docs[index] {
		out[id] = doc
	}
	return out
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder is an Observer that counts outcomes.
type recorder struct {
	mu      sync.Mutex
	ops     map[string]int
	queries int
}

func (r *recorder) IndexOp(index, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = make(map[string]int)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ops[index+":"+op+":"+result]++
}

func (r *recorder) Query(string, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
}

// bufferLogger returns a JSON logger writing to the returned buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open("", store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func postsTable(db *store.DB) *store.Table[*model.Post] {
	return store.NewTable(db, func() *model.Post { return &model.Post{} })
}

// createUser commits a user and returns it.
func createUser(t *testing.T, db *store.DB, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com"}
	s := db.Session()
	s.Add(u)
	require.NoError(t, s.Commit(context.Background()))
	return u
}

// createPosts commits one post per body in a single transaction.
func createPosts(t *testing.T, db *store.DB, author *model.User, bodies ...string) []*model.Post {
	t.Helper()
	s := db.Session()
	out := make([]*model.Post, len(bodies))
	for i, b := range bodies {
		out[i] = model.NewPost(author.ID, b)
		s.Add(out[i])
	}
	require.NoError(t, s.Commit(context.Background()))
	return out
}

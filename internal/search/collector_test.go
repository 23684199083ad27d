package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/microblog/internal/model"
	"github.com/Aman-CERP/microblog/internal/search"
	"github.com/Aman-CERP/microblog/internal/store"
)

func TestCapture_EmptyChangesGiveNil(t *testing.T) {
	assert.Nil(t, search.Capture(store.Changes{}))
}

func TestCapture_CopiesPendingSets(t *testing.T) {
	// Given: pending changes
	a, b := &model.Post{Body: "a"}, &model.Post{ID: 2, Body: "b"}
	changes := store.Changes{New: []store.Record{a}, Dirty: []store.Record{b}}

	// When: capturing, then mutating the source slices
	snap := search.Capture(changes)
	changes.New[0] = b
	changes.Dirty = append(changes.Dirty, a)

	// Then: the snapshot is unaffected
	assert.Equal(t, 2, snap.Len())
}

func TestCollector_IndexesAfterCommit(t *testing.T) {
	// Given: a store with a collector installed
	db := openDB(t)
	fake := newFakeEngine()
	search.NewCollector(search.NewSynchronizer(fake)).Register(db)

	// When: committing a user and two posts
	author := createUser(t, db, "susan")
	posts := createPosts(t, db, author, "hello world", "second post")

	// Then: the posts are indexed by their assigned ids; the user is not
	docs := fake.indexed(model.PostTable)
	require.Len(t, docs, 2)
	assert.Equal(t, "hello world", docs[search.DocumentID(posts[0])]["body"])
	assert.Equal(t, "second post", docs[search.DocumentID(posts[1])]["body"])
	assert.Empty(t, fake.indexed(model.UserTable))
}

func TestCollector_FailedCommitIndexesNothing(t *testing.T) {
	// Given: a post whose author does not exist
	db := openDB(t)
	fake := newFakeEngine()
	search.NewCollector(search.NewSynchronizer(fake)).Register(db)

	s := db.Session()
	s.Add(model.NewPost(999, "orphan"))

	// When: the commit fails on the foreign key
	err := s.Commit(context.Background())

	// Then: the engine was never called
	require.Error(t, err)
	assert.Zero(t, fake.callCount())
}

func TestCollector_CommitWithNoChangesIsNoOp(t *testing.T) {
	db := openDB(t)
	fake := newFakeEngine()
	search.NewCollector(search.NewSynchronizer(fake)).Register(db)

	require.NoError(t, db.Session().Commit(context.Background()))

	assert.Zero(t, fake.callCount())
}

func TestCollector_AfterCommitNilSnapshot(t *testing.T) {
	c := search.NewCollector(search.NewSynchronizer(newFakeEngine()))

	assert.NotPanics(t, func() { c.AfterCommit(context.Background(), nil) })
}

func TestCollector_DiscardsSnapshotWhenSyncPanics(t *testing.T) {
	// Given: an engine that panics on document 1
	fake := newFakeEngine()
	fake.panicOn = "1"
	logger, logs := bufferLogger()
	c := search.NewCollector(search.NewSynchronizer(fake, search.WithLogger(logger)))

	snap := search.Capture(store.Changes{New: []store.Record{&model.Post{ID: 1, Body: "x"}}})

	// When: the after-commit step runs
	assert.NotPanics(t, func() { c.AfterCommit(context.Background(), snap) })

	// Then: the panic is logged and the snapshot is gone
	assert.Contains(t, logs.String(), "search_sync_panic")
	assert.Zero(t, snap.Len())
}

func TestCollector_SnapshotConsumedOnce(t *testing.T) {
	// Given: a snapshot with one post
	fake := newFakeEngine()
	c := search.NewCollector(search.NewSynchronizer(fake))
	snap := search.Capture(store.Changes{New: []store.Record{&model.Post{ID: 1, Body: "x"}}})

	// When: it is handed over twice
	c.AfterCommit(context.Background(), snap)
	c.AfterCommit(context.Background(), snap)

	// Then: the engine saw one upsert
	assert.Equal(t, 1, fake.callCount())
}

func TestCollector_DeleteAfterAddInSameSession(t *testing.T) {
	// Given: a post added and deleted before commit
	db := openDB(t)
	fake := newFakeEngine()
	search.NewCollector(search.NewSynchronizer(fake)).Register(db)
	author := createUser(t, db, "susan")

	s := db.Session()
	p := model.NewPost(author.ID, "never saved")
	s.Add(p)
	s.Delete(p)

	// When: committing
	require.NoError(t, s.Commit(context.Background()))

	// Then: neither an upsert nor a delete reaches the engine
	assert.Zero(t, fake.callCount())
}

func TestCollector_IndexesWhenCallerGoneAfterCommit(t *testing.T) {
	// Given: a caller that goes away as soon as the commit is durable
	db := openDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db.OnCommit(func(context.Context, store.Changes) store.AfterCommitFunc {
		return func(context.Context) { cancel() }
	})
	fake := newFakeEngine()
	search.NewCollector(search.NewSynchronizer(fake)).Register(db)
	author := createUser(t, db, "susan")

	// When: committing a post and an edit of an earlier one
	earlier := createPosts(t, db, author, "before")[0]
	s := db.Session()
	p := model.NewPost(author.ID, "hello world")
	s.Add(p)
	earlier.Body = "edited"
	s.Add(earlier)
	require.NoError(t, s.Commit(ctx))

	// Then: both writes still reach the index
	require.Error(t, ctx.Err())
	docs := fake.indexed(model.PostTable)
	assert.Equal(t, "hello world", docs[search.DocumentID(p)]["body"])
	assert.Equal(t, "edited", docs[search.DocumentID(earlier)]["body"])
}

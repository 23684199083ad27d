package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// account is a minimal Record over the user table.
type account struct {
	ID       int64
	Username string
}

func (a *account) Table() string          { return "user" }
func (a *account) PrimaryKey() int64      { return a.ID }
func (a *account) SetPrimaryKey(id int64) { a.ID = id }
func (a *account) Columns() []string      { return []string{"username", "email"} }
func (a *account) Values() []any          { return []any{a.Username, a.Username + "@example.com"} }
func (a *account) ScanFrom(row Scanner) error {
	var email string
	return row.Scan(&a.ID, &a.Username, &email)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("", Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func accounts(db *DB) *Table[*account] {
	return NewTable(db, func() *account { return &account{} })
}

func seed(t *testing.T, db *DB, names ...string) []*account {
	t.Helper()
	s := db.Session()
	out := make([]*account, len(names))
	for i, n := range names {
		out[i] = &account{Username: n}
		s.Add(out[i])
	}
	require.NoError(t, s.Commit(context.Background()))
	return out
}

func TestOpen_OnDisk(t *testing.T) {
	// Given: a path in a directory that does not exist yet
	path := filepath.Join(t.TempDir(), "data", "app.db")

	// When: opening, writing, and reopening
	db, err := Open(path, Config{CacheMB: 8})
	require.NoError(t, err)
	seed(t, db, "susan")
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	db, err = Open(path, Config{})
	require.NoError(t, err)
	defer db.Close()

	// Then: the row survived
	n, err := accounts(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, path, db.Path())
}

func TestSession_CommitAssignsPrimaryKeys(t *testing.T) {
	db := newTestDB(t)

	got := seed(t, db, "john", "susan")

	assert.NotZero(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	loaded, err := accounts(db).Get(context.Background(), got[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "susan", loaded.Username)
}

func TestSession_PendingSetsAreDisjoint(t *testing.T) {
	db := newTestDB(t)
	existing := seed(t, db, "a", "b", "c")
	s := db.Session()

	// Given: every kind of transition on one session
	fresh := &account{Username: "new"}
	s.Add(fresh)
	s.Add(fresh)

	s.Add(existing[0])
	s.Delete(existing[0])

	s.Delete(existing[1])
	s.Add(existing[1])

	s.Delete(existing[2])

	// When: reading the pending changes
	c := s.Pending()

	// Then: each object appears in exactly one set
	assert.Equal(t, []Record{fresh}, c.New)
	assert.Equal(t, []Record{existing[1]}, c.Dirty)
	assert.ElementsMatch(t, []Record{existing[0], existing[2]}, c.Deleted)
}

func TestSession_AddThenDeleteUnsavedIsDropped(t *testing.T) {
	db := newTestDB(t)
	s := db.Session()

	// Given: an object added and deleted before any flush
	ghost := &account{Username: "ghost"}
	s.Add(ghost)
	s.Delete(ghost)

	// Then: it is in no set and never persisted
	assert.True(t, s.Pending().Empty())
	require.NoError(t, s.Commit(context.Background()))
	assert.Zero(t, ghost.ID)

	n, err := accounts(db).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_DeleteUnsavedNeverAddedIsIgnored(t *testing.T) {
	db := newTestDB(t)
	s := db.Session()

	s.Delete(&account{Username: "nobody"})

	assert.True(t, s.Pending().Empty())
}

func TestSession_HooksSeeChangesAndRunAfterCommit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var seen Changes
	var afterIDs []int64
	var order []string
	db.OnCommit(func(_ context.Context, c Changes) AfterCommitFunc {
		seen = c
		order = append(order, "before")
		return func(context.Context) {
			order = append(order, "after")
			for _, r := range c.New {
				afterIDs = append(afterIDs, r.PrimaryKey())
			}
		}
	})

	// When: committing one insert
	a := &account{Username: "john"}
	s := db.Session()
	s.Add(a)
	require.NoError(t, s.Commit(ctx))

	// Then: the hook saw it before the key existed, and the callback after
	require.Len(t, seen.New, 1)
	assert.Same(t, a, seen.New[0])
	assert.Equal(t, []string{"before", "after"}, order)
	assert.Equal(t, []int64{a.ID}, afterIDs)
	assert.True(t, s.Pending().Empty())
}

func TestSession_EmptyCommitStillRunsHooks(t *testing.T) {
	db := newTestDB(t)
	calls := 0
	db.OnCommit(func(_ context.Context, c Changes) AfterCommitFunc {
		assert.True(t, c.Empty())
		return func(context.Context) { calls++ }
	})

	require.NoError(t, db.Session().Commit(context.Background()))

	assert.Equal(t, 1, calls)
}

func TestSession_FailedCommitSkipsCallbacksAndResetsKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seed(t, db, "taken")

	afterCalls := 0
	db.OnCommit(func(context.Context, Changes) AfterCommitFunc {
		return func(context.Context) { afterCalls++ }
	})

	// Given: a batch whose second insert violates the unique username
	ok := &account{Username: "fine"}
	dup := &account{Username: "taken"}
	s := db.Session()
	s.Add(ok)
	s.Add(dup)

	// When: committing
	err := s.Commit(ctx)

	// Then: nothing persisted, keys reset, no callback, changes kept
	require.Error(t, err)
	assert.Zero(t, afterCalls)
	assert.Zero(t, ok.ID)
	assert.Len(t, s.Pending().New, 2)

	n, err := accounts(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSession_UpdateMissingRowFails(t *testing.T) {
	db := newTestDB(t)
	s := db.Session()
	s.Add(&account{ID: 999, Username: "ghost"})

	err := s.Commit(context.Background())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_UpdateAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	got := seed(t, db, "a", "b")

	s := db.Session()
	got[0].Username = "renamed"
	s.Add(got[0])
	s.Delete(got[1])
	require.NoError(t, s.Commit(ctx))

	loaded, err := accounts(db).Get(ctx, got[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", loaded.Username)

	_, err = accounts(db).Get(ctx, got[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_Rollback(t *testing.T) {
	db := newTestDB(t)
	s := db.Session()
	s.Add(&account{Username: "x"})

	s.Rollback()

	assert.True(t, s.Pending().Empty())
}

func TestTable_FetchRankedPreservesOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	got := seed(t, db, "one", "two", "three")

	// When: fetching ids in rank order [3, 1, 2] plus a missing id
	cur, err := accounts(db).FetchRanked(ctx, []int64{got[2].ID, got[0].ID, 4242, got[1].ID})
	require.NoError(t, err)
	rows, err := cur.Collect()
	require.NoError(t, err)

	// Then: rows come back in that order and the missing id is skipped
	require.Len(t, rows, 3)
	assert.Equal(t, "three", rows[0].Username)
	assert.Equal(t, "one", rows[1].Username)
	assert.Equal(t, "two", rows[2].Username)
}

func TestTable_FetchRankedEmpty(t *testing.T) {
	db := newTestDB(t)

	cur, err := accounts(db).FetchRanked(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, cur.Next())
	assert.NoError(t, cur.Err())
	assert.NoError(t, cur.Close())
}

func TestTable_EachVisitsEveryRowOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	names := make([]string, 23)
	for i := range names {
		names[i] = fmt.Sprintf("user%02d", i)
	}
	seed(t, db, names...)

	// When: iterating in batches of 5 while querying inside the callback
	var visited []string
	err := accounts(db).Each(ctx, 5, func(a *account) error {
		_, err := accounts(db).Get(ctx, a.ID)
		visited = append(visited, a.Username)
		return err
	})

	// Then: all rows are seen once, in key order
	require.NoError(t, err)
	assert.Equal(t, names, visited)
}

func TestTable_EachStopsOnError(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, "a", "b", "c")
	stop := fmt.Errorf("stop")

	calls := 0
	err := accounts(db).Each(context.Background(), 2, func(*account) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestTable_ListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, "a", "b", "c")

	got, err := accounts(db).List(context.Background(), 2, 0)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Username)
	assert.Equal(t, "b", got[1].Username)
}

func TestDB_ClosedRejectsWork(t *testing.T) {
	db, err := Open("", Config{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = accounts(db).Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Session().Commit(context.Background()), ErrClosed)
	assert.ErrorIs(t, db.Ping(context.Background()), ErrClosed)
}

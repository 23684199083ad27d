package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/microblog/internal/errors"
)

func TestFileLock_LockUnlock(t *testing.T) {
	// Given: a lock in a directory that does not exist yet
	dir := filepath.Join(t.TempDir(), "data")
	l := New(dir, "reindex")

	// When: locking and unlocking
	require.NoError(t, l.Lock(context.Background()))
	assert.True(t, l.IsLocked())
	assert.FileExists(t, filepath.Join(dir, "reindex.lock"))

	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock())

	// Then: it is released
	assert.False(t, l.IsLocked())
}

func TestFileLock_LockWaitsForHolder(t *testing.T) {
	// Given: a holder that releases shortly
	dir := t.TempDir()
	holder := New(dir, "reindex")
	require.NoError(t, holder.TryLock())
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Unlock()
	}()

	// When: a second lock waits
	waiter := New(dir, "reindex")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := waiter.Lock(ctx)

	// Then: it gets the lock once released
	require.NoError(t, err)
	assert.True(t, waiter.IsLocked())
	require.NoError(t, waiter.Unlock())
}

func TestFileLock_LockGivesUpWithContext(t *testing.T) {
	dir := t.TempDir()
	holder := New(dir, "reindex")
	require.NoError(t, holder.TryLock())
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(dir, "reindex").Lock(ctx)

	assert.Error(t, err)
}

func TestFileLock_TryLockContended(t *testing.T) {
	// Given: one holder
	dir := t.TempDir()
	holder := New(dir, "reindex")
	require.NoError(t, holder.TryLock())
	defer holder.Unlock()

	// When: a second lock on the same file tries
	err := New(dir, "reindex").TryLock()

	// Then: it is refused with a retryable code
	assert.Equal(t, merrors.ErrCodeLocked, merrors.GetCode(err))
	assert.True(t, merrors.IsRetryable(err))
}

func TestFileLock_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := New(dir, "reindex")
	require.NoError(t, first.TryLock())
	require.NoError(t, first.Unlock())

	second := New(dir, "reindex")
	require.NoError(t, second.TryLock())
	assert.Equal(t, filepath.Join(dir, "reindex.lock"), second.Path())
	require.NoError(t, second.Unlock())
}

// Package lock provides a cross-process file lock for operations that must
// not run twice against the same data directory, such as a full reindex.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	merrors "github.com/Aman-CERP/microblog/internal/errors"
)

// retryDelay is how often Lock polls a contended lock.
const retryDelay = 250 * time.Millisecond

// FileLock is an exclusive lock backed by gofrs/flock.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New returns a lock on <dir>/<name>.lock. The file is created on first use.
func New(dir, name string) *FileLock {
	path := filepath.Join(dir, name+".lock")
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Lock waits until the lock is acquired or ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock %s", l.path)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without blocking. It returns an ERR_207_LOCKED
// error when another process holds it.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return merrors.New(merrors.ErrCodeLocked, "another process holds "+l.path, nil).
			WithSuggestion("Wait for the running reindex to finish and retry")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Unlocking an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}

// Package store is the relational persistence layer: a SQLite database,
// unit-of-work sessions with commit hooks, and typed table access.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Config tunes the SQLite connection.
type Config struct {
	// CacheMB is the page cache size in megabytes (default: 64).
	CacheMB int
}

// DB is the application database.
//
// The pool holds a single connection, so a Cursor must be closed or drained
// before another query is issued.
type DB struct {
	mu     sync.RWMutex
	sql    *sql.DB
	path   string
	hooks  []BeforeCommitFunc
	closed bool
}

// Open opens or creates the database at path and applies the schema.
// If path is empty, an in-memory database is used.
func Open(path string, cfg Config) (*DB, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; also keeps an in-memory database alive for the DB's lifetime.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	cacheMB := cfg.CacheMB
	if cacheMB <= 0 {
		cacheMB = 64
	}

	// modernc.org/sqlite ignores most DSN parameters, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{sql: sqlDB, path: path}, nil
}

// Path returns the database file path, empty for in-memory databases.
func (db *DB) Path() string {
	return db.path
}

// OnCommit registers a hook run by every Session.Commit.
// Hooks run in registration order.
func (db *DB) OnCommit(fn BeforeCommitFunc) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hooks = append(db.hooks, fn)
}

func (db *DB) commitHooks() []BeforeCommitFunc {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]BeforeCommitFunc(nil), db.hooks...)
}

// Session starts a new unit of work.
func (db *DB) Session() *Session {
	return &Session{db: db, state: make(map[Record]pendingState)}
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.check(); err != nil {
		return err
	}
	return db.sql.PingContext(ctx)
}

func (db *DB) check() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	_, _ = db.sql.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.sql.Close()
}

// quoteIdent quotes a table or column name ("user" is a keyword).
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

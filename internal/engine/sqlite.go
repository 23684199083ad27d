package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteEngine implements Engine on a single SQLite FTS5 table shared by
// all indexes. WAL mode lets the CLI reindex while the server is running.
type SQLiteEngine struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ Engine = (*SQLiteEngine)(nil)
	_ Pinger = (*SQLiteEngine)(nil)
)

// validateSQLiteIntegrity checks if an FTS database is valid before opening.
// Returns nil if valid or absent.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteEngine opens or creates the FTS database at path.
// If path is empty, an in-memory database is used.
func NewSQLiteEngine(path string) (*SQLiteEngine, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		// The index is derived data: a corrupt file is cleared and rebuilt by reindex.
		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_search_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("search index corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("sqlite_search_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	e := &SQLiteEngine{db: db, path: path}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return e, nil
}

func (e *SQLiteEngine) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- index_name and doc_id are stored but not tokenized
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
		index_name UNINDEXED,
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS fts_indexes (
		index_name TEXT PRIMARY KEY,
		fields     TEXT NOT NULL DEFAULT ''
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := e.db.Exec(schema)
	return err
}

// EnsureIndex records the index and its fields. FTS5 needs no per-index DDL.
func (e *SQLiteEngine) EnsureIndex(ctx context.Context, index string, fields []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fts_indexes(index_name, fields) VALUES (?, ?)`,
		index, strings.Join(fields, ","))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	return nil
}

// DropIndex deletes every document of the index.
func (e *SQLiteEngine) DropIndex(ctx context.Context, index string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_documents WHERE index_name = ?`, index); err != nil {
		return fmt.Errorf("failed to drop index %s: %w", index, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_indexes WHERE index_name = ?`, index); err != nil {
		return fmt.Errorf("failed to drop index %s: %w", index, err)
	}
	return tx.Commit()
}

// Index replaces the document's row. Content is pre-tokenized so indexing
// and querying apply the same stop words.
func (e *SQLiteEngine) Index(ctx context.Context, index, id string, doc Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_documents WHERE index_name = ? AND doc_id = ?`, index, id); err != nil {
		return fmt.Errorf("failed to delete existing document %s/%s: %w", index, id, err)
	}
	content := strings.Join(Tokenize(flatten(doc)), " ")
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fts_documents(index_name, doc_id, content) VALUES (?, ?, ?)`, index, id, content); err != nil {
		return fmt.Errorf("failed to index document %s/%s: %w", index, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO fts_indexes(index_name) VALUES (?)`, index); err != nil {
		return fmt.Errorf("failed to register index %s: %w", index, err)
	}

	return tx.Commit()
}

// Delete removes a document.
func (e *SQLiteEngine) Delete(ctx context.Context, index, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM fts_documents WHERE index_name = ? AND doc_id = ?`, index, id); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", index, id, err)
	}
	return nil
}

// matchExpr builds an FTS5 expression matching any query token.
// Tokens are quoted so FTS5 operators in user input are taken literally.
func matchExpr(query string) string {
	tokens := unique(Tokenize(query))
	for i, t := range tokens {
		tokens[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(tokens, " OR ")
}

// Search ranks with bm25 and pages with LIMIT/OFFSET.
func (e *SQLiteEngine) Search(ctx context.Context, index, query string, from, size int) (*Hits, error) {
	expr := matchExpr(query)
	if expr == "" || size <= 0 {
		return &Hits{IDs: []string{}}, nil
	}
	if from < 0 {
		from = 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}

	var total int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fts_documents WHERE fts_documents MATCH ? AND index_name = ?`,
		expr, index).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count matches in %s: %w", index, err)
	}
	if total == 0 {
		return &Hits{IDs: []string{}}, nil
	}

	// bm25() is negative; lower is better
	rows, err := e.db.QueryContext(ctx, `
		SELECT doc_id
		FROM fts_documents
		WHERE fts_documents MATCH ? AND index_name = ?
		ORDER BY bm25(fts_documents), doc_id
		LIMIT ? OFFSET ?`,
		expr, index, size, from)
	if err != nil {
		return nil, fmt.Errorf("rank matches in %s: %w", index, err)
	}
	defer rows.Close()

	ids := make([]string, 0, size)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Hits{IDs: ids, Total: total}, nil
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (e *SQLiteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	_, _ = e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return e.db.Close()
}

// Ping checks the FTS database connection.
func (e *SQLiteEngine) Ping(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return e.db.PingContext(ctx)
}

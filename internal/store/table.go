package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Table gives typed read access to the rows of one Record type.
type Table[T Record] struct {
	db      *DB
	fresh   func() T
	name    string
	columns string
}

// NewTable returns the table for the record type built by fresh.
// fresh must return a new zero record each time it is called.
func NewTable[T Record](db *DB, fresh func() T) *Table[T] {
	proto := fresh()
	cols := []string{"id"}
	for _, c := range proto.Columns() {
		cols = append(cols, quoteIdent(c))
	}
	return &Table[T]{
		db:      db,
		fresh:   fresh,
		name:    proto.Table(),
		columns: strings.Join(cols, ", "),
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Get loads the row with the given primary key.
func (t *Table[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := t.db.check(); err != nil {
		return zero, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.columns, quoteIdent(t.name))
	rec := t.fresh()
	if err := rec.ScanFrom(t.db.sql.QueryRowContext(ctx, query, id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("%s %d: %w", t.name, id, ErrNotFound)
		}
		return zero, fmt.Errorf("get %s %d: %w", t.name, id, err)
	}
	return rec, nil
}

// Count returns the number of rows.
func (t *Table[T]) Count(ctx context.Context) (int, error) {
	if err := t.db.check(); err != nil {
		return 0, err
	}

	var n int
	err := t.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t.name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

// List returns up to limit rows, newest (highest id) first.
func (t *Table[T]) List(ctx context.Context, limit, offset int) ([]T, error) {
	if err := t.db.check(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT ? OFFSET ?", t.columns, quoteIdent(t.name))
	rows, err := t.db.sql.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	return (&Cursor[T]{rows: rows, fresh: t.fresh}).Collect()
}

// Each calls fn for every row in primary-key order, reading batch rows at a
// time. Each batch is read completely before fn runs, so fn may query the
// database. Returning an error from fn stops the iteration.
func (t *Table[T]) Each(ctx context.Context, batch int, fn func(T) error) error {
	if batch <= 0 {
		batch = 500
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id > ? ORDER BY id LIMIT ?", t.columns, quoteIdent(t.name))

	var after int64
	for {
		if err := t.db.check(); err != nil {
			return err
		}

		rows, err := t.db.sql.QueryContext(ctx, query, after, batch)
		if err != nil {
			return fmt.Errorf("scan %s after id %d: %w", t.name, after, err)
		}
		page, err := (&Cursor[T]{rows: rows, fresh: t.fresh}).Collect()
		if err != nil {
			return fmt.Errorf("scan %s after id %d: %w", t.name, after, err)
		}

		for _, rec := range page {
			if err := fn(rec); err != nil {
				return err
			}
		}

		if len(page) < batch {
			return nil
		}
		after = page[len(page)-1].PrimaryKey()
	}
}

// FetchRanked loads the rows whose ids are listed, in the order given,
// with a single query. Ids with no row are silently absent from the result.
func (t *Table[T]) FetchRanked(ctx context.Context, ids []int64) (*Cursor[T], error) {
	if len(ids) == 0 {
		return &Cursor[T]{}, nil
	}
	if err := t.db.check(); err != nil {
		return nil, err
	}

	var order strings.Builder
	order.WriteString("CASE id")
	args := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, id)
	}
	for rank, id := range ids {
		fmt.Fprintf(&order, " WHEN ? THEN %d", rank)
		args = append(args, id)
	}
	order.WriteString(" END")

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s) ORDER BY %s",
		t.columns, quoteIdent(t.name), placeholders(len(ids)), order.String())
	rows, err := t.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s by rank: %w", t.name, err)
	}
	return &Cursor[T]{rows: rows, fresh: t.fresh}, nil
}

// Cursor is a lazy, single-pass iterator over query results.
// The zero Cursor is empty.
type Cursor[T Record] struct {
	rows  *sql.Rows
	fresh func() T
	cur   T
	err   error
}

// Next advances to the next row. It returns false at the end or on error;
// the cursor is closed automatically in either case.
func (c *Cursor[T]) Next() bool {
	if c.rows == nil || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		_ = c.Close()
		return false
	}

	rec := c.fresh()
	if err := rec.ScanFrom(c.rows); err != nil {
		c.err = err
		_ = c.Close()
		return false
	}
	c.cur = rec
	return true
}

// Value returns the current row.
func (c *Cursor[T]) Value() T {
	return c.cur
}

// Err returns the first error met while iterating.
func (c *Cursor[T]) Err() error {
	return c.err
}

// Close releases the underlying rows. Safe to call more than once.
func (c *Cursor[T]) Close() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}

// Collect drains the cursor into a slice.
func (c *Cursor[T]) Collect() ([]T, error) {
	defer func() { _ = c.Close() }()

	out := []T{}
	for c.Next() {
		out = append(out, c.Value())
	}
	return out, c.Err()
}

// New returns a fresh zero record of the table's type.
func (t *Table[T]) New() T {
	return t.fresh()
}

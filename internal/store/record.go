package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a row with the requested primary key does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("store is closed")
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Record is a persisted domain object.
//
// Implementations must be pointer types: the session tracks pending records
// by identity and writes generated primary keys back through SetPrimaryKey.
type Record interface {
	// Table is the table name, also used as the search collection name.
	Table() string

	// PrimaryKey returns the integer key, 0 when never persisted.
	PrimaryKey() int64

	// SetPrimaryKey stores a key assigned on insert.
	SetPrimaryKey(id int64)

	// Columns lists non-key columns in the order Values returns them.
	Columns() []string

	// Values returns column values in Columns order.
	Values() []any

	// ScanFrom reads the id column followed by Columns.
	ScanFrom(row Scanner) error
}

// Changes holds the pending objects of one commit, split by what will happen
// to them. The three slices are disjoint.
type Changes struct {
	New     []Record
	Dirty   []Record
	Deleted []Record
}

// Empty reports whether the commit carries no pending objects.
func (c Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Dirty) == 0 && len(c.Deleted) == 0
}

// AfterCommitFunc runs once after a transaction is durably committed.
// It is never called when the commit fails or is rolled back.
type AfterCommitFunc func(ctx context.Context)

// BeforeCommitFunc observes pending changes before the transaction starts.
// New records have no primary key yet. The returned function, if non-nil,
// is called after a successful commit.
type BeforeCommitFunc func(ctx context.Context, changes Changes) AfterCommitFunc

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type pendingState int

const (
	pendingNew pendingState = iota + 1
	pendingDirty
	pendingDeleted
)

// Session is a unit of work: it collects pending inserts, updates and
// deletes and writes them in one transaction on Commit.
//
// A Session is not safe for concurrent use.
type Session struct {
	db    *DB
	order []Record
	state map[Record]pendingState
}

// Add stages r for insert (no primary key yet) or update.
// Adding a record that is pending deletion turns the delete into an update.
func (s *Session) Add(r Record) {
	st, ok := s.state[r]
	switch {
	case !ok:
		s.order = append(s.order, r)
		if r.PrimaryKey() == 0 {
			s.state[r] = pendingNew
		} else {
			s.state[r] = pendingDirty
		}
	case st == pendingDeleted:
		s.state[r] = pendingDirty
	}
}

// Delete stages r for deletion. A record that was added in this session and
// never flushed is simply forgotten: it is neither inserted nor deleted.
func (s *Session) Delete(r Record) {
	st, ok := s.state[r]
	switch {
	case ok && st == pendingNew:
		s.forget(r)
	case ok:
		s.state[r] = pendingDeleted
	case r.PrimaryKey() != 0:
		s.order = append(s.order, r)
		s.state[r] = pendingDeleted
	}
}

func (s *Session) forget(r Record) {
	delete(s.state, r)
	for i, o := range s.order {
		if o == r {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Pending returns a copy of the staged changes.
func (s *Session) Pending() Changes {
	var c Changes
	for _, r := range s.order {
		switch s.state[r] {
		case pendingNew:
			c.New = append(c.New, r)
		case pendingDirty:
			c.Dirty = append(c.Dirty, r)
		case pendingDeleted:
			c.Deleted = append(c.Deleted, r)
		}
	}
	return c
}

// Rollback discards all staged changes.
func (s *Session) Rollback() {
	s.order = nil
	s.state = make(map[Record]pendingState)
}

// Commit runs the before-commit hooks, writes the staged changes in one
// transaction and, once it is durable, runs the callbacks the hooks returned.
//
// On failure the transaction is rolled back, keys assigned during the failed
// flush are reset, the staged changes are kept and no callback runs.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.db.check(); err != nil {
		return err
	}

	changes := s.Pending()

	var after []AfterCommitFunc
	for _, hook := range s.db.commitHooks() {
		if fn := hook(ctx, changes); fn != nil {
			after = append(after, fn)
		}
	}

	if !changes.Empty() {
		if err := s.flush(ctx, changes); err != nil {
			return err
		}
	}

	s.Rollback()
	for _, fn := range after {
		fn(ctx)
	}
	return nil
}

func (s *Session) flush(ctx context.Context, c Changes) (err error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var assigned []Record
	defer func() {
		if err == nil {
			return
		}
		_ = tx.Rollback()
		for _, r := range assigned {
			r.SetPrimaryKey(0)
		}
	}()

	for _, r := range c.New {
		id, err := insert(ctx, tx, r)
		if err != nil {
			return err
		}
		r.SetPrimaryKey(id)
		assigned = append(assigned, r)
	}
	for _, r := range c.Dirty {
		if err := update(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, r := range c.Deleted {
		if err := remove(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func insert(ctx context.Context, tx *sql.Tx, r Record) (int64, error) {
	cols := r.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(r.Table()), strings.Join(quoted, ", "), placeholders(len(cols)))
	res, err := tx.ExecContext(ctx, query, r.Values()...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", r.Table(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", r.Table(), err)
	}
	return id, nil
}

func update(ctx context.Context, tx *sql.Tx, r Record) error {
	cols := r.Columns()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(r.Table()), strings.Join(sets, ", "))
	res, err := tx.ExecContext(ctx, query, append(r.Values(), r.PrimaryKey())...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", r.Table(), r.PrimaryKey(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s %d: %w", r.Table(), r.PrimaryKey(), ErrNotFound)
	}
	return nil
}

func remove(ctx context.Context, tx *sql.Tx, r Record) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(r.Table()))
	if _, err := tx.ExecContext(ctx, query, r.PrimaryKey()); err != nil {
		return fmt.Errorf("delete %s %d: %w", r.Table(), r.PrimaryKey(), err)
	}
	return nil
}

// Package search keeps the full-text index in step with the relational
// store and answers ranked queries against it.
//
// A Collector hooked into store commits captures each transaction's changes
// as a Snapshot; after the commit is durable the Synchronizer projects every
// Searchable record into an engine.Document and upserts or deletes it. The
// Bridge runs queries on the engine and loads the ranked rows back from the
// store in one query.
package search

import (
	"fmt"
	"strconv"

	"github.com/Aman-CERP/microblog/internal/engine"
	"github.com/Aman-CERP/microblog/internal/store"
)

// Searchable is a record type that is mirrored into the search index.
// The index name is the record's table name.
type Searchable interface {
	store.Record

	// SearchableFields lists the indexed fields in declaration order.
	SearchableFields() []string

	// SearchField returns the value of one declared field.
	SearchField(name string) (any, bool)
}

// Project builds the index document for s from its declared fields.
func Project(s Searchable) (engine.Document, error) {
	fields := s.SearchableFields()
	doc := make(engine.Document, len(fields))
	for _, f := range fields {
		v, ok := s.SearchField(f)
		if !ok {
			return nil, fmt.Errorf("%s: searchable field %q has no value accessor", s.Table(), f)
		}
		doc[f] = v
	}
	return doc, nil
}

// DocumentID is the engine identifier of a record: its decimal primary key.
func DocumentID(r store.Record) string {
	return strconv.FormatInt(r.PrimaryKey(), 10)
}

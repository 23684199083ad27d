package engine

import (
	"context"

	merrors "github.com/Aman-CERP/microblog/internal/errors"
)

// breakerEngine fails fast while a backend keeps erroring.
type breakerEngine struct {
	next Engine
	cb   *merrors.CircuitBreaker
}

var _ Pinger = (*breakerEngine)(nil)

// WithBreaker wraps e so that calls return merrors.ErrCircuitOpen without
// reaching the backend once cb has tripped. A nil engine stays nil.
//
// Calls the caller cancelled are not counted as failures; calls cut short
// by WithCallTimeout are.
func WithBreaker(e Engine, cb *merrors.CircuitBreaker) Engine {
	if e == nil || cb == nil {
		return e
	}
	return &breakerEngine{next: e, cb: cb}
}

func (b *breakerEngine) EnsureIndex(ctx context.Context, index string, fields []string) error {
	return b.cb.Execute(ctx, func() error { return b.next.EnsureIndex(ctx, index, fields) })
}

func (b *breakerEngine) DropIndex(ctx context.Context, index string) error {
	return b.cb.Execute(ctx, func() error { return b.next.DropIndex(ctx, index) })
}

func (b *breakerEngine) Index(ctx context.Context, index, id string, doc Document) error {
	return b.cb.Execute(ctx, func() error { return b.next.Index(ctx, index, id, doc) })
}

func (b *breakerEngine) Delete(ctx context.Context, index, id string) error {
	return b.cb.Execute(ctx, func() error { return b.next.Delete(ctx, index, id) })
}

func (b *breakerEngine) Search(ctx context.Context, index, query string, from, size int) (*Hits, error) {
	var hits *Hits
	err := b.cb.Execute(ctx, func() error {
		var err error
		hits, err = b.next.Search(ctx, index, query, from, size)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Ping bypasses the breaker so health checks see the backend itself.
func (b *breakerEngine) Ping(ctx context.Context) error {
	return Ping(ctx, b.next)
}

func (b *breakerEngine) Close() error {
	return b.next.Close()
}

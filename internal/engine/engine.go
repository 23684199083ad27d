// Package engine provides full-text search backends that store one flat
// document per record and answer ranked ID queries.
package engine

import (
	"context"
	"errors"
	"time"
)

// Backend names accepted by New.
const (
	BackendBleve  = "bleve"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine is closed")

// ErrTimeout is the cause of a context cancelled by WithCallTimeout.
var ErrTimeout = errors.New("search engine call timed out")

// WithCallTimeout bounds one engine call. The deadline carries ErrTimeout
// as its cause, so a circuit breaker counts it against the backend while
// ignoring callers that gave up.
func WithCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, d, ErrTimeout)
}

// Pinger is implemented by engines that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks e's backend. Engines without a health check always pass.
func Ping(ctx context.Context, e Engine) error {
	if p, ok := e.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// OpError records the backend operation that failed.
type OpError struct {
	Op    string
	Index string
	Err   error
}

func (e *OpError) Error() string {
	if e.Index == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Index + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

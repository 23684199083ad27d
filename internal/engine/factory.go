package engine

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of bleve, sqlite, redis or none. Empty means none.
	Backend string
	// Path is the data directory for bleve and sqlite. Empty means in-memory.
	Path string
	// MaxOpenIndexes bounds open Bleve index handles.
	MaxOpenIndexes int
	// OpenTimeout bounds the wait for a Bleve index another process holds.
	OpenTimeout time.Duration
	// Redis configures the redis backend.
	Redis RedisConfig
}

// New creates the configured engine.
//
// Backend "none" (or empty) returns a nil Engine and no error: callers treat
// a nil Engine as "search is not configured".
func New(cfg Config) (Engine, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil

	case BackendBleve:
		e, err := NewBleveEngine(cfg.Path, cfg.MaxOpenIndexes, WithOpenTimeout(cfg.OpenTimeout))
		if err != nil {
			return nil, err
		}
		return e, nil

	case BackendSQLite:
		var path string
		if cfg.Path != "" {
			path = filepath.Join(cfg.Path, "search.db")
		}
		e, err := NewSQLiteEngine(path)
		if err != nil {
			return nil, err
		}
		return e, nil

	case BackendRedis:
		e, err := NewRedisEngine(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown search backend: %s (valid options: bleve, sqlite, redis, none)", cfg.Backend)
	}
}

// Package app assembles the store, the search engine and the search sync
// core from configuration, and exposes the microblog write and search
// operations shared by the HTTP API and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/microblog/internal/config"
	"github.com/Aman-CERP/microblog/internal/engine"
	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/metrics"
	"github.com/Aman-CERP/microblog/internal/model"
	"github.com/Aman-CERP/microblog/internal/search"
	"github.com/Aman-CERP/microblog/internal/store"
)

// App owns the process-wide components. Close releases them.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	DB       *store.DB
	Engine   engine.Engine
	Sync     *search.Synchronizer
	Bridge   *search.Bridge
	Registry *search.Registry

	Users    *store.Table[*model.User]
	Posts    *store.Table[*model.Post]
	Messages *store.Table[*model.Message]

	customEngine bool
}

// Option configures New.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.Logger = l
		}
	}
}

// WithMetrics reuses m instead of creating a new registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.Metrics = m
		}
	}
}

// WithEngine uses e instead of building the configured backend.
func WithEngine(e engine.Engine) Option {
	return func(a *App) {
		a.Engine = e
		a.customEngine = true
	}
}

// New opens the store and the configured search engine and installs the
// search collector on the store.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}

	db, err := store.Open(cfg.Database.Path, store.Config{CacheMB: cfg.Database.CacheMB})
	if err != nil {
		return nil, merrors.StorageError("failed to open database", err).
			WithDetail("path", cfg.Database.Path)
	}
	a.DB = db

	if !a.customEngine {
		a.Engine, err = engine.New(engineConfig(cfg))
		if err != nil {
			_ = db.Close()
			return nil, merrors.ConfigError("failed to open search backend "+cfg.Search.Backend, err)
		}
	}
	a.Engine = engine.WithBreaker(a.Engine, a.breaker())

	if a.Engine == nil {
		a.Logger.Info("search_disabled", "backend", cfg.Search.Backend)
	}

	searchOpts := []search.Option{
		search.WithLogger(a.Logger),
		search.WithObserver(a.Metrics),
		search.WithTimeout(cfg.Search.Timeout),
		search.WithPerPage(cfg.Search.PerPage),
		search.WithReindex(cfg.Search.ReindexBatch, cfg.Search.ReindexWorkers),
		search.WithReindexRate(cfg.Search.ReindexRate),
	}
	a.Sync = search.NewSynchronizer(a.Engine, searchOpts...)
	a.Bridge = search.NewBridge(a.Engine, searchOpts...)
	search.NewCollector(a.Sync).Register(db)

	a.Users = store.NewTable(db, func() *model.User { return &model.User{} })
	a.Posts = store.NewTable(db, func() *model.Post { return &model.Post{} })
	a.Messages = store.NewTable(db, func() *model.Message { return &model.Message{} })

	a.Registry = search.NewRegistry()
	search.Register(a.Registry, a.Posts)

	return a, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Backend:        strings.ToLower(cfg.Search.Backend),
		Path:           cfg.Search.Path,
		MaxOpenIndexes: cfg.Search.MaxOpenIndexes,
		OpenTimeout:    cfg.Search.Timeout,
		Redis: engine.RedisConfig{
			Addrs:     cfg.Search.RedisAddrs,
			Password:  cfg.Search.RedisPassword,
			KeyPrefix: cfg.Search.KeyPrefix,
		},
	}
}

func (a *App) breaker() *merrors.CircuitBreaker {
	if a.Config.Search.BreakerFailures <= 0 {
		return nil
	}
	return merrors.NewCircuitBreaker("search",
		merrors.WithMaxFailures(a.Config.Search.BreakerFailures),
		merrors.WithResetTimeout(a.Config.Search.BreakerReset),
		merrors.WithStateChange(func(name string, from, to merrors.State) {
			a.Logger.Warn("circuit_state_change", "breaker", name, "from", from.String(), "to", to.String())
		}),
	)
}

// EnsureIndexes provisions the index of every searchable collection.
func (a *App) EnsureIndexes(ctx context.Context) error {
	if err := a.Sync.EnsureIndexes(ctx, a.Registry); err != nil {
		return merrors.New(merrors.ErrCodeIndexFailed, "failed to provision search indexes", err)
	}
	return nil
}

// ResetIndexes drops and recreates every search index. Documents are
// gone until the next Reindex.
func (a *App) ResetIndexes(ctx context.Context) error {
	if err := a.Sync.ResetIndexes(ctx, a.Registry); err != nil {
		return merrors.New(merrors.ErrCodeIndexFailed, "failed to reset search indexes", err)
	}
	return nil
}

// Ping checks the store.
func (a *App) Ping(ctx context.Context) error {
	return a.DB.Ping(ctx)
}

// PingSearch checks the search backend. It returns nil when search is
// disabled.
func (a *App) PingSearch(ctx context.Context) error {
	if a.Engine == nil {
		return nil
	}
	if t := a.Config.Search.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return engine.Ping(ctx, a.Engine)
}

// Close releases the engine and the store.
func (a *App) Close() error {
	var errs []error
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close search engine: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

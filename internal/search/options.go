package search

import (
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Default tuning values.
const (
	DefaultPerPage        = 25
	DefaultTimeout        = 5 * time.Second
	DefaultReindexBatch   = 500
	DefaultReindexWorkers = 4

	// MaxPerPage bounds the page size of a query.
	MaxPerPage = 100
	// MaxPage bounds the page number so that offsets cannot overflow.
	MaxPage = math.MaxInt32 / MaxPerPage
)

// Observer receives index and query outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	IndexOp(index, op string, err error)
	Query(index string, took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) IndexOp(string, string, error) {}
func (nopObserver) Query(string, time.Duration, error) {}

type options struct {
	logger         *slog.Logger
	observer       Observer
	timeout        time.Duration
	perPage        int
	reindexBatch   int
	reindexWorkers int
	limiter        *rate.Limiter
}

func defaultOptions() options {
	return options{
		logger:         slog.Default(),
		observer:       nopObserver{},
		timeout:        DefaultTimeout,
		perPage:        DefaultPerPage,
		reindexBatch:   DefaultReindexBatch,
		reindexWorkers: DefaultReindexWorkers,
	}
}

// Option configures a Synchronizer or a Bridge.
type Option func(*options)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver reports every engine call to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithTimeout bounds each engine call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPerPage sets the page size used when a query asks for none, up to
// MaxPerPage.
func WithPerPage(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.perPage = min(n, MaxPerPage)
		}
	}
}

// WithReindex sets the row batch size and the number of concurrent upserts
// used by ReindexAll.
func WithReindex(batch, workers int) Option {
	return func(o *options) {
		if batch > 0 {
			o.reindexBatch = batch
		}
		if workers > 0 {
			o.reindexWorkers = workers
		}
	}
}

// WithReindexRate caps ReindexAll at perSecond upserts. Zero means no cap.
func WithReindexRate(perSecond float64) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		} else {
			o.limiter = nil
		}
	}
}

package loader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"market_engine/internal/gateway"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds simultaneous fetches per batch.
const DefaultConcurrency = 8

// Observer is told about every settled fetch. It is called from the fetch
// goroutines and must be safe for concurrent use.
type Observer func(kind gateway.Kind, err error, elapsed time.Duration)

// Result holds one settled batch. Every requested key is present in
// Results; failed keys map to nil and have an entry in Errors.
type Result struct {
	Results   map[string]*gateway.Payload
	Errors    map[string]error
	Succeeded int
	Failed    int
}

// Payload returns the payload for key if it succeeded.
func (r Result) Payload(key string) (*gateway.Payload, bool) {
	p := r.Results[key]
	return p, p != nil
}

// Loader fans a batch of requests out to a gateway and waits for all of them.
type Loader struct {
	gw          gateway.Gateway
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithConcurrency sets the fan-out bound.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithObserver installs a per-fetch hook, typically for metrics.
func WithObserver(o Observer) Option {
	return func(l *Loader) { l.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loader. The gateway is wrapped with gateway.Safe so a
// panicking source cannot take the batch down.
func New(gw gateway.Gateway, opts ...Option) *Loader {
	l := &Loader{
		gw:          gateway.Safe(gw),
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("module", "loader")
	return l
}

// LoadAll issues every request concurrently and returns once all have
// settled. It never returns an error; per-request failures are in Result.
// Duplicate keys are fetched once.
func (l *Loader) LoadAll(ctx context.Context, reqs []gateway.Request) Result {
	res := Result{
		Results: make(map[string]*gateway.Payload, len(reqs)),
		Errors:  make(map[string]error),
	}

	var mu sync.Mutex
	// members always return nil so Wait joins every call instead of
	// cancelling siblings on the first failure
	var g errgroup.Group
	g.SetLimit(l.concurrency)

	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		key := req.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Results[key] = nil

		g.Go(func() error {
			start := time.Now()
			p, err := l.gw.Fetch(ctx, req)
			elapsed := time.Since(start)
			if l.observer != nil {
				l.observer(req.Kind, err, elapsed)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[key] = err
				res.Failed++
				l.logger.Warn("Fetch failed",
					slog.String("key", key),
					slog.Any("error", err),
				)
				return nil
			}
			res.Results[key] = &p
			res.Succeeded++
			return nil
		})
	}

	_ = g.Wait()
	return res
}

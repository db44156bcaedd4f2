package funding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options bound network cost and data age for the cache. Immutable after
// construction.
type Options struct {
	// RefreshInterval is the proactive TTL: below this age a snapshot is
	// served from cache without any network call.
	RefreshInterval time.Duration
	// MaxStaleness is the hard ceiling: a snapshot aged exactly MaxStaleness
	// or older must not be served, even when the venue is unreachable.
	MaxStaleness time.Duration
	// FetchTimeout bounds every single fetch attempt.
	FetchTimeout time.Duration
	// PeriodsPerYear annualizes the per-settlement rate (8h funding → 1095).
	PeriodsPerYear int64
}

type entry struct {
	snap    Snapshot
	lastErr error
}

// Cache serves the freshest affordable funding Snapshot per symbol. Fetches
// are single-flight per symbol; concurrent callers share one in-flight
// request. Exactly one fetch attempt is made per Get or Refresh invocation;
// retry policy belongs to the caller.
type Cache struct {
	opts   Options
	source Source
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	flight  singleflight.Group

	now func() time.Time
}

// NewCache validates the options and constructs a cache around the source.
func NewCache(opts Options, source Source, logger zerolog.Logger) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidConfig)
	}
	if opts.RefreshInterval <= 0 {
		return nil, fmt.Errorf("%w: refresh_interval must be positive", ErrInvalidConfig)
	}
	if opts.MaxStaleness <= 0 {
		return nil, fmt.Errorf("%w: max_staleness must be positive", ErrInvalidConfig)
	}
	if opts.MaxStaleness < opts.RefreshInterval {
		return nil, fmt.Errorf("%w: max_staleness must not be below refresh_interval", ErrInvalidConfig)
	}
	if opts.FetchTimeout <= 0 {
		return nil, fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidConfig)
	}
	if opts.PeriodsPerYear <= 0 {
		return nil, fmt.Errorf("%w: periods_per_year must be positive", ErrInvalidConfig)
	}

	return &Cache{
		opts:    opts,
		source:  source,
		logger:  logger.With().Str("component", "funding_cache").Logger(),
		entries: make(map[string]*entry),
		now:     time.Now,
	}, nil
}

// Get returns the snapshot for symbol, fetching through the source when the
// cached one has outlived RefreshInterval. The bool reports a stale serve:
// the fetch failed and a cached snapshot within MaxStaleness was returned
// instead. When no tolerable snapshot exists Get returns *StaleDataError.
func (c *Cache) Get(ctx context.Context, symbol string) (Snapshot, bool, error) {
	if snap, ok := c.lookup(symbol); ok && snap.Age(c.now()) <= c.opts.RefreshInterval {
		return snap, false, nil
	}

	v, err, _ := c.flight.Do(symbol, func() (interface{}, error) {
		// A flight we waited on may have refreshed the entry already.
		if snap, ok := c.lookup(symbol); ok && snap.Age(c.now()) <= c.opts.RefreshInterval {
			return snap, nil
		}
		snap, err := c.fetch(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return snap, nil
	})
	if err == nil {
		return v.(Snapshot), false, nil
	}

	snap, ok := c.lookup(symbol)
	if !ok {
		return Snapshot{}, false, &StaleDataError{Symbol: symbol, MaxStaleness: c.opts.MaxStaleness}
	}
	age := snap.Age(c.now())
	if age < c.opts.MaxStaleness {
		c.logger.Warn().Err(err).
			Str("symbol", symbol).
			Dur("age", age).
			Msg("fetch failed, serving stale snapshot within ceiling")
		return snap, true, nil
	}
	return Snapshot{}, false, &StaleDataError{Symbol: symbol, Age: age, MaxStaleness: c.opts.MaxStaleness}
}

// Refresh fetches every listed symbol concurrently, each bounded by the fetch
// timeout. Partial failure is expected: the returned map holds the symbols
// that succeeded and the error slice carries one entry per failed symbol.
func (c *Cache) Refresh(ctx context.Context, symbols []string) (map[string]Snapshot, []error) {
	var (
		mu    sync.Mutex
		snaps = make(map[string]Snapshot, len(symbols))
		errs  []error
	)

	g := new(errgroup.Group)
	for _, symbol := range symbols {
		g.Go(func() error {
			v, err, _ := c.flight.Do(symbol, func() (interface{}, error) {
				snap, err := c.fetch(ctx, symbol)
				if err != nil {
					return nil, err
				}
				return snap, nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
				return nil
			}
			snap := v.(Snapshot)
			snaps[snap.Symbol] = snap
			return nil
		})
	}
	_ = g.Wait()

	return snaps, errs
}

// IsStale reports whether the cached snapshot for symbol has aged past the
// caller-supplied bound. A missing snapshot counts as stale. No fetch is
// triggered.
func (c *Cache) IsStale(symbol string, maxAge time.Duration) bool {
	snap, ok := c.lookup(symbol)
	if !ok {
		return true
	}
	return snap.Age(c.now()) >= maxAge
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// fetch performs exactly one bounded fetch attempt and swaps the cache entry
// on success. Callers hold the single-flight slot for the symbol.
func (c *Cache) fetch(ctx context.Context, symbol string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	sample, err := c.source.FetchFunding(ctx, symbol)
	if err != nil {
		c.recordError(symbol, err)
		return Snapshot{}, err
	}

	snap := newSnapshot(symbol, sample, c.opts.PeriodsPerYear, c.now())
	c.mu.Lock()
	c.entries[symbol] = &entry{snap: snap}
	c.mu.Unlock()

	c.logger.Debug().
		Str("symbol", symbol).
		Str("rate_annualized_pct", snap.RateAnnualized.StringFixed(2)).
		Msg("funding snapshot refreshed")
	return snap, nil
}

func (c *Cache) lookup(symbol string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	if !ok || e.snap.FetchedAt.IsZero() {
		return Snapshot{}, false
	}
	return e.snap, true
}

func (c *Cache) recordError(symbol string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[symbol]; ok {
		e.lastErr = err
		return
	}
	c.entries[symbol] = &entry{lastErr: err}
}

// Package engine gates trading signals on annualized funding cost.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-gate/internal/funding"
)

// ErrInvalidConfig marks construction-time configuration failures.
var ErrInvalidConfig = errors.New("engine: invalid configuration")

// SnapshotProvider supplies funding snapshots, normally *funding.Cache.
type SnapshotProvider interface {
	Get(ctx context.Context, symbol string) (funding.Snapshot, bool, error)
}

// Resolver maps an instrument id onto its alternate (e.g. spot-equivalent)
// instrument. Used only for redirect decisions.
type Resolver func(symbol, instrumentID string) string

// ThresholdMode selects how the annualized rate is compared against the
// thresholds.
type ThresholdMode string

const (
	// ModeAbsolute treats an extreme funding cost in either direction as risk.
	ModeAbsolute ThresholdMode = "absolute"
	// ModeSigned only gates on positive funding (cost to the position);
	// negative funding favours it and always passes through.
	ModeSigned ThresholdMode = "signed"
)

// Options configure the decision thresholds, both in percent per year.
type Options struct {
	RedirectThresholdAnnual decimal.Decimal
	RejectThresholdAnnual   decimal.Decimal
	Mode                    ThresholdMode
}

// Engine converts (symbol, instrument id) pairs into decisions and keeps
// running statistics. Each evaluation is independent; there is no cross-call
// state beyond the counters.
type Engine struct {
	opts     Options
	cache    SnapshotProvider
	resolver Resolver
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.Mutex
	total       uint64
	rejected    uint64
	redirected  uint64
	passthrough uint64
}

// New validates the options and constructs an engine.
func New(opts Options, cache SnapshotProvider, resolver Resolver, logger zerolog.Logger) (*Engine, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: snapshot provider is required", ErrInvalidConfig)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: alternate instrument resolver is required", ErrInvalidConfig)
	}
	if !opts.RedirectThresholdAnnual.IsPositive() {
		return nil, fmt.Errorf("%w: redirect threshold must be positive", ErrInvalidConfig)
	}
	if opts.RejectThresholdAnnual.LessThan(opts.RedirectThresholdAnnual) {
		return nil, fmt.Errorf("%w: reject threshold %s below redirect threshold %s",
			ErrInvalidConfig, opts.RejectThresholdAnnual, opts.RedirectThresholdAnnual)
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeAbsolute
	case ModeAbsolute, ModeSigned:
	default:
		return nil, fmt.Errorf("%w: unknown threshold mode %q", ErrInvalidConfig, opts.Mode)
	}

	return &Engine{
		opts:     opts,
		cache:    cache,
		resolver: resolver,
		logger:   logger.With().Str("component", "gate_engine").Logger(),
		now:      time.Now,
	}, nil
}

// Evaluate runs one signal through the gate. It always returns a well-formed
// decision: degraded upstream data manifests as a reject, never as an error.
func (e *Engine) Evaluate(ctx context.Context, symbol, instrumentID string) Decision {
	snap, stale, err := e.cache.Get(ctx, symbol)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("symbol", symbol).
			Msg("rejecting signal without usable funding data")
		return e.count(Decision{
			Kind:      KindReject,
			Symbol:    symbol,
			Reason:    "no usable metric data",
			DecidedAt: e.now(),
		})
	}
	if stale {
		e.logger.Warn().
			Str("symbol", symbol).
			Time("fetched_at", snap.FetchedAt).
			Msg("deciding on stale funding snapshot")
	}

	rate := snap.RateAnnualized
	magnitude := rate
	if e.opts.Mode == ModeAbsolute {
		magnitude = rate.Abs()
	}

	decision := Decision{
		Symbol:         symbol,
		RateAnnualized: rate,
		DecidedAt:      e.now(),
	}

	switch {
	case magnitude.GreaterThanOrEqual(e.opts.RejectThresholdAnnual):
		decision.Kind = KindReject
		decision.Reason = fmt.Sprintf("annualized funding %s%% breaches reject threshold %s%%",
			rate.StringFixed(2), e.opts.RejectThresholdAnnual)
	case magnitude.GreaterThanOrEqual(e.opts.RedirectThresholdAnnual):
		decision.Kind = KindRedirect
		decision.InstrumentID = e.resolver(symbol, instrumentID)
		decision.Reason = fmt.Sprintf("annualized funding %s%% above redirect threshold %s%%",
			rate.StringFixed(2), e.opts.RedirectThresholdAnnual)
	default:
		decision.Kind = KindPassThrough
		decision.InstrumentID = instrumentID
		decision.Reason = "funding within limits"
	}

	e.logger.Info().
		Str("symbol", symbol).
		Str("decision", decision.Kind.String()).
		Str("instrument", decision.InstrumentID).
		Str("rate_annualized_pct", rate.StringFixed(2)).
		Msg("gate decision")
	return e.count(decision)
}

// count updates the statistics; total is incremented exactly once per
// evaluation regardless of outcome.
func (e *Engine) count(d Decision) Decision {
	e.mu.Lock()
	e.total++
	switch d.Kind {
	case KindReject:
		e.rejected++
	case KindRedirect:
		e.redirected++
	case KindPassThrough:
		e.passthrough++
	}
	e.mu.Unlock()
	return d
}

// Package funding fetches per-symbol funding rates from a derivatives venue and
// caches them with explicit staleness bounds.
package funding

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one raw reading returned by a Source.
type Sample struct {
	RatePeriod      decimal.Decimal
	MarkPrice       decimal.Decimal
	NextFundingTime time.Time
}

// Source retrieves the current funding sample for a symbol. Implementations
// must honour ctx cancellation; the cache bounds every call with its fetch
// timeout.
type Source interface {
	FetchFunding(ctx context.Context, symbol string) (Sample, error)
}

// Snapshot is an immutable fetched-and-timestamped funding reading. Cache
// replacement is whole-object swap; a Snapshot is never mutated after creation.
type Snapshot struct {
	Symbol     string
	RatePeriod decimal.Decimal
	// RateAnnualized is the funding cost in percent per year, computed once at
	// snapshot creation: RatePeriod × periods per year × 100.
	RateAnnualized  decimal.Decimal
	MarkPrice       decimal.Decimal
	NextFundingTime time.Time
	FetchedAt       time.Time
}

// Age reports the snapshot staleness relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

var decHundred = decimal.NewFromInt(100)

func newSnapshot(symbol string, sample Sample, periodsPerYear int64, now time.Time) Snapshot {
	annual := sample.RatePeriod.Mul(decimal.NewFromInt(periodsPerYear)).Mul(decHundred)
	return Snapshot{
		Symbol:          symbol,
		RatePeriod:      sample.RatePeriod,
		RateAnnualized:  annual,
		MarkPrice:       sample.MarkPrice,
		NextFundingTime: sample.NextFundingTime,
		FetchedAt:       now,
	}
}

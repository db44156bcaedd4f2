package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"funding-gate/internal/storage"
)

// Backfill loads settled funding periods from the venue archive into the
// samples table so exports have history before the service's first tick.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = a.Config.Symbols
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to backfill")
	}
	if opts.From.IsZero() || opts.To.IsZero() {
		return errors.New("--from and --to must be provided")
	}
	if !opts.From.Before(opts.To) {
		return errors.New("from must be before to")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}

	var store storage.FundingSampleStore
	if !opts.DryRun {
		s, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if s == nil {
			return errors.New("database not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
		store = s
	}

	source := a.newSource()
	periods := decimal.NewFromInt(a.Config.Cache.PeriodsPerYear)

	var inserted atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, symbol := range symbols {
		group.Go(func() error {
			rows, err := source.FetchFundingHistory(gctx, symbol, opts.From, opts.To, 0)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}

			a.Logger.Info().Str("symbol", symbol).Int("rows", len(rows)).Bool("dry_run", opts.DryRun).Msg("fetched funding history")
			if opts.DryRun {
				inserted.Add(int64(len(rows)))
				return nil
			}

			for _, row := range rows {
				sample := storage.FundingSample{
					Bucket:         row.FundingTime,
					Symbol:         symbol,
					RatePeriod:     row.RatePeriod,
					RateAnnualized: row.RatePeriod.Mul(periods).Mul(decimal.NewFromInt(100)),
					MarkPrice:      row.MarkPrice,
					Status:         "backfilled",
					CreatedAt:      time.Now().UTC(),
				}
				if err := store.UpsertFundingSample(gctx, sample); err != nil {
					return fmt.Errorf("%s: upsert backfilled sample: %w", symbol, err)
				}
				inserted.Add(1)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	a.Logger.Info().Int64("samples", inserted.Load()).Bool("dry_run", opts.DryRun).Msg("backfill finished")
	return nil
}

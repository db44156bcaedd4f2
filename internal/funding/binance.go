package funding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-gate/internal/instrument"
)

const maxFundingHistoryLimit = 1000

// BinanceOptions parameterise the Binance futures funding source.
type BinanceOptions struct {
	BaseURL    string
	QuoteAsset string
	Timeout    time.Duration
}

// BinanceSource reads funding rates from the Binance futures premium-index
// endpoint via the go-binance SDK.
type BinanceSource struct {
	opts   BinanceOptions
	logger zerolog.Logger
	client *futures.Client
}

// NewBinanceSource constructs the venue client.
func NewBinanceSource(opts BinanceOptions, logger zerolog.Logger) *BinanceSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := futures.NewClient("", "")
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	return &BinanceSource{
		opts:   opts,
		logger: logger.With().Str("component", "binance_funding").Logger(),
		client: client,
	}
}

// FetchFunding retrieves the current funding sample for a base symbol.
func (b *BinanceSource) FetchFunding(ctx context.Context, symbol string) (Sample, error) {
	venueSymbol := instrument.BinanceFutures(symbol, b.opts.QuoteAsset)
	if venueSymbol == "" {
		return Sample{}, fmt.Errorf("%w: empty symbol", ErrMalformedResponse)
	}

	res, err := b.client.NewPremiumIndexService().Symbol(venueSymbol).Do(ctx)
	if err != nil {
		return Sample{}, classifyFetchError(symbol, err)
	}
	if len(res) == 0 || res[0] == nil {
		return Sample{}, fmt.Errorf("%w: empty premium index for %s", ErrMalformedResponse, symbol)
	}
	idx := res[0]

	rate, err := decimal.NewFromString(strings.TrimSpace(idx.LastFundingRate))
	if err != nil {
		return Sample{}, fmt.Errorf("%w: parse funding rate %q for %s", ErrMalformedResponse, idx.LastFundingRate, symbol)
	}

	mark, err := parseOptionalDecimal(idx.MarkPrice)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: parse mark price %q for %s", ErrMalformedResponse, idx.MarkPrice, symbol)
	}

	return Sample{
		RatePeriod:      rate,
		MarkPrice:       mark,
		NextFundingTime: time.UnixMilli(idx.NextFundingTime).UTC(),
	}, nil
}

// HistoricalRate is one settled funding period from the venue archive.
type HistoricalRate struct {
	RatePeriod  decimal.Decimal
	MarkPrice   decimal.Decimal
	FundingTime time.Time
}

// FetchFundingHistory lists settled funding rates for a symbol inside the
// window, oldest first. Used by the backfill job.
func (b *BinanceSource) FetchFundingHistory(ctx context.Context, symbol string, from, to time.Time, limit int) ([]HistoricalRate, error) {
	venueSymbol := instrument.BinanceFutures(symbol, b.opts.QuoteAsset)
	if venueSymbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrMalformedResponse)
	}
	if limit <= 0 || limit > maxFundingHistoryLimit {
		limit = maxFundingHistoryLimit
	}

	svc := b.client.NewFundingRateService().Symbol(venueSymbol).Limit(limit)
	if !from.IsZero() {
		svc = svc.StartTime(from.UnixMilli())
	}
	if !to.IsZero() {
		svc = svc.EndTime(to.UnixMilli())
	}

	rows, err := svc.Do(ctx)
	if err != nil {
		return nil, classifyFetchError(symbol, err)
	}

	out := make([]HistoricalRate, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(row.FundingRate))
		if err != nil {
			return nil, fmt.Errorf("%w: parse funding rate %q for %s", ErrMalformedResponse, row.FundingRate, symbol)
		}
		mark, err := parseOptionalDecimal(row.MarkPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: parse mark price %q for %s", ErrMalformedResponse, row.MarkPrice, symbol)
		}
		out = append(out, HistoricalRate{
			RatePeriod:  rate,
			MarkPrice:   mark,
			FundingTime: time.UnixMilli(row.FundingTime).UTC(),
		})
	}
	return out, nil
}

func parseOptionalDecimal(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Decimal{}, nil
	}
	return decimal.NewFromString(v)
}

var _ Source = (*BinanceSource)(nil)

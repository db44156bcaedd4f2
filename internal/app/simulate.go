package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"funding-gate/internal/funding"
	"funding-gate/internal/service"
)

// SimulateGate 以给定的年化资金费率模拟一次完整的门控与告警流程。
func (a *App) SimulateGate(ctx context.Context, rateAnnual decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	periods := decimal.NewFromInt(a.Config.Cache.PeriodsPerYear)
	ratePeriod := rateAnnual.Div(decimal.NewFromInt(100)).Div(periods)

	cache, err := a.newCache(&staticFundingSource{rate: ratePeriod})
	if err != nil {
		return err
	}
	gate, err := a.newEngine(cache)
	if err != nil {
		return err
	}

	svc := service.New(a.Config, nil, cache, gate, nil, nil, notifier, a.Logger)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessBucket(ctx, bucket)
}

type staticFundingSource struct {
	rate decimal.Decimal
}

func (s *staticFundingSource) FetchFunding(ctx context.Context, symbol string) (funding.Sample, error) {
	return funding.Sample{
		RatePeriod:      s.rate,
		NextFundingTime: time.Now().UTC().Add(8 * time.Hour),
	}, nil
}

var _ funding.Source = (*staticFundingSource)(nil)

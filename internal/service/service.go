package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-gate/internal/alerting"
	"funding-gate/internal/config"
	"funding-gate/internal/engine"
	"funding-gate/internal/funding"
	"funding-gate/internal/instrument"
	"funding-gate/internal/scheduler"
	"funding-gate/internal/storage"
)

// Service orchestrates watchlist sampling, persistence, gating, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	cache      *funding.Cache
	gate       *engine.Engine
	store      storage.FundingSampleStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	symbols           []string
	channels          []string
	alertsOn          bool
	redirectThreshold decimal.Decimal
	rejectThreshold   decimal.Decimal
	locker            storage.AdvisoryLocker
	lockKey           int64
}

// New constructs the sampling service.
func New(cfg *config.Config, sched *scheduler.Scheduler, cache *funding.Cache, gate *engine.Engine, store storage.FundingSampleStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:         sched,
		cache:             cache,
		gate:              gate,
		store:             store,
		alertStore:        alertStore,
		notifier:          notifier,
		logger:            logger.With().Str("component", "service").Logger(),
		symbols:           cfg.Symbols,
		channels:          cfg.Alerting.Channels,
		alertsOn:          cfg.Alerting.Enabled,
		redirectThreshold: decimal.NewFromFloat(cfg.Gate.RedirectThresholdAnnual),
		rejectThreshold:   decimal.NewFromFloat(cfg.Gate.RejectThresholdAnnual),
		locker:            locker,
		lockKey:           cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 执行单个时间桶的采样与门控逻辑。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	if len(s.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	snaps, errs := s.cache.Refresh(ctx, s.symbols)
	for _, err := range errs {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("watchlist refresh failed for symbol")
	}

	for _, symbol := range s.symbols {
		snap, ok := snaps[symbol]
		if !ok {
			s.persistErrored(ctx, bucket, symbol, errorFor(symbol, errs))
		} else {
			s.persistSample(ctx, bucket, snap)
		}

		// Evaluate even on refresh failure: a tolerable stale snapshot still
		// produces a decision, and absence of data must surface as a reject.
		decision := s.gate.Evaluate(ctx, symbol, instrument.Perp(symbol))
		if decision.Kind != engine.KindPassThrough {
			s.emitAlert(ctx, bucket, decision)
		}
	}

	stats := s.gate.Statistics()
	s.logger.Info().Time("bucket", bucket).
		Int("symbols", len(s.symbols)).
		Int("refresh_errors", len(errs)).
		Uint64("decisions_total", stats.Total).
		Uint64("rejected", stats.Rejected).
		Uint64("redirected", stats.Redirected).
		Msg("bucket processed")

	return nil
}

func (s *Service) persistSample(ctx context.Context, bucket time.Time, snap funding.Snapshot) {
	if s.store == nil {
		return
	}
	sample := storage.FundingSample{
		Bucket:         bucket,
		Symbol:         snap.Symbol,
		RatePeriod:     snap.RatePeriod,
		RateAnnualized: snap.RateAnnualized,
		MarkPrice:      snap.MarkPrice,
		Status:         "complete",
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.UpsertFundingSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Str("symbol", snap.Symbol).Msg("failed to upsert sample")
	}
}

func (s *Service) persistErrored(ctx context.Context, bucket time.Time, symbol, errMsg string) {
	if s.store == nil {
		return
	}
	sample := storage.FundingSample{
		Bucket:    bucket,
		Symbol:    symbol,
		Status:    "errored",
		Error:     &errMsg,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertFundingSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Str("symbol", symbol).Msg("failed to upsert errored sample")
	}
}

func (s *Service) emitAlert(ctx context.Context, bucket time.Time, decision engine.Decision) {
	threshold := s.redirectThreshold
	if decision.Kind == engine.KindReject {
		threshold = s.rejectThreshold
	}

	if s.alertStore != nil {
		record := storage.GateAlert{
			SampleTS:       bucket,
			Symbol:         decision.Symbol,
			Decision:       decision.Kind.String(),
			RateAnnualized: decision.RateAnnualized,
			ThresholdPct:   threshold,
			Reason:         decision.Reason,
			Channels:       s.channels,
		}
		if _, err := s.alertStore.InsertGateAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Str("symbol", decision.Symbol).Msg("failed to persist gate alert")
		}
	}

	if !s.alertsOn || s.notifier == nil {
		return
	}
	note := alerting.Notification{
		Bucket:         bucket,
		Symbol:         decision.Symbol,
		InstrumentID:   decision.InstrumentID,
		Decision:       decision.Kind.String(),
		RateAnnualized: decision.RateAnnualized,
		ThresholdPct:   threshold,
		Reason:         decision.Reason,
		Channels:       s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Str("symbol", decision.Symbol).Msg("failed to dispatch alert")
	}
}

// errorFor picks the refresh error belonging to symbol out of the per-symbol
// error list.
func errorFor(symbol string, errs []error) string {
	prefix := symbol + ":"
	for _, err := range errs {
		if strings.HasPrefix(err.Error(), prefix) {
			return err.Error()
		}
	}
	return "refresh failed"
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

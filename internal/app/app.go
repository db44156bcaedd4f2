package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-gate/internal/alerting"
	"funding-gate/internal/config"
	"funding-gate/internal/engine"
	"funding-gate/internal/funding"
	"funding-gate/internal/instrument"
	"funding-gate/internal/scheduler"
	"funding-gate/internal/service"
	"funding-gate/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() *funding.BinanceSource {
	return funding.NewBinanceSource(funding.BinanceOptions{
		BaseURL:    a.Config.Binance.BaseURL,
		QuoteAsset: a.Config.Binance.QuoteAsset,
		Timeout:    a.Config.Binance.RequestTimeout,
	}, a.Logger)
}

func (a *App) newCache(source funding.Source) (*funding.Cache, error) {
	return funding.NewCache(funding.Options{
		RefreshInterval: a.Config.Cache.RefreshInterval,
		MaxStaleness:    a.Config.Cache.MaxStaleness,
		FetchTimeout:    a.Config.Cache.FetchTimeout,
		PeriodsPerYear:  a.Config.Cache.PeriodsPerYear,
	}, source, a.Logger)
}

func (a *App) newEngine(cache engine.SnapshotProvider) (*engine.Engine, error) {
	return engine.New(engine.Options{
		RedirectThresholdAnnual: decimal.NewFromFloat(a.Config.Gate.RedirectThresholdAnnual),
		RejectThresholdAnnual:   decimal.NewFromFloat(a.Config.Gate.RejectThresholdAnnual),
		Mode:                    engine.ThresholdMode(a.Config.Gate.ThresholdMode),
	}, cache, instrument.SpotEquivalent, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running gate service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cache, err := a.newCache(a.newSource())
	if err != nil {
		return err
	}
	gate, err := a.newEngine(cache)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()

	var sampleStore storage.FundingSampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sched, cache, gate, sampleStore, alertStore, notifier, a.Logger)

	a.Logger.Info().Strs("symbols", a.Config.Symbols).Msg("starting funding gate service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("funding gate service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Symbols []string
	From    time.Time
	To      time.Time
	DryRun  bool
	Workers int
}

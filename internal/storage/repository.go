package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertFundingSampleSQL = `INSERT INTO funding_samples (
        bucket_ts,
        symbol,
        rate_period,
        rate_annualized_pct,
        mark_price,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (bucket_ts, symbol) DO UPDATE
    SET
        rate_period         = EXCLUDED.rate_period,
        rate_annualized_pct = EXCLUDED.rate_annualized_pct,
        mark_price          = EXCLUDED.mark_price,
        status              = EXCLUDED.status,
        error               = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts,
        symbol,
        rate_period,
        rate_annualized_pct,
        mark_price,
        status,
        error,
        created_at
    FROM funding_samples
    WHERE symbol = $1
      AND bucket_ts >= $2
      AND bucket_ts < $3
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts,
        symbol,
        rate_period,
        rate_annualized_pct,
        mark_price,
        status,
        error,
        created_at
    FROM funding_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM funding_samples;`

	insertGateAlertSQL = `INSERT INTO gate_alerts (
        sample_ts,
        symbol,
        decision,
        rate_annualized_pct,
        threshold_pct,
        reason,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (sample_ts, symbol) DO UPDATE
    SET decision            = EXCLUDED.decision,
        rate_annualized_pct = EXCLUDED.rate_annualized_pct,
        threshold_pct       = EXCLUDED.threshold_pct,
        reason              = EXCLUDED.reason,
        channels            = EXCLUDED.channels
    RETURNING id, sample_ts, symbol, decision, rate_annualized_pct, threshold_pct, reason, channels, created_at;`

	listRecentGateAlertsSQL = `SELECT
        id,
        sample_ts,
        symbol,
        decision,
        rate_annualized_pct,
        threshold_pct,
        reason,
        channels,
        created_at
    FROM gate_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteGateAlertsBeforeSQL = `DELETE FROM gate_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// FundingSampleStore defines operations for funding sample persistence.
type FundingSampleStore interface {
	UpsertFundingSample(ctx context.Context, sample FundingSample) error
	ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]FundingSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]FundingSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// AlertStore defines operations for gate alert auditing.
type AlertStore interface {
	InsertGateAlert(ctx context.Context, alert GateAlert) (GateAlert, error)
	ListRecentGateAlerts(ctx context.Context, limit int) ([]GateAlert, error)
	DeleteGateAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to funding samples and gate alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertFundingSample persists or updates a funding sample.
func (s *Store) UpsertFundingSample(ctx context.Context, sample FundingSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertFundingSampleSQL,
		sample.Bucket,
		sample.Symbol,
		sample.RatePeriod.String(),
		sample.RateAnnualized.String(),
		sample.MarkPrice.String(),
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert funding sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists one symbol's samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]FundingSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]FundingSample, 0)
	for rows.Next() {
		sample, scanErr := scanFundingSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists the most recent samples ordered by descending bucket.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]FundingSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]FundingSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanFundingSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertGateAlert persists an alert emission.
func (s *Store) InsertGateAlert(ctx context.Context, alert GateAlert) (GateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return GateAlert{}, err
	}

	row := pool.QueryRow(ctx, insertGateAlertSQL,
		alert.SampleTS,
		alert.Symbol,
		alert.Decision,
		alert.RateAnnualized.String(),
		alert.ThresholdPct.String(),
		alert.Reason,
		alert.Channels,
	)

	var rec GateAlert
	var rateStr, thresholdStr string
	if scanErr := row.Scan(
		&rec.ID,
		&rec.SampleTS,
		&rec.Symbol,
		&rec.Decision,
		&rateStr,
		&thresholdStr,
		&rec.Reason,
		&rec.Channels,
		&rec.CreatedAt,
	); scanErr != nil {
		return GateAlert{}, fmt.Errorf("insert gate alert: %w", scanErr)
	}

	var convErr error
	rec.RateAnnualized, convErr = decimal.NewFromString(rateStr)
	if convErr != nil {
		return GateAlert{}, fmt.Errorf("parse rate annualized: %w", convErr)
	}
	rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return GateAlert{}, fmt.Errorf("parse threshold pct: %w", convErr)
	}

	return rec, nil
}

// ListRecentGateAlerts lists most recent alerts.
func (s *Store) ListRecentGateAlerts(ctx context.Context, limit int) ([]GateAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentGateAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent gate alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]GateAlert, 0, limit)
	for rows.Next() {
		var rec GateAlert
		var rateStr, thresholdStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.SampleTS,
			&rec.Symbol,
			&rec.Decision,
			&rateStr,
			&thresholdStr,
			&rec.Reason,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.RateAnnualized, convErr = decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse rate annualized: %w", convErr)
		}
		rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteGateAlertsBefore deletes historical alerts.
func (s *Store) DeleteGateAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteGateAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete gate alerts before: %w", execErr)
	}
	return nil
}

func scanFundingSample(rows pgx.Rows) (FundingSample, error) {
	var (
		bucket    time.Time
		symbol    string
		rateStr   string
		annualStr string
		markStr   string
		status    string
		errMsg    sql.NullString
		createdAt time.Time
	)

	if err := rows.Scan(
		&bucket,
		&symbol,
		&rateStr,
		&annualStr,
		&markStr,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return FundingSample{}, err
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return FundingSample{}, fmt.Errorf("parse rate period: %w", err)
	}
	annual, err := decimal.NewFromString(annualStr)
	if err != nil {
		return FundingSample{}, fmt.Errorf("parse rate annualized: %w", err)
	}
	mark, err := decimal.NewFromString(markStr)
	if err != nil {
		return FundingSample{}, fmt.Errorf("parse mark price: %w", err)
	}

	sample := FundingSample{
		Bucket:         bucket,
		Symbol:         symbol,
		RatePeriod:     rate,
		RateAnnualized: annual,
		MarkPrice:      mark,
		Status:         status,
		CreatedAt:      createdAt,
	}

	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}

	return sample, nil
}

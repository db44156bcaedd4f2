package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingSample represents one persisted funding observation for a symbol.
type FundingSample struct {
	Bucket         time.Time
	Symbol         string
	RatePeriod     decimal.Decimal
	RateAnnualized decimal.Decimal
	MarkPrice      decimal.Decimal
	Status         string
	Error          *string
	CreatedAt      time.Time
}

// GateAlert captures an emitted gate alert for de-duplication/auditing.
type GateAlert struct {
	ID             int64
	SampleTS       time.Time
	Symbol         string
	Decision       string
	RateAnnualized decimal.Decimal
	ThresholdPct   decimal.Decimal
	Reason         string
	Channels       []string
	CreatedAt      time.Time
}

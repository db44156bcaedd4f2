package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a gate decision. The set is closed; consumers switch
// exhaustively over it.
type Kind int

const (
	// KindPassThrough routes the signal to the original instrument unchanged.
	KindPassThrough Kind = iota
	// KindRedirect routes the signal to the alternate instrument named in the
	// decision.
	KindRedirect
	// KindReject means the signal must not be executed. InstrumentID is empty.
	KindReject
)

func (k Kind) String() string {
	switch k {
	case KindPassThrough:
		return "passthrough"
	case KindRedirect:
		return "redirect"
	case KindReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Kind           Kind
	Symbol         string
	InstrumentID   string
	RateAnnualized decimal.Decimal
	Reason         string
	DecidedAt      time.Time
}

package engine

// Statistics is a consistent snapshot of the decision counters. The derived
// rates are computed on read, never stored, so they cannot drift from the
// counters.
type Statistics struct {
	Total       uint64
	Rejected    uint64
	Redirected  uint64
	PassThrough uint64

	RejectionRate   float64
	RedirectRate    float64
	PassThroughRate float64
}

// Statistics returns the counters copied under one critical section.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	s := Statistics{
		Total:       e.total,
		Rejected:    e.rejected,
		Redirected:  e.redirected,
		PassThrough: e.passthrough,
	}
	e.mu.Unlock()

	if s.Total > 0 {
		total := float64(s.Total)
		s.RejectionRate = float64(s.Rejected) / total
		s.RedirectRate = float64(s.Redirected) / total
		s.PassThroughRate = float64(s.PassThrough) / total
	}
	return s
}

// ResetStatistics zeroes the counters. Never called automatically.
func (e *Engine) ResetStatistics() {
	e.mu.Lock()
	e.total, e.rejected, e.redirected, e.passthrough = 0, 0, 0, 0
	e.mu.Unlock()
}

package funding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrInvalidConfig marks construction-time configuration failures.
	ErrInvalidConfig = errors.New("funding: invalid configuration")

	// ErrFetchTimeout marks a fetch that exceeded the configured timeout.
	ErrFetchTimeout = errors.New("funding: fetch timeout")
	// ErrFetchTransport marks a network or venue-side failure.
	ErrFetchTransport = errors.New("funding: fetch transport error")
	// ErrMalformedResponse marks a venue response that cannot be parsed into a
	// Sample. Distinguished from transport errors in logs because it may
	// indicate a contract break rather than transient unavailability.
	ErrMalformedResponse = errors.New("funding: malformed response")
)

// StaleDataError is returned by Cache.Get when no snapshot exists for the
// symbol or the best available snapshot has aged past the staleness ceiling.
// It is the only error that propagates out of Get.
type StaleDataError struct {
	Symbol       string
	Age          time.Duration
	MaxStaleness time.Duration
}

func (e *StaleDataError) Error() string {
	if e.Age <= 0 {
		return fmt.Sprintf("funding: no snapshot for %s (staleness ceiling %s)", e.Symbol, e.MaxStaleness)
	}
	return fmt.Sprintf("funding: snapshot for %s aged %s, exceeds ceiling %s", e.Symbol, e.Age, e.MaxStaleness)
}

// classifyFetchError maps an error from the venue client onto the fetch error
// taxonomy. Parse failures are classified at the call site instead.
func classifyFetchError(symbol string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrFetchTimeout, symbol, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %w", ErrFetchTimeout, symbol, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrFetchTransport, symbol, err)
}

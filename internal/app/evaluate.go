package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"funding-gate/internal/instrument"
)

// EvaluateOnce runs a single symbol through the gate and prints the decision.
func (a *App) EvaluateOnce(ctx context.Context, symbol, instrumentID string) error {
	cache, err := a.newCache(a.newSource())
	if err != nil {
		return err
	}
	gate, err := a.newEngine(cache)
	if err != nil {
		return err
	}

	if instrumentID == "" {
		instrumentID = instrument.Perp(symbol)
	}

	decision := gate.Evaluate(ctx, symbol, instrumentID)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Symbol:\t%s\n", decision.Symbol)
	fmt.Fprintf(writer, "Decision:\t%s\n", decision.Kind)
	if decision.InstrumentID != "" {
		fmt.Fprintf(writer, "Instrument:\t%s\n", decision.InstrumentID)
	}
	fmt.Fprintf(writer, "Funding:\t%s%%/yr\n", decision.RateAnnualized.StringFixed(2))
	fmt.Fprintf(writer, "Reason:\t%s\n", decision.Reason)
	fmt.Fprintf(writer, "Decided:\t%s\n", decision.DecidedAt.UTC().Format(time.RFC3339))
	return writer.Flush()
}

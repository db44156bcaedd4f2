package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	evaluateSymbol     string
	evaluateInstrument string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one symbol through the gate and print the decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		if evaluateSymbol == "" {
			return fmt.Errorf("--symbol must be provided")
		}
		return getApp().EvaluateOnce(cmd.Context(), evaluateSymbol, evaluateInstrument)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateSymbol, "symbol", "", "Base symbol to evaluate (e.g. BTC)")
	evaluateCmd.Flags().StringVar(&evaluateInstrument, "instrument", "", "Instrument identifier (defaults to <SYMBOL>-PERP)")
}

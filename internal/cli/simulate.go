package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateRateAnnual float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-gate",
	Short: "模拟一次门控决策并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRateAnnual == 0 {
			return errors.New("--rate-annual 必须不为 0")
		}

		rate := decimal.NewFromFloat(simulateRateAnnual)
		return getApp().SimulateGate(cmd.Context(), rate)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateRateAnnual, "rate-annual", 0, "模拟的年化资金费率（百分比）")
}

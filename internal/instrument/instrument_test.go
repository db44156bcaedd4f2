package instrument

import "testing"

func TestPerpAndSpot(t *testing.T) {
	if got := Perp(" btc "); got != "BTC-PERP" {
		t.Fatalf("Perp 格式化错误: %s", got)
	}
	if got := Spot("eth"); got != "ETH-SPOT" {
		t.Fatalf("Spot 格式化错误: %s", got)
	}
}

func TestSpotEquivalent(t *testing.T) {
	cases := []struct {
		symbol       string
		instrumentID string
		want         string
	}{
		{symbol: "BTC", instrumentID: "BTC-PERP", want: "BTC-SPOT"},
		{symbol: "ETH", instrumentID: "ETHUSDT-PERP", want: "ETHUSDT-SPOT"},
		{symbol: "SOL", instrumentID: "", want: "SOL-SPOT"},
		{symbol: "BTC", instrumentID: "custom-id", want: "BTC-SPOT"},
	}

	for _, tc := range cases {
		if got := SpotEquivalent(tc.symbol, tc.instrumentID); got != tc.want {
			t.Fatalf("SpotEquivalent(%q, %q) = %q, 期望 %q", tc.symbol, tc.instrumentID, got, tc.want)
		}
	}
}

func TestBinanceFutures(t *testing.T) {
	cases := []struct {
		symbol string
		quote  string
		want   string
	}{
		{symbol: "eth/usdt", quote: "", want: "ETHUSDT"},
		{symbol: "BTC-PERP", quote: "", want: "BTCUSDT"},
		{symbol: "BTC", quote: "usdc", want: "BTCUSDC"},
		{symbol: "sol_usdt", quote: "USDT", want: "SOLUSDT"},
		{symbol: "ETH-SPOT", quote: "", want: "ETHUSDT"},
		{symbol: "  ", quote: "", want: ""},
	}

	for _, tc := range cases {
		if got := BinanceFutures(tc.symbol, tc.quote); got != tc.want {
			t.Fatalf("BinanceFutures(%q, %q) = %q, 期望 %q", tc.symbol, tc.quote, got, tc.want)
		}
	}
}

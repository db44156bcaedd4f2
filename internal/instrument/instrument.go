// Package instrument formats venue-specific instrument identifiers from base
// symbols.
package instrument

import "strings"

const (
	perpSuffix = "-PERP"
	spotSuffix = "-SPOT"
)

// Perp returns the perpetual-futures instrument id for a base symbol.
func Perp(symbol string) string {
	return normalize(symbol) + perpSuffix
}

// Spot returns the spot instrument id for a base symbol.
func Spot(symbol string) string {
	return normalize(symbol) + spotSuffix
}

// SpotEquivalent maps an instrument id onto its spot-market equivalent. It is
// the default alternate-instrument resolver injected into the decision engine.
func SpotEquivalent(symbol, instrumentID string) string {
	id := strings.TrimSpace(instrumentID)
	if base, ok := strings.CutSuffix(id, perpSuffix); ok && base != "" {
		return base + spotSuffix
	}
	return Spot(symbol)
}

// BinanceFutures renders a symbol the way the Binance futures REST API expects
// it: uppercase, no separators, quote asset appended when missing.
// "eth/usdt" → "ETHUSDT", "BTC-PERP" → "BTCUSDT".
func BinanceFutures(symbol, quoteAsset string) string {
	quote := strings.ToUpper(strings.TrimSpace(quoteAsset))
	if quote == "" {
		quote = "USDT"
	}

	s := normalize(symbol)
	if base, ok := strings.CutSuffix(s, perpSuffix); ok {
		s = base
	} else if base, ok := strings.CutSuffix(s, spotSuffix); ok {
		s = base
	}
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	if s == "" {
		return ""
	}
	if !strings.HasSuffix(s, quote) {
		s += quote
	}
	return s
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Package pairs canonicalizes venue-specific perpetual symbols to one ticker
// so rates from different venues can be compared per asset.
package pairs

import "strings"

// suffixes are stripped in order. Longer venue-specific forms come first so
// "BTC-USD-PERP" is not left as "BTC-" by an earlier shorter match.
var suffixes = []string{
	"-USD-PERP",
	"-PERP",
	"_USDC_PER_9",
	"_USDC",
	"USDC",
	"USD",
	"-",
	"_",
}

// Normalize converts a venue-specific pair name to the canonical asset ticker:
// "BTC-USD-PERP", "BTC_USDC_PER_9" and "BTCUSD" all become "BTC". It is
// idempotent and never fails.
func Normalize(pair string) string {
	p := strings.ToUpper(pair)
	for _, s := range suffixes {
		p = strings.ReplaceAll(p, s, "")
	}
	return strings.TrimSpace(p)
}

package pairs

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTC-USD-PERP", "BTC"},
		{"BTC_USDC_PER_9", "BTC"},
		{"btc-perp", "BTC"},
		{"ETH_USDC", "ETH"},
		{"SOLUSDC", "SOL"},
		{"DOGEUSD", "DOGE"},
		{"BTC", "BTC"},
		{"  hype ", "HYPE"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"BTC-USD-PERP", "ETH_USDC", "SOL-PERP", "AVAX", "kPEPE_USDC_PER_9"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

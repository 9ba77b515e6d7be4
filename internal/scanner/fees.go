package scanner

import "strings"

// feeSchedule is a venue's taker/maker fee as decimals.
type feeSchedule struct {
	Maker float64
	Taker float64
}

// Per-venue taker/maker fees and conservative slippage estimates. Unknown
// venues fall back to defaultTakerFee / defaultSlippage.
var (
	venueFees = map[string]feeSchedule{
		"hyperliquid": {Maker: 0.00020, Taker: 0.00030},
		"paradex":     {Maker: 0.00020, Taker: 0.00050},
		"lighter":     {Maker: 0.00020, Taker: 0.00050},
		"extended":    {Maker: 0.00020, Taker: 0.00050},
	}

	venueSlippage = map[string]float64{
		"hyperliquid": 0.0010,
		"paradex":     0.0015,
		"lighter":     0.0015,
		"extended":    0.0020,
	}
)

const (
	defaultTakerFee = 0.0005
	defaultSlippage = 0.001

	// defaultHoldHours is the assumed hold period over which entry/exit
	// costs are amortized when computing net spread.
	defaultHoldHours = 24
)

func takerFee(venue string) float64 {
	if f, ok := venueFees[strings.ToLower(venue)]; ok {
		return f.Taker
	}
	return defaultTakerFee
}

func slippage(venue string) float64 {
	if s, ok := venueSlippage[strings.ToLower(venue)]; ok {
		return s
	}
	return defaultSlippage
}

// entryCost is the full round-trip cost of a two-leg strategy as a decimal:
// entry and exit taker fees plus estimated slippage, summed over both legs.
func entryCost(longVenue, shortVenue string) float64 {
	long := takerFee(longVenue)*2 + slippage(longVenue)
	short := takerFee(shortVenue)*2 + slippage(shortVenue)
	return long + short
}

// netSpread subtracts the leverage-scaled, hold-amortized round-trip cost from
// the gross hourly spread. Costs only ever shrink the spread.
func netSpread(grossSpread1h float64, longVenue, shortVenue string, leverage, holdHours int) float64 {
	if holdHours <= 0 {
		holdHours = defaultHoldHours
	}
	if leverage < 1 {
		leverage = 1
	}
	hourlyCost := entryCost(longVenue, shortVenue) / float64(holdHours) * float64(leverage)
	return grossSpread1h - hourlyCost
}

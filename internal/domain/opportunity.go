package domain

import "time"

// Opportunity is a delta-neutral funding arbitrage candidate: long the venue
// paying the lowest rate, short the venue paying the highest. Derived from one
// aggregation cycle and never persisted.
//
// Invariants: LongVenue != ShortVenue, Spread1h > 0, and MinLeverage is the
// smaller of the two legs' leverage caps.
type Opportunity struct {
	Asset string

	LongVenue    string
	LongRate1h   float64
	LongLeverage int

	ShortVenue    string
	ShortRate1h   float64
	ShortLeverage int

	Spread1h    float64 // ShortRate1h - LongRate1h
	Spread8h    float64
	MinLeverage int
	Score1h     float64 // Spread1h * MinLeverage * 100
	Score8h     float64

	// Cost-adjusted metrics. Nil when net-spread calculation was disabled.
	NetSpread1h  *float64
	EntryCostPct *float64

	Timestamp time.Time
}

package domain

import "time"

// Balance is a venue account snapshot used for sizing and health checks.
type Balance struct {
	Venue        string
	EquityUSD    float64
	AvailableUSD float64
	MarginUSD    float64
	Timestamp    time.Time
}

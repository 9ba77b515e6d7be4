// Package domain defines the core data model for the funding-rate arbitrage
// engine: funding snapshots, ranked opportunities, two-leg strategies, and the
// events the engine emits while monitoring them.
package domain

import "time"

// FundingSnapshot is one venue's funding quote for one asset, produced fresh
// on every scan. Rate1h is the hourly funding rate as a decimal (0.00025 means
// 0.025% per hour).
type FundingSnapshot struct {
	Asset       string // normalized asset symbol, e.g. "BTC"
	Venue       string
	Rate1h      float64
	MaxLeverage int
	Volume24h   float64 // USD, 0 when the venue does not report it
	Timestamp   time.Time
}

package domain

import (
	"sync/atomic"
	"time"
)

// Strategy is one executed delta-neutral pair: a long leg on the cheap-funding
// venue and a short leg on the expensive one. It is created by the executor on
// a successful dual fill and exclusively owned by one monitor while active.
type Strategy struct {
	ID             string
	Opportunity    Opportunity
	StakeUSD       float64 // notional per leg
	TargetLeverage int

	AutoCloseOnReversal bool
	TakeProfitUSD       *float64
	StopLossUSD         *float64
	MaxHoldHours        *int

	LongPosition  *Position
	ShortPosition *Position

	CreatedAt time.Time

	// closing latches once the first close path (manual or auto) claims the
	// strategy. The monitor and a UI-triggered close may race; the loser of
	// the latch must stand down instead of issuing a second close.
	closing atomic.Bool
}

// BeginClose claims the strategy for closing. It returns true exactly once;
// every later call reports that a close is already in progress.
func (s *Strategy) BeginClose() bool {
	return s.closing.CompareAndSwap(false, true)
}

// CloseInProgress reports whether some path has already claimed the close.
func (s *Strategy) CloseInProgress() bool {
	return s.closing.Load()
}

// TotalPnL sums unrealized PnL and accrued funding across both legs.
func (s *Strategy) TotalPnL() float64 {
	var pnl float64
	if s.LongPosition != nil {
		pnl += s.LongPosition.UnrealizedPnL + s.LongPosition.FundingAccrued
	}
	if s.ShortPosition != nil {
		pnl += s.ShortPosition.UnrealizedPnL + s.ShortPosition.FundingAccrued
	}
	return pnl
}

package domain

import "time"

// Side is the direction of one leg of a strategy.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is one open perpetual-futures leg. It is owned by the strategy it
// belongs to and mutated only by that strategy's monitor.
type Position struct {
	Venue            string
	Asset            string
	Side             Side
	SizeUSD          float64 // notional
	Leverage         int
	EntryPrice       float64
	CurrentPrice     float64
	UnrealizedPnL    float64
	FundingAccrued   float64
	LiquidationPrice float64 // 0 when the venue does not report it
	OpenedAt         time.Time
	UpdatedAt        time.Time
}

// UpdatePnL recomputes the unrealized PnL from a new mark price.
func (p *Position) UpdatePnL(currentPrice float64, now time.Time) {
	p.CurrentPrice = currentPrice
	if p.EntryPrice == 0 {
		return
	}
	diff := currentPrice - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	p.UnrealizedPnL = (diff / p.EntryPrice) * p.SizeUSD * float64(p.Leverage)
	p.UpdatedAt = now
}

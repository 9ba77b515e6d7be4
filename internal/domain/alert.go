package domain

import "time"

// AlertType classifies monitor alert events.
type AlertType string

const (
	AlertProfit          AlertType = "profit"
	AlertLoss            AlertType = "loss"
	AlertLiquidationRisk AlertType = "liquidation_risk"
	AlertReversal        AlertType = "reversal"
	AlertAutoClose       AlertType = "auto_close"
)

// Alert is one monitor alert event.
type Alert struct {
	StrategyID string
	Type       AlertType
	Message    string
	Timestamp  time.Time
}

// PositionUpdate is the per-tick snapshot a monitor emits to its observer.
type PositionUpdate struct {
	StrategyID     string
	Timestamp      time.Time
	TotalPnL       float64
	FundingAccrued float64
	UnrealizedPnL  float64
	LongPosition   *Position
	ShortPosition  *Position
	IsAtRisk       bool
	RiskMessage    string
}

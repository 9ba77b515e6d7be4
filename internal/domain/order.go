package domain

import "time"

// OrderResult is the transient outcome of a single market-order attempt on
// one venue. It is returned by adapters and never persisted.
type OrderResult struct {
	Success       bool
	Venue         string
	Asset         string
	Side          Side
	OrderID       string
	FilledSizeUSD float64
	FilledPrice   float64
	Error         string
	Timestamp     time.Time
}

// ExecStatus is the terminal state of a two-leg execution attempt.
type ExecStatus string

const (
	// ExecAborted: nothing was opened. Either an adapter was missing or the
	// long leg itself was rejected.
	ExecAborted ExecStatus = "aborted"
	// ExecFilled: both legs filled, the strategy is active.
	ExecFilled ExecStatus = "filled"
	// ExecRolledBack: the short leg failed and the compensating close of the
	// long leg succeeded. No position remains open.
	ExecRolledBack ExecStatus = "rolled_back"
	// ExecRollbackFailed: the short leg failed AND the compensating close
	// failed. The long leg is still open; requires manual intervention.
	ExecRollbackFailed ExecStatus = "rollback_failed"
)

// ExecutionResult reports the outcome of Executor.Execute. RolledBack and
// RollbackFailed are always distinguishable so callers can escalate.
type ExecutionResult struct {
	Status     ExecStatus
	Strategy   *Strategy
	LongOrder  OrderResult
	ShortOrder OrderResult
	Message    string
}

// CloseStatus is the aggregate outcome of closing both legs of a strategy.
type CloseStatus string

const (
	CloseStatusClosed  CloseStatus = "closed"
	CloseStatusPartial CloseStatus = "partial"
	CloseStatusFailed  CloseStatus = "failed"
)

// CloseResult reports which legs were closed. RemainingSide names the leg
// still open on a partial close.
type CloseResult struct {
	Status        CloseStatus
	LongResult    OrderResult
	ShortResult   OrderResult
	RemainingSide Side
	Message       string
}

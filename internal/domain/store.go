package domain

import (
	"context"
	"time"
)

// ScanCache holds the most recent scan result. Implementations must have a
// single designated writer; the scanner serializes writes through its scan
// guard.
type ScanCache interface {
	// SetLastScan replaces the cached scan.
	SetLastScan(ctx context.Context, scan ScanResult) error
	// LastScan returns the cached scan, or ErrNotFound when no scan has
	// completed yet.
	LastScan(ctx context.Context) (ScanResult, error)
}

// ScanGuard serializes scans so two concurrent re-scans cannot race on the
// same cache. TryAcquire returns a release func on success and ErrScanInFlight
// when another scan holds the guard.
type ScanGuard interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (func(), error)
}

// StrategyStore persists strategy records for the operator surface. The core
// works entirely on in-memory Strategy values; the store is a write-behind
// archive.
type StrategyStore interface {
	Create(ctx context.Context, s *Strategy) error
	MarkClosed(ctx context.Context, id string, finalPnL float64, closedAt time.Time) error
	GetOpen(ctx context.Context) ([]StrategyRecord, error)
}

// ExecutionStore records the outcome of every two-leg execution attempt,
// including aborts and rollbacks.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
}

// StrategyRecord is the persisted form of a Strategy.
type StrategyRecord struct {
	ID             string
	Asset          string
	LongVenue      string
	ShortVenue     string
	StakeUSD       float64
	TargetLeverage int
	Spread1h       float64
	FinalPnL       float64
	Closed         bool
	CreatedAt      time.Time
	ClosedAt       *time.Time
}

// ExecutionRecord is the persisted form of an ExecutionResult.
type ExecutionRecord struct {
	ID         string
	StrategyID string
	Asset      string
	Status     ExecStatus
	LongOrder  OrderResult
	ShortOrder OrderResult
	Message    string
	CreatedAt  time.Time
}

// SnapshotArchiver writes completed scans to durable storage. Purely
// write-only from the engine's point of view.
type SnapshotArchiver interface {
	ArchiveScan(ctx context.Context, scan ScanResult) error
}

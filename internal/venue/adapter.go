// Package venue defines the uniform adapter contract every perpetual-futures
// venue must implement, and the registry that resolves adapters by name at
// runtime. The arbitrage core depends only on this package, never on a
// concrete venue client.
package venue

import (
	"context"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// Adapter is the capability set the engine requires from each venue. All
// methods take a context; the caller bounds every call with a timeout, and an
// expired or failed call degrades only that call.
type Adapter interface {
	// Name returns the canonical venue name, e.g. "hyperliquid".
	Name() string

	// GetFundingRates returns current funding quotes for all perp markets
	// the venue lists. Asset symbols are venue-specific; the scanner
	// normalizes them.
	GetFundingRates(ctx context.Context) ([]domain.FundingSnapshot, error)

	// GetPositions returns all open positions on the venue.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetBalance returns the account balance snapshot.
	GetBalance(ctx context.Context) (domain.Balance, error)

	// PlaceMarketOrder opens a position at market with the given notional
	// size and leverage. A rejection is reported in the OrderResult, not as
	// an error; errors are reserved for transport-level failures.
	PlaceMarketOrder(ctx context.Context, asset string, side domain.Side, sizeUSD float64, leverage int) (domain.OrderResult, error)

	// ClosePosition closes the open position for the asset at market.
	ClosePosition(ctx context.Context, asset string) (domain.OrderResult, error)

	// SetLeverage sets the leverage for an asset before trading it.
	SetLeverage(ctx context.Context, asset string, leverage int) error
}

// HealthChecker is optionally implemented by adapters that can probe venue
// reachability without side effects.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

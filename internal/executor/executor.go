// Package executor places the two legs of a delta-neutral strategy as one
// logical transaction: long leg first, then short leg, with a compensating
// close of the long leg when the short leg fails.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

// defaultOrderTimeout bounds each outbound order call.
const defaultOrderTimeout = 10 * time.Second

// AdapterSource resolves venue adapters by name. Implemented by
// *venue.Registry.
type AdapterSource interface {
	Get(name string) (venue.Adapter, error)
}

// Params carries the sizing and auto-management settings for one execution.
type Params struct {
	StakeUSD            float64 // notional per leg
	TargetLeverage      int
	AutoCloseOnReversal bool
	TakeProfitUSD       *float64
	StopLossUSD         *float64
	MaxHoldHours        *int
}

// Executor opens and closes two-leg strategies through the venue registry.
// Execution is strictly sequential per strategy: the short leg is never
// placed before the long leg has filled, because the rollback policy depends
// on that ordering.
type Executor struct {
	venues       AdapterSource
	strategies   domain.StrategyStore  // optional archive
	executions   domain.ExecutionStore // optional archive
	orderTimeout time.Duration
	logger       *slog.Logger
}

// New creates an Executor. Both stores may be nil; archiving is best effort
// and never affects execution outcomes.
func New(venues AdapterSource, strategies domain.StrategyStore, executions domain.ExecutionStore, logger *slog.Logger) *Executor {
	return &Executor{
		venues:       venues,
		strategies:   strategies,
		executions:   executions,
		orderTimeout: defaultOrderTimeout,
		logger:       logger.With(slog.String("component", "executor")),
	}
}

// SetOrderTimeout overrides the per-order timeout. Must be called before use.
func (e *Executor) SetOrderTimeout(d time.Duration) {
	if d > 0 {
		e.orderTimeout = d
	}
}

// Execute opens the long leg on opp.LongVenue and the short leg on
// opp.ShortVenue. The returned result always distinguishes ExecRolledBack
// from ExecRollbackFailed so the caller can escalate the latter.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, p Params) domain.ExecutionResult {
	log := e.logger.With(
		slog.String("asset", opp.Asset),
		slog.String("long_venue", opp.LongVenue),
		slog.String("short_venue", opp.ShortVenue),
	)

	strat := &domain.Strategy{
		ID:                  uuid.New().String(),
		Opportunity:         opp,
		StakeUSD:            p.StakeUSD,
		TargetLeverage:      p.TargetLeverage,
		AutoCloseOnReversal: p.AutoCloseOnReversal,
		TakeProfitUSD:       p.TakeProfitUSD,
		StopLossUSD:         p.StopLossUSD,
		MaxHoldHours:        p.MaxHoldHours,
		CreatedAt:           time.Now().UTC(),
	}

	// 1. Resolve both adapters up front. A missing adapter is a fatal
	// precondition: abort before any order is placed.
	longAdapter, err := e.venues.Get(opp.LongVenue)
	if err != nil {
		return e.record(ctx, abort(strat, fmt.Sprintf("long venue: %v", err)))
	}
	shortAdapter, err := e.venues.Get(opp.ShortVenue)
	if err != nil {
		return e.record(ctx, abort(strat, fmt.Sprintf("short venue: %v", err)))
	}

	// 2. Long leg.
	log.Info("placing long leg",
		slog.Float64("stake_usd", p.StakeUSD),
		slog.Int("leverage", p.TargetLeverage),
	)
	longResult := e.placeOrder(ctx, longAdapter, opp.Asset, domain.SideLong, p)
	if !longResult.Success {
		log.Warn("long leg rejected, aborting", slog.String("error", longResult.Error))
		res := abort(strat, fmt.Sprintf("long order failed: %s", longResult.Error))
		res.LongOrder = longResult
		return e.record(ctx, res)
	}
	log.Info("long leg filled",
		slog.String("order_id", longResult.OrderID),
		slog.Float64("price", longResult.FilledPrice),
	)

	// 3. Short leg. On failure, compensate by closing the long leg.
	log.Info("placing short leg")
	shortResult := e.placeOrder(ctx, shortAdapter, opp.Asset, domain.SideShort, p)
	if !shortResult.Success {
		log.Warn("short leg rejected, rolling back long leg",
			slog.String("error", shortResult.Error),
		)

		rollbackCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
		rollback, rbErr := longAdapter.ClosePosition(rollbackCtx, opp.Asset)
		cancel()

		res := domain.ExecutionResult{
			Strategy:   strat,
			LongOrder:  longResult,
			ShortOrder: shortResult,
		}
		if rbErr == nil && rollback.Success {
			log.Info("rollback succeeded, long leg closed")
			res.Status = domain.ExecRolledBack
			res.Message = fmt.Sprintf("short order failed: %s (long leg rolled back)", shortResult.Error)
		} else {
			reason := rollback.Error
			if rbErr != nil {
				reason = rbErr.Error()
			}
			log.Error("rollback failed, manual intervention required",
				slog.String("venue", opp.LongVenue),
				slog.String("error", reason),
			)
			res.Status = domain.ExecRollbackFailed
			res.Message = fmt.Sprintf("short order failed: %s; rollback failed: %s (long leg still open on %s)",
				shortResult.Error, reason, opp.LongVenue)
		}
		return e.record(ctx, res)
	}
	log.Info("short leg filled",
		slog.String("order_id", shortResult.OrderID),
		slog.Float64("price", shortResult.FilledPrice),
	)

	// 4. Both legs filled: build position records and activate the strategy.
	now := time.Now().UTC()
	strat.LongPosition = legPosition(opp.LongVenue, opp.Asset, domain.SideLong, p, longResult, now)
	strat.ShortPosition = legPosition(opp.ShortVenue, opp.Asset, domain.SideShort, p, shortResult, now)

	if e.strategies != nil {
		if err := e.strategies.Create(ctx, strat); err != nil {
			log.Warn("strategy archive failed", slog.String("error", err.Error()))
		}
	}

	return e.record(ctx, domain.ExecutionResult{
		Status:     domain.ExecFilled,
		Strategy:   strat,
		LongOrder:  longResult,
		ShortOrder: shortResult,
		Message:    "both legs filled",
	})
}

// CloseStrategy claims the strategy's close latch and closes both legs. When
// another path already holds the latch, for example an auto-close that fired
// moments earlier, it stands down with domain.ErrCloseInProgress instead of
// issuing a second close.
func (e *Executor) CloseStrategy(ctx context.Context, strat *domain.Strategy) (domain.CloseResult, error) {
	if !strat.BeginClose() {
		return domain.CloseResult{}, fmt.Errorf("executor: strategy %s: %w", strat.ID, domain.ErrCloseInProgress)
	}
	return e.closeLegs(ctx, strat), nil
}

// CloseClaimed closes both legs for a caller that already holds the close
// latch, such as the auto-close path after the monitor's BeginClose.
func (e *Executor) CloseClaimed(ctx context.Context, strat *domain.Strategy) domain.CloseResult {
	return e.closeLegs(ctx, strat)
}

// closeLegs closes both legs independently. A failed leg does not stop the
// other leg's close from being attempted; the result distinguishes a full
// close, a partial close (naming the leg still open), and a total failure.
func (e *Executor) closeLegs(ctx context.Context, strat *domain.Strategy) domain.CloseResult {
	log := e.logger.With(slog.String("strategy_id", strat.ID), slog.String("asset", strat.Opportunity.Asset))

	if strat.LongPosition == nil || strat.ShortPosition == nil {
		return domain.CloseResult{
			Status:  domain.CloseStatusFailed,
			Message: "strategy has no open positions",
		}
	}

	longClosed := e.closeLeg(ctx, strat.Opportunity.LongVenue, strat.Opportunity.Asset, log)
	shortClosed := e.closeLeg(ctx, strat.Opportunity.ShortVenue, strat.Opportunity.Asset, log)

	res := domain.CloseResult{LongResult: longClosed, ShortResult: shortClosed}
	switch {
	case longClosed.Success && shortClosed.Success:
		res.Status = domain.CloseStatusClosed
		res.Message = "both legs closed"
		if e.strategies != nil {
			if err := e.strategies.MarkClosed(ctx, strat.ID, strat.TotalPnL(), time.Now().UTC()); err != nil {
				log.Warn("strategy close archive failed", slog.String("error", err.Error()))
			}
		}
	case longClosed.Success:
		res.Status = domain.CloseStatusPartial
		res.RemainingSide = domain.SideShort
		res.Message = fmt.Sprintf("short leg still open on %s: %s", strat.Opportunity.ShortVenue, shortClosed.Error)
	case shortClosed.Success:
		res.Status = domain.CloseStatusPartial
		res.RemainingSide = domain.SideLong
		res.Message = fmt.Sprintf("long leg still open on %s: %s", strat.Opportunity.LongVenue, longClosed.Error)
	default:
		res.Status = domain.CloseStatusFailed
		res.Message = fmt.Sprintf("both closes failed: long: %s; short: %s", longClosed.Error, shortClosed.Error)
	}

	log.Info("close complete", slog.String("status", string(res.Status)))
	return res
}

// placeOrder wraps one adapter order call with the per-order timeout and
// converts transport errors into failed OrderResults.
func (e *Executor) placeOrder(ctx context.Context, a venue.Adapter, asset string, side domain.Side, p Params) domain.OrderResult {
	orderCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	defer cancel()

	result, err := a.PlaceMarketOrder(orderCtx, asset, side, p.StakeUSD, p.TargetLeverage)
	if err != nil {
		return domain.OrderResult{
			Venue:     a.Name(),
			Asset:     asset,
			Side:      side,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		}
	}
	return result
}

// closeLeg closes one leg, converting adapter errors into failed results so
// the caller can aggregate.
func (e *Executor) closeLeg(ctx context.Context, venueName, asset string, log *slog.Logger) domain.OrderResult {
	adapter, err := e.venues.Get(venueName)
	if err != nil {
		return domain.OrderResult{Venue: venueName, Asset: asset, Error: err.Error(), Timestamp: time.Now().UTC()}
	}

	closeCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	defer cancel()

	result, err := adapter.ClosePosition(closeCtx, asset)
	if err != nil {
		log.Warn("leg close failed",
			slog.String("venue", venueName),
			slog.String("error", err.Error()),
		)
		return domain.OrderResult{Venue: venueName, Asset: asset, Error: err.Error(), Timestamp: time.Now().UTC()}
	}
	return result
}

// record archives the execution outcome and returns it unchanged.
func (e *Executor) record(ctx context.Context, res domain.ExecutionResult) domain.ExecutionResult {
	if e.executions == nil {
		return res
	}
	rec := domain.ExecutionRecord{
		ID:         uuid.New().String(),
		StrategyID: res.Strategy.ID,
		Asset:      res.Strategy.Opportunity.Asset,
		Status:     res.Status,
		LongOrder:  res.LongOrder,
		ShortOrder: res.ShortOrder,
		Message:    res.Message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.executions.Create(ctx, rec); err != nil {
		e.logger.Warn("execution archive failed",
			slog.String("strategy_id", rec.StrategyID),
			slog.String("error", err.Error()),
		)
	}
	return res
}

func abort(strat *domain.Strategy, msg string) domain.ExecutionResult {
	return domain.ExecutionResult{
		Status:   domain.ExecAborted,
		Strategy: strat,
		Message:  msg,
	}
}

func legPosition(venueName, asset string, side domain.Side, p Params, fill domain.OrderResult, now time.Time) *domain.Position {
	return &domain.Position{
		Venue:        venueName,
		Asset:        asset,
		Side:         side,
		SizeUSD:      p.StakeUSD,
		Leverage:     p.TargetLeverage,
		EntryPrice:   fill.FilledPrice,
		CurrentPrice: fill.FilledPrice,
		OpenedAt:     now,
		UpdatedAt:    now,
	}
}

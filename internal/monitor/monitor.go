// Package monitor runs one cooperative polling loop per active strategy,
// computing live PnL, raising risk alerts, and signalling auto-close
// conditions to its observer. The monitor never closes positions itself.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/venue"
)

const (
	defaultInterval     = 5 * time.Second
	defaultFetchTimeout = 10 * time.Second
)

// Config holds alert thresholds and toggles for one monitor.
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration

	AlertOnProfit      bool
	ProfitThresholdUSD float64
	AlertOnLoss        bool
	LossThresholdUSD   float64 // negative
	AlertOnLiquidation bool
	// LiquidationRiskPct alerts when a leg is within this percent of its
	// liquidation price.
	LiquidationRiskPct float64
	AlertOnReversal    bool
}

// DefaultConfig returns the standard monitoring parameters.
func DefaultConfig() Config {
	return Config{
		Interval:           defaultInterval,
		FetchTimeout:       defaultFetchTimeout,
		AlertOnProfit:      true,
		ProfitThresholdUSD: 50,
		AlertOnLoss:        true,
		LossThresholdUSD:   -20,
		AlertOnLiquidation: true,
		LiquidationRiskPct: 20,
		AlertOnReversal:    true,
	}
}

// Monitor polls both legs of one strategy on a fixed interval. Stopping is
// cooperative: the stop flag is checked once per tick and the current tick
// always completes.
type Monitor struct {
	strategy *domain.Strategy
	long     venue.Adapter
	short    venue.Adapter
	cfg      Config
	logger   *slog.Logger

	onUpdate func(domain.PositionUpdate)
	onAlert  func(domain.Alert)

	monitoring atomic.Bool

	mu         sync.Mutex
	lastUpdate *domain.PositionUpdate
}

// New creates a Monitor for the given strategy. The long and short adapters
// must be the venues the strategy's legs live on.
func New(strat *domain.Strategy, long, short venue.Adapter, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Monitor{
		strategy: strat,
		long:     long,
		short:    short,
		cfg:      cfg,
		logger: logger.With(
			slog.String("component", "monitor"),
			slog.String("strategy_id", strat.ID),
			slog.String("asset", strat.Opportunity.Asset),
		),
	}
}

// OnUpdate registers the per-tick snapshot callback. Must be set before Run.
func (m *Monitor) OnUpdate(fn func(domain.PositionUpdate)) { m.onUpdate = fn }

// OnAlert registers the alert callback. Must be set before Run.
func (m *Monitor) OnAlert(fn func(domain.Alert)) { m.onAlert = fn }

// IsMonitoring reports whether the loop is live.
func (m *Monitor) IsMonitoring() bool { return m.monitoring.Load() }

// Stop requests a cooperative stop. The in-flight tick completes first.
func (m *Monitor) Stop() { m.monitoring.Store(false) }

// LastUpdate returns the most recent emitted snapshot, or nil before the
// first successful tick.
func (m *Monitor) LastUpdate() *domain.PositionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// Strategy returns the monitored strategy.
func (m *Monitor) Strategy() *domain.Strategy { return m.strategy }

// Run executes the polling loop until Stop is called, an auto-close trigger
// fires, or the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.monitoring.Store(true)
	m.logger.Info("monitoring started")
	defer m.logger.Info("monitoring stopped")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for m.monitoring.Load() {
		m.tick(ctx)

		select {
		case <-ctx.Done():
			m.monitoring.Store(false)
			return
		case <-ticker.C:
		}
	}
}

// tick fetches both legs, recomputes PnL, evaluates risk checks and
// auto-close triggers, and emits one PositionUpdate. A tick where either leg
// cannot be found is skipped with a log line; the loop resumes normally on
// the next successful tick.
func (m *Monitor) tick(ctx context.Context) {
	longPos, shortPos := m.fetchLegs(ctx)
	if longPos == nil || shortPos == nil {
		m.logger.Warn("position not found this tick, skipping",
			slog.Bool("long_found", longPos != nil),
			slog.Bool("short_found", shortPos != nil),
		)
		return
	}

	// Last-writer-wins on position fields is acceptable per the ownership
	// model; only this monitor mutates them in steady state.
	m.strategy.LongPosition = longPos
	m.strategy.ShortPosition = shortPos

	totalPnL := m.strategy.TotalPnL()
	unrealized := longPos.UnrealizedPnL + shortPos.UnrealizedPnL
	funding := longPos.FundingAccrued + shortPos.FundingAccrued
	// Live proxy for funding direction: the short leg should outearn the
	// long leg while the spread holds.
	currentSpread := shortPos.UnrealizedPnL - longPos.UnrealizedPnL

	isAtRisk, riskMsg := m.checkRisk(totalPnL, currentSpread, longPos, shortPos)
	m.checkAutoClose(totalPnL, currentSpread)

	update := domain.PositionUpdate{
		StrategyID:     m.strategy.ID,
		Timestamp:      time.Now().UTC(),
		TotalPnL:       totalPnL,
		FundingAccrued: funding,
		UnrealizedPnL:  unrealized,
		LongPosition:   longPos,
		ShortPosition:  shortPos,
		IsAtRisk:       isAtRisk,
		RiskMessage:    riskMsg,
	}

	m.mu.Lock()
	m.lastUpdate = &update
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(update)
	}
}

// fetchLegs retrieves the tracked asset's positions from both venues. Either
// side may come back nil on a fetch failure or when the venue no longer
// reports the position.
func (m *Monitor) fetchLegs(ctx context.Context) (*domain.Position, *domain.Position) {
	asset := m.strategy.Opportunity.Asset

	fetch := func(a venue.Adapter, side domain.Side) *domain.Position {
		fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()

		positions, err := a.GetPositions(fetchCtx)
		if err != nil {
			m.logger.Warn("position fetch failed",
				slog.String("venue", a.Name()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		for i := range positions {
			if positions[i].Asset == asset && positions[i].Side == side {
				p := positions[i]
				return &p
			}
		}
		return nil
	}

	return fetch(m.long, domain.SideLong), fetch(m.short, domain.SideShort)
}

// checkRisk evaluates the independent per-tick risk checks. Checks are not
// mutually exclusive; each true check emits one alert.
func (m *Monitor) checkRisk(totalPnL, currentSpread float64, longPos, shortPos *domain.Position) (bool, string) {
	var atRisk bool
	var riskMsg string

	if m.cfg.AlertOnLiquidation {
		for _, leg := range []*domain.Position{longPos, shortPos} {
			if leg.LiquidationPrice <= 0 || leg.CurrentPrice <= 0 {
				continue
			}
			distPct := abs((leg.CurrentPrice-leg.LiquidationPrice)/leg.CurrentPrice) * 100
			if distPct < m.cfg.LiquidationRiskPct {
				atRisk = true
				riskMsg = fmt.Sprintf("%s position near liquidation: %.1f%% away", leg.Side, distPct)
				m.alert(domain.AlertLiquidationRisk, riskMsg)
			}
		}
	}

	if m.cfg.AlertOnProfit && totalPnL >= m.cfg.ProfitThresholdUSD {
		m.alert(domain.AlertProfit, fmt.Sprintf("profit threshold reached: $%.2f", totalPnL))
	}
	if m.cfg.AlertOnLoss && totalPnL <= m.cfg.LossThresholdUSD {
		m.alert(domain.AlertLoss, fmt.Sprintf("loss threshold breached: $%.2f", totalPnL))
	}
	if m.cfg.AlertOnReversal && currentSpread < 0 {
		m.alert(domain.AlertReversal, fmt.Sprintf("funding spread reversed: %.6f", currentSpread))
	}

	return atRisk, riskMsg
}

// checkAutoClose evaluates the auto-close triggers, first match wins. A
// trigger stops the loop and emits exactly one auto_close alert; the monitor
// only signals, it never closes. A close already claimed by another path
// (e.g. a manual close racing this tick) downgrades the trigger to a log
// line so the in-progress close is not doubled.
func (m *Monitor) checkAutoClose(totalPnL, currentSpread float64) {
	reason := ""
	switch {
	case m.strategy.TakeProfitUSD != nil && totalPnL >= *m.strategy.TakeProfitUSD:
		reason = fmt.Sprintf("take profit reached: $%.2f >= $%.2f", totalPnL, *m.strategy.TakeProfitUSD)
	case m.strategy.StopLossUSD != nil && totalPnL <= *m.strategy.StopLossUSD:
		reason = fmt.Sprintf("stop loss triggered: $%.2f <= $%.2f", totalPnL, *m.strategy.StopLossUSD)
	case m.strategy.AutoCloseOnReversal && currentSpread < 0:
		reason = fmt.Sprintf("funding reversed: spread now %.6f", currentSpread)
	case m.strategy.MaxHoldHours != nil:
		held := time.Since(m.strategy.CreatedAt)
		if held >= time.Duration(*m.strategy.MaxHoldHours)*time.Hour {
			reason = fmt.Sprintf("max hold time reached: %.1fh", held.Hours())
		}
	}
	if reason == "" {
		return
	}

	if !m.strategy.BeginClose() {
		m.logger.Info("auto-close trigger ignored, close already in progress",
			slog.String("reason", reason),
		)
		m.monitoring.Store(false)
		return
	}

	m.monitoring.Store(false)
	m.alert(domain.AlertAutoClose, "auto-close triggered: "+reason)
}

func (m *Monitor) alert(typ domain.AlertType, msg string) {
	m.logger.Info("alert",
		slog.String("type", string(typ)),
		slog.String("message", msg),
	)
	if m.onAlert != nil {
		m.onAlert(domain.Alert{
			StrategyID: m.strategy.ID,
			Type:       typ,
			Message:    msg,
			Timestamp:  time.Now().UTC(),
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

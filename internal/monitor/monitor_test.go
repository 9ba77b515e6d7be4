package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// fakeAdapter serves a mutable position list.
type fakeAdapter struct {
	name string

	mu        sync.Mutex
	positions []domain.Position
	err       error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetPositions(context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeAdapter) setPositions(ps ...domain.Position) {
	f.mu.Lock()
	f.positions = ps
	f.mu.Unlock()
}

func (f *fakeAdapter) GetFundingRates(context.Context) ([]domain.FundingSnapshot, error) {
	return nil, nil
}
func (f *fakeAdapter) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}
func (f *fakeAdapter) PlaceMarketOrder(context.Context, string, domain.Side, float64, int) (domain.OrderResult, error) {
	return domain.OrderResult{}, errors.New("not implemented")
}
func (f *fakeAdapter) ClosePosition(context.Context, string) (domain.OrderResult, error) {
	return domain.OrderResult{}, errors.New("not implemented")
}
func (f *fakeAdapter) SetLeverage(context.Context, string, int) error { return nil }

func leg(venue string, side domain.Side, unrealized, funding float64) domain.Position {
	return domain.Position{
		Venue:          venue,
		Asset:          "BTC",
		Side:           side,
		SizeUSD:        100,
		Leverage:       3,
		EntryPrice:     50000,
		CurrentPrice:   50000,
		UnrealizedPnL:  unrealized,
		FundingAccrued: funding,
		OpenedAt:       time.Now().UTC(),
	}
}

func testStrategy() *domain.Strategy {
	return &domain.Strategy{
		ID: "strat-1",
		Opportunity: domain.Opportunity{
			Asset:      "BTC",
			LongVenue:  "hyperliquid",
			ShortVenue: "paradex",
		},
		StakeUSD:       100,
		TargetLeverage: 3,
		CreatedAt:      time.Now().UTC(),
	}
}

// quietConfig disables every alert so individual tests enable exactly what
// they exercise.
func quietConfig() Config {
	return Config{Interval: time.Millisecond, FetchTimeout: time.Second}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collector struct {
	mu      sync.Mutex
	updates []domain.PositionUpdate
	alerts  []domain.Alert
}

func (c *collector) attach(m *Monitor) {
	m.OnUpdate(func(u domain.PositionUpdate) {
		c.mu.Lock()
		c.updates = append(c.updates, u)
		c.mu.Unlock()
	})
	m.OnAlert(func(a domain.Alert) {
		c.mu.Lock()
		c.alerts = append(c.alerts, a)
		c.mu.Unlock()
	})
}

func (c *collector) alertsOf(typ domain.AlertType) []domain.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Alert
	for _, a := range c.alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func TestTickEmitsUpdate(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, 1, 0.5))
	short.setPositions(leg("paradex", domain.SideShort, 2, 1.5))

	m := New(testStrategy(), long, short, quietConfig(), testLogger())
	var c collector
	c.attach(m)

	m.tick(context.Background())

	require.Len(t, c.updates, 1)
	u := c.updates[0]
	require.InDelta(t, 5.0, u.TotalPnL, 1e-9)
	require.InDelta(t, 2.0, u.FundingAccrued, 1e-9)
	require.InDelta(t, 3.0, u.UnrealizedPnL, 1e-9)
	require.NotNil(t, m.LastUpdate())
}

func TestTickSkipsWhenPositionMissing(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, 0, 0))
	// Short venue reports nothing this tick.

	m := New(testStrategy(), long, short, quietConfig(), testLogger())
	var c collector
	c.attach(m)

	// Three consecutive missed ticks: no update, no alert, loop keeps going.
	for i := 0; i < 3; i++ {
		m.tick(context.Background())
	}
	require.Empty(t, c.updates)
	require.Empty(t, c.alerts)
	require.Nil(t, m.LastUpdate())

	// Position reappears on the fourth tick: the loop resumes normally.
	short.setPositions(leg("paradex", domain.SideShort, 0, 0))
	m.tick(context.Background())
	require.Len(t, c.updates, 1)
}

func TestTickSkipsOnFetchError(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid", err: errors.New("503")}
	short := &fakeAdapter{name: "paradex"}
	short.setPositions(leg("paradex", domain.SideShort, 0, 0))

	m := New(testStrategy(), long, short, quietConfig(), testLogger())
	var c collector
	c.attach(m)

	m.tick(context.Background())
	require.Empty(t, c.updates)
}

func TestTakeProfitTriggersSingleAutoClose(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, 10, 0))
	short.setPositions(leg("paradex", domain.SideShort, 15, 0))

	strat := testStrategy()
	tp := 20.0
	strat.TakeProfitUSD = &tp

	m := New(strat, long, short, quietConfig(), testLogger())
	m.monitoring.Store(true)
	var c collector
	c.attach(m)

	m.tick(context.Background())

	require.False(t, m.IsMonitoring())
	require.True(t, strat.CloseInProgress())
	require.Len(t, c.alertsOf(domain.AlertAutoClose), 1)

	// A second tick past the trigger must not raise a second auto-close.
	m.tick(context.Background())
	require.Len(t, c.alertsOf(domain.AlertAutoClose), 1)
}

func TestStopLossTriggersAutoClose(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, -30, 0))
	short.setPositions(leg("paradex", domain.SideShort, 5, 0))

	strat := testStrategy()
	sl := -20.0
	strat.StopLossUSD = &sl

	m := New(strat, long, short, quietConfig(), testLogger())
	m.monitoring.Store(true)
	var c collector
	c.attach(m)

	m.tick(context.Background())
	require.Len(t, c.alertsOf(domain.AlertAutoClose), 1)
	require.Contains(t, c.alertsOf(domain.AlertAutoClose)[0].Message, "stop loss")
}

func TestReversalAutoCloseOnlyWhenEnabled(t *testing.T) {
	makeMonitor := func(autoClose bool) (*Monitor, *collector, *domain.Strategy) {
		long := &fakeAdapter{name: "hyperliquid"}
		short := &fakeAdapter{name: "paradex"}
		// Short leg underperforming the long leg: spread reversed.
		long.setPositions(leg("hyperliquid", domain.SideLong, 2, 0))
		short.setPositions(leg("paradex", domain.SideShort, 1, 0))

		strat := testStrategy()
		strat.AutoCloseOnReversal = autoClose
		m := New(strat, long, short, quietConfig(), testLogger())
		m.monitoring.Store(true)
		c := &collector{}
		c.attach(m)
		return m, c, strat
	}

	m, c, strat := makeMonitor(false)
	m.tick(context.Background())
	require.Empty(t, c.alertsOf(domain.AlertAutoClose))
	require.False(t, strat.CloseInProgress())

	m, c, strat = makeMonitor(true)
	m.tick(context.Background())
	require.Len(t, c.alertsOf(domain.AlertAutoClose), 1)
	require.True(t, strat.CloseInProgress())
}

func TestMaxHoldTriggersAutoClose(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, 0, 0))
	short.setPositions(leg("paradex", domain.SideShort, 0, 0))

	strat := testStrategy()
	strat.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	mh := 2
	strat.MaxHoldHours = &mh

	m := New(strat, long, short, quietConfig(), testLogger())
	m.monitoring.Store(true)
	var c collector
	c.attach(m)

	m.tick(context.Background())
	require.Len(t, c.alertsOf(domain.AlertAutoClose), 1)
}

func TestAutoCloseStandsDownWhenCloseAlreadyClaimed(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, 50, 0))
	short.setPositions(leg("paradex", domain.SideShort, 50, 0))

	strat := testStrategy()
	tp := 10.0
	strat.TakeProfitUSD = &tp
	// A manual close claimed the strategy before this tick.
	require.True(t, strat.BeginClose())

	m := New(strat, long, short, quietConfig(), testLogger())
	m.monitoring.Store(true)
	var c collector
	c.attach(m)

	m.tick(context.Background())

	// The trigger stops the loop but must not double the close.
	require.False(t, m.IsMonitoring())
	require.Empty(t, c.alertsOf(domain.AlertAutoClose))
}

func TestRiskAlertsAreIndependent(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}

	longLeg := leg("hyperliquid", domain.SideLong, -25, 0)
	longLeg.LiquidationPrice = 45000 // 10% away from 50000
	long.setPositions(longLeg)
	short.setPositions(leg("paradex", domain.SideShort, -30, 0))

	cfg := quietConfig()
	cfg.AlertOnLoss = true
	cfg.LossThresholdUSD = -20
	cfg.AlertOnLiquidation = true
	cfg.LiquidationRiskPct = 20

	m := New(testStrategy(), long, short, cfg, testLogger())
	var c collector
	c.attach(m)

	m.tick(context.Background())

	require.Len(t, c.alertsOf(domain.AlertLoss), 1)
	require.Len(t, c.alertsOf(domain.AlertLiquidationRisk), 1)
	require.Len(t, c.updates, 1)
	require.True(t, c.updates[0].IsAtRisk)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	long.setPositions(leg("hyperliquid", domain.SideLong, 0, 0))
	short.setPositions(leg("paradex", domain.SideShort, 0, 0))

	m := New(testStrategy(), long, short, quietConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, m.IsMonitoring, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
	require.False(t, m.IsMonitoring())
}

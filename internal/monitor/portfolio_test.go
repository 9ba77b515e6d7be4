package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

func newIdleMonitor(id string) *Monitor {
	strat := testStrategy()
	strat.ID = id
	long := &fakeAdapter{name: "hyperliquid"}
	short := &fakeAdapter{name: "paradex"}
	return New(strat, long, short, quietConfig(), testLogger())
}

func TestPortfolioAddRemove(t *testing.T) {
	p := NewPortfolio(testLogger())
	ctx := context.Background()

	m1 := newIdleMonitor("s1")
	m2 := newIdleMonitor("s2")
	p.Add(ctx, m1)
	p.Add(ctx, m2)

	sum := p.Summarize()
	require.Equal(t, 2, sum.NumStrategies)
	require.Equal(t, []string{"s1", "s2"}, sum.Active)
	require.Same(t, m1, p.Get("s1"))

	p.Remove("s1")
	require.Nil(t, p.Get("s1"))
	require.Equal(t, 1, p.Summarize().NumStrategies)

	// Unknown IDs are a no-op.
	p.Remove("ghost")
	require.Equal(t, 1, p.Summarize().NumStrategies)

	p.StopAll()
	require.False(t, m2.IsMonitoring())
}

func TestPortfolioSummarizeAggregatesUpdates(t *testing.T) {
	p := NewPortfolio(testLogger())

	m1 := newIdleMonitor("s1")
	m1.lastUpdate = &domain.PositionUpdate{TotalPnL: 10, FundingAccrued: 4, IsAtRisk: true}
	m2 := newIdleMonitor("s2")
	m2.lastUpdate = &domain.PositionUpdate{TotalPnL: -3, FundingAccrued: 1}
	m3 := newIdleMonitor("s3") // never ticked

	p.Add(context.Background(), m1)
	p.Add(context.Background(), m2)
	p.Add(context.Background(), m3)
	defer p.StopAll()

	sum := p.Summarize()
	require.Equal(t, 3, sum.NumStrategies)
	require.Equal(t, 1, sum.NumAtRisk)
	require.InDelta(t, 7.0, sum.TotalPnLUSD, 1e-9)
	require.InDelta(t, 5.0, sum.TotalFundingUSD, 1e-9)
}

func TestPortfolioAddReplacesExistingID(t *testing.T) {
	p := NewPortfolio(testLogger())
	ctx := context.Background()

	first := newIdleMonitor("s1")
	second := newIdleMonitor("s1")
	p.Add(ctx, first)
	require.Eventually(t, first.IsMonitoring, time.Second, time.Millisecond)

	p.Add(ctx, second)
	defer p.StopAll()

	require.Same(t, second, p.Get("s1"))
	require.Equal(t, 1, p.Summarize().NumStrategies)
	require.Eventually(t, func() bool { return !first.IsMonitoring() }, time.Second, time.Millisecond)
}
